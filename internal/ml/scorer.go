package ml

import (
	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/score"
)

// NeutralProbability is reported when no model is loaded
const NeutralProbability = 0.5

// Prediction is the outcome of one inference
type Prediction struct {
	Available    bool    `json:"available"`
	Probability  float64 `json:"probability"`
	Scaled       int     `json:"scaled"`
	Margin       float64 `json:"margin"`
	ModelVersion string  `json:"model_version,omitempty"`
}

// Scorer wraps an optional classifier. A nil classifier is the cold-start
// state: every call returns a neutral, flagged prediction.
type Scorer struct {
	clf Classifier
}

// NewScorer creates a scorer; clf may be nil
func NewScorer(clf Classifier) *Scorer {
	return &Scorer{clf: clf}
}

// Available reports whether a model is loaded
func (s *Scorer) Available() bool {
	return s != nil && s.clf != nil
}

// Classifier returns the loaded model or nil
func (s *Scorer) Classifier() Classifier {
	if s == nil {
		return nil
	}
	return s.clf
}

// Version returns the loaded model version or ""
func (s *Scorer) Version() string {
	if !s.Available() {
		return ""
	}
	return s.clf.Version()
}

// Score runs inference. It returns model.ErrModelUnavailable together with
// a neutral prediction when no model is loaded, and a
// *model.FeatureSchemaMismatchError when v does not match the model.
func (s *Scorer) Score(v features.Vector) (Prediction, error) {
	if !s.Available() {
		return Prediction{Probability: NeutralProbability, Scaled: 50}, model.ErrModelUnavailable
	}
	if err := CheckSchema(s.clf, v); err != nil {
		return Prediction{}, err
	}

	margin := s.clf.Margin(v.Values)
	p := Sigmoid(margin)
	return Prediction{
		Available:    true,
		Probability:  p,
		Scaled:       score.ScaleProbability(p),
		Margin:       margin,
		ModelVersion: s.clf.Version(),
	}, nil
}

// CheckSchema requires v to carry exactly the model's features in the
// model's order. Nothing is reordered or zero-filled.
func CheckSchema(clf Classifier, v features.Vector) error {
	want := clf.FeatureNames()
	mismatch := &model.FeatureSchemaMismatchError{
		ModelVersion:  clf.Version(),
		ModelSchema:   clf.SchemaVersion(),
		VectorSchema:  v.Schema,
		FirstMismatch: -1,
	}

	have := make(map[string]struct{}, len(v.Names))
	for _, n := range v.Names {
		have[n] = struct{}{}
	}
	wanted := make(map[string]struct{}, len(want))
	for _, n := range want {
		wanted[n] = struct{}{}
		if _, ok := have[n]; !ok {
			mismatch.Missing = append(mismatch.Missing, n)
		}
	}
	for _, n := range v.Names {
		if _, ok := wanted[n]; !ok {
			mismatch.Unexpected = append(mismatch.Unexpected, n)
		}
	}
	for i := 0; i < len(want) && i < len(v.Names); i++ {
		if want[i] != v.Names[i] {
			mismatch.FirstMismatch = i
			break
		}
	}
	if mismatch.FirstMismatch < 0 && len(want) != len(v.Names) {
		mismatch.FirstMismatch = min(len(want), len(v.Names))
	}

	schemaDiffers := mismatch.ModelSchema != "" && mismatch.ModelSchema != v.Schema
	if schemaDiffers || mismatch.FirstMismatch >= 0 || len(v.Values) != len(v.Names) {
		return mismatch
	}
	return nil
}

package ml

import (
	"errors"

	"github.com/ppiankov/iocscore/internal/features"
	"github.com/ppiankov/iocscore/internal/model"
)

// Info summarizes a loaded classifier for operators
type Info struct {
	Version       string   `json:"version" yaml:"version"`
	Kind          string   `json:"kind" yaml:"kind"`
	SchemaVersion string   `json:"schema_version" yaml:"schema_version"`
	Features      int      `json:"features" yaml:"features"`
	Trees         int      `json:"trees,omitempty" yaml:"trees,omitempty"`
	Compatible    bool     `json:"compatible" yaml:"compatible"`
	Problem       string   `json:"problem,omitempty" yaml:"problem,omitempty"`
	Missing       []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	Unexpected    []string `json:"unexpected,omitempty" yaml:"unexpected,omitempty"`
}

// Describe reports what clf is and whether it can score vectors produced by
// this build's feature extractor
func Describe(clf Classifier) Info {
	info := Info{
		Version:       clf.Version(),
		Kind:          clf.Kind(),
		SchemaVersion: clf.SchemaVersion(),
		Features:      len(clf.FeatureNames()),
		Compatible:    true,
	}
	if te, ok := clf.(*TreeEnsemble); ok {
		info.Trees = len(te.Trees())
	}

	sample := features.Extract("", "", nil, model.Enrichment{})
	if err := CheckSchema(clf, sample); err != nil {
		info.Compatible = false
		info.Problem = err.Error()
		var mismatch *model.FeatureSchemaMismatchError
		if errors.As(err, &mismatch) {
			info.Missing = mismatch.Missing
			info.Unexpected = mismatch.Unexpected
		}
	}
	return info
}

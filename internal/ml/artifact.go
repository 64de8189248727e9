package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Artifact is the on-disk JSON form of a trained classifier
type Artifact struct {
	Version       string            `json:"version"`
	Kind          string            `json:"kind"`
	SchemaVersion string            `json:"schema_version"`
	FeatureNames  []string          `json:"feature_names"`
	TrainedAt     *time.Time        `json:"trained_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// tree_ensemble
	BaseScore float64 `json:"base_score,omitempty"`
	Trees     []Tree  `json:"trees,omitempty"`

	// logistic
	Weights   []float64 `json:"weights,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
	Means     []float64 `json:"means,omitempty"`
}

// Load reads and validates a model artifact
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	clf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	return clf, nil
}

// Parse decodes and validates a model artifact
func Parse(data []byte) (Classifier, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return a.Build()
}

// Build validates the artifact and returns the matching classifier
func (a *Artifact) Build() (Classifier, error) {
	if a.Version == "" {
		return nil, fmt.Errorf("artifact has no version")
	}
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("artifact %s lists no features", a.Version)
	}
	seen := make(map[string]struct{}, len(a.FeatureNames))
	for _, n := range a.FeatureNames {
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("artifact %s lists feature %q twice", a.Version, n)
		}
		seen[n] = struct{}{}
	}
	features := append([]string(nil), a.FeatureNames...)

	switch a.Kind {
	case KindTreeEnsemble:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("artifact %s has no trees", a.Version)
		}
		trees := make([]Tree, len(a.Trees))
		for i, t := range a.Trees {
			if err := validateTree(t, len(features)); err != nil {
				return nil, fmt.Errorf("artifact %s tree %d: %w", a.Version, i, err)
			}
			trees[i] = Tree{Nodes: append([]Node(nil), t.Nodes...)}
		}
		return &TreeEnsemble{
			version:   a.Version,
			schema:    a.SchemaVersion,
			features:  features,
			baseScore: a.BaseScore,
			trees:     trees,
		}, nil

	case KindLogistic:
		if len(a.Weights) != len(features) {
			return nil, fmt.Errorf("artifact %s has %d weights for %d features", a.Version, len(a.Weights), len(features))
		}
		means := make([]float64, len(features))
		if len(a.Means) > 0 {
			if len(a.Means) != len(features) {
				return nil, fmt.Errorf("artifact %s has %d means for %d features", a.Version, len(a.Means), len(features))
			}
			copy(means, a.Means)
		}
		return &Logistic{
			version:   a.Version,
			schema:    a.SchemaVersion,
			features:  features,
			weights:   append([]float64(nil), a.Weights...),
			intercept: a.Intercept,
			means:     means,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported classifier kind %q", a.Kind)
	}
}

// Children must come after their parent, which rules out cycles
func validateTree(t Tree, nFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Cover < 0 {
			return fmt.Errorf("node %d has negative cover", i)
		}
		if n.IsLeaf() {
			if n.Right >= 0 {
				return fmt.Errorf("node %d has a right child but no left child", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, n.Feature, nFeatures)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has out-of-order children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

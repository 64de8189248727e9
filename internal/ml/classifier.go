// Package ml runs inference and attribution for the pretrained indicator
// classifier. Loaded classifiers are immutable and safe for concurrent use.
package ml

import "math"

// Classifier kinds understood by the artifact loader
const (
	KindTreeEnsemble = "tree_ensemble"
	KindLogistic     = "logistic"
)

// Classifier maps a feature vector to a log-odds margin
type Classifier interface {
	Version() string
	Kind() string
	SchemaVersion() string
	FeatureNames() []string
	Margin(x []float64) float64
}

// Node is one tree node. Leaves have Left == Right == -1.
// Samples with x[Feature] < Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"` // leaf margin
	Cover     float64 `json:"cover"` // training samples reaching the node
}

// IsLeaf reports whether n has no children
func (n Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a single regression tree stored as a flat node array, root at 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// TreeEnsemble is a gradient-boosted tree model with a logistic link
type TreeEnsemble struct {
	version   string
	schema    string
	features  []string
	baseScore float64
	trees     []Tree
}

func (m *TreeEnsemble) Version() string        { return m.version }
func (m *TreeEnsemble) Kind() string           { return KindTreeEnsemble }
func (m *TreeEnsemble) SchemaVersion() string  { return m.schema }
func (m *TreeEnsemble) FeatureNames() []string { return m.features }

// Trees exposes the ensemble for attribution
func (m *TreeEnsemble) Trees() []Tree { return m.trees }

// BaseScore is the margin every prediction starts from
func (m *TreeEnsemble) BaseScore() float64 { return m.baseScore }

// Margin sums base score and every tree's leaf value
func (m *TreeEnsemble) Margin(x []float64) float64 {
	sum := m.baseScore
	for _, t := range m.trees {
		sum += t.predict(x)
	}
	return sum
}

// Logistic is a linear model over the feature vector
type Logistic struct {
	version   string
	schema    string
	features  []string
	weights   []float64
	intercept float64
	means     []float64 // training feature means, background for attribution
}

func (m *Logistic) Version() string        { return m.version }
func (m *Logistic) Kind() string           { return KindLogistic }
func (m *Logistic) SchemaVersion() string  { return m.schema }
func (m *Logistic) FeatureNames() []string { return m.features }

// Margin returns intercept + w·x
func (m *Logistic) Margin(x []float64) float64 {
	sum := m.intercept
	for i, w := range m.weights {
		sum += w * x[i]
	}
	return sum
}

// Sigmoid is the logistic link from margin to probability
func Sigmoid(margin float64) float64 {
	return 1 / (1 + math.Exp(-margin))
}

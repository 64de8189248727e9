package ml

import (
	"errors"
	"fmt"

	"github.com/ppiankov/iocscore/internal/features"
)

// ErrUnsupportedModel is returned when no exact attribution exists for a
// classifier kind
var ErrUnsupportedModel = errors.New("attribution not supported for this classifier")

// ErrDegenerateCovers is returned when a tree lacks the node covers TreeSHAP
// needs to weight unseen branches
var ErrDegenerateCovers = errors.New("tree node covers are missing or zero")

// Attribution decomposes a margin into per-feature contributions:
// BaseMargin + sum(Phi) == Margin
type Attribution struct {
	ModelVersion string
	Names        []string
	Phi          []float64 // log-odds units, aligned with Names
	BaseMargin   float64   // expected margin with no evidence
	Margin       float64
}

// ShapAttributor computes exact Shapley values: TreeSHAP for tree
// ensembles, closed-form linear SHAP for logistic models
type ShapAttributor struct {
	clf Classifier
}

// NewShapAttributor creates an attributor for clf
func NewShapAttributor(clf Classifier) *ShapAttributor {
	return &ShapAttributor{clf: clf}
}

// Attribute explains the margin of v
func (a *ShapAttributor) Attribute(v features.Vector) (Attribution, error) {
	if a == nil || a.clf == nil {
		return Attribution{}, ErrUnsupportedModel
	}
	if err := CheckSchema(a.clf, v); err != nil {
		return Attribution{}, err
	}

	out := Attribution{
		ModelVersion: a.clf.Version(),
		Names:        a.clf.FeatureNames(),
		Margin:       a.clf.Margin(v.Values),
	}

	switch m := a.clf.(type) {
	case *TreeEnsemble:
		phi := make([]float64, len(out.Names))
		base := m.BaseScore()
		for i, t := range m.Trees() {
			ev, err := treeExpectation(t, 0)
			if err != nil {
				return Attribution{}, fmt.Errorf("tree %d: %w", i, err)
			}
			base += ev
			if err := treeSHAP(t, v.Values, phi); err != nil {
				return Attribution{}, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		out.Phi = phi
		out.BaseMargin = base

	case *Logistic:
		phi := make([]float64, len(out.Names))
		base := m.intercept
		for i, w := range m.weights {
			phi[i] = w * (v.Values[i] - m.means[i])
			base += w * m.means[i]
		}
		out.Phi = phi
		out.BaseMargin = base

	default:
		return Attribution{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, a.clf.Kind())
	}

	return out, nil
}

// treeExpectation is the cover-weighted mean leaf value below node
func treeExpectation(t Tree, node int) (float64, error) {
	n := t.Nodes[node]
	if n.IsLeaf() {
		return n.Value, nil
	}
	if n.Cover <= 0 {
		return 0, ErrDegenerateCovers
	}
	l, err := treeExpectation(t, n.Left)
	if err != nil {
		return 0, err
	}
	r, err := treeExpectation(t, n.Right)
	if err != nil {
		return 0, err
	}
	return (t.Nodes[n.Left].Cover*l + t.Nodes[n.Right].Cover*r) / n.Cover, nil
}

// pathElem tracks one feature on the current root-to-node path: the
// fraction of "feature absent" (z) and "feature present" (o) flow, and the
// permutation weight w
type pathElem struct {
	d int
	z float64
	o float64
	w float64
}

func treeSHAP(t Tree, x []float64, phi []float64) error {
	return shapRecurse(t, x, phi, 0, nil, 1, 1, -1)
}

func shapRecurse(t Tree, x, phi []float64, node int, m []pathElem, pz, po float64, pi int) error {
	m = extendPath(m, pz, po, pi)
	n := t.Nodes[node]

	if n.IsLeaf() {
		for i := 1; i < len(m); i++ {
			w, err := unwoundPathSum(m, i)
			if err != nil {
				return err
			}
			phi[m[i].d] += w * (m[i].o - m[i].z) * n.Value
		}
		return nil
	}

	if n.Cover <= 0 {
		return ErrDegenerateCovers
	}

	hot, cold := n.Right, n.Left
	if x[n.Feature] < n.Threshold {
		hot, cold = n.Left, n.Right
	}

	iz, io := 1.0, 1.0
	for k := range m {
		if m[k].d == n.Feature {
			iz, io = m[k].z, m[k].o
			m = unwindPath(m, k)
			break
		}
	}

	hz := t.Nodes[hot].Cover / n.Cover * iz
	cz := t.Nodes[cold].Cover / n.Cover * iz

	if hz != 0 || io != 0 {
		if err := shapRecurse(t, x, phi, hot, m, hz, io, n.Feature); err != nil {
			return err
		}
	}
	// a branch with no flow in either direction contributes nothing
	if cz != 0 {
		if err := shapRecurse(t, x, phi, cold, m, cz, 0, n.Feature); err != nil {
			return err
		}
	}
	return nil
}

func extendPath(m []pathElem, pz, po float64, pi int) []pathElem {
	l := len(m)
	out := make([]pathElem, l+1)
	copy(out, m)

	w := 0.0
	if l == 0 {
		w = 1
	}
	out[l] = pathElem{d: pi, z: pz, o: po, w: w}

	for i := l - 1; i >= 0; i-- {
		out[i+1].w += po * out[i].w * float64(i+1) / float64(l+1)
		out[i].w = pz * out[i].w * float64(l-i) / float64(l+1)
	}
	return out
}

// unwindPath undoes the extension that added m[idx]
func unwindPath(m []pathElem, idx int) []pathElem {
	l := len(m) - 1
	out := make([]pathElem, len(m))
	copy(out, m)

	o, z := m[idx].o, m[idx].z
	next := out[l].w
	for i := l - 1; i >= 0; i-- {
		if o != 0 {
			tmp := out[i].w
			out[i].w = next * float64(l+1) / (float64(i+1) * o)
			next = tmp - out[i].w*z*float64(l-i)/float64(l+1)
		} else {
			out[i].w = out[i].w * float64(l+1) / (z * float64(l-i))
		}
	}

	for i := idx; i < l; i++ {
		out[i].d = out[i+1].d
		out[i].z = out[i+1].z
		out[i].o = out[i+1].o
	}
	return out[:l]
}

// unwoundPathSum is the total permutation weight of m with m[idx] removed
func unwoundPathSum(m []pathElem, idx int) (float64, error) {
	l := len(m) - 1
	o, z := m[idx].o, m[idx].z
	next := m[l].w
	total := 0.0

	switch {
	case o != 0:
		for i := l - 1; i >= 0; i-- {
			tmp := next / (float64(i+1) * o)
			total += tmp
			next = m[i].w - tmp*z*float64(l-i)
		}
	case z != 0:
		for i := l - 1; i >= 0; i-- {
			total += m[i].w / (z * float64(l-i))
		}
	default:
		return 0, ErrDegenerateCovers
	}
	return total * float64(l+1), nil
}

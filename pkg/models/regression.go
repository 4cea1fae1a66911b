package models

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Regressor is a supervised model over the lag/rolling feature frame.
// Implementations return ErrNotFitted from Predict before a successful Fit.
type Regressor interface {
	Name() string
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
}

// Family names used in reports and trial logs.
const (
	NameLinearRegression = "linear_regression"
	NameRandomForest     = "random_forest"
	NameSARIMA           = "sarima"
)

// FitRegressionFamily fits every member of the regression family on the
// same training matrix. One member failing does not abort the rest; its
// error is recorded under its name and the survivors are returned.
func FitRegressionFamily(x [][]float64, y []float64, members ...Regressor) (map[string]Regressor, map[string]error) {
	if len(members) == 0 {
		members = []Regressor{NewLinearRegression(), NewRandomForest(ForestParams{})}
	}

	fitted := make(map[string]Regressor, len(members))
	failures := make(map[string]error)
	for _, m := range members {
		if err := m.Fit(x, y); err != nil {
			failures[m.Name()] = err
			continue
		}
		fitted[m.Name()] = m
	}
	return fitted, failures
}

// LinearRegression is ordinary least squares with an intercept term,
// solved by QR decomposition.
type LinearRegression struct {
	mu        sync.RWMutex
	fitted    bool
	intercept float64
	coeffs    []float64
}

func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (m *LinearRegression) Name() string { return NameLinearRegression }

func (m *LinearRegression) Fit(x [][]float64, y []float64) error {
	if err := checkMatrix(x, y); err != nil {
		return fmt.Errorf("linear regression: %w", err)
	}

	rows, cols := len(x), len(x[0])
	if rows <= cols+1 {
		return fmt.Errorf("linear regression: %d rows cannot identify %d coefficients", rows, cols+1)
	}

	design := mat.NewDense(rows, cols+1, nil)
	rhs := mat.NewVecDense(rows, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
		rhs.SetVec(i, y[i])
	}

	var qr mat.QR
	qr.Factorize(design)

	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, rhs); err != nil {
		return fmt.Errorf("linear regression: singular design matrix: %w", err)
	}

	coeffs := make([]float64, cols)
	for j := range coeffs {
		coeffs[j] = sol.AtVec(j + 1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fitted = true
	m.intercept = sol.AtVec(0)
	m.coeffs = coeffs
	return nil
}

func (m *LinearRegression) Predict(x [][]float64) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.coeffs) {
			return nil, fmt.Errorf("linear regression: row %d has %d features, model has %d", i, len(row), len(m.coeffs))
		}
		v := m.intercept
		for j, c := range m.coeffs {
			v += c * row[j]
		}
		out[i] = v
	}
	return out, nil
}

// ForestParams configures a RandomForest. Zero values select the defaults
// used by the pipeline (100 trees, unlimited depth, split at 2 samples).
type ForestParams struct {
	Estimators      int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"-"`
}

func (p ForestParams) withDefaults() ForestParams {
	if p.Estimators <= 0 {
		p.Estimators = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.Seed == 0 {
		p.Seed = 42
	}
	return p
}

func (p ForestParams) String() string {
	return fmt.Sprintf("(n_estimators=%d,max_depth=%d,min_samples_split=%d)",
		p.Estimators, p.MaxDepth, p.MinSamplesSplit)
}

// RandomForest is a bagged ensemble of regression trees. Each tree is
// grown on a bootstrap sample; predictions average the trees. The random
// source is seeded so a given configuration always produces the same
// forest.
type RandomForest struct {
	params ForestParams

	mu     sync.RWMutex
	fitted bool
	trees  []*treeNode
}

func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{params: params.withDefaults()}
}

func (m *RandomForest) Name() string { return NameRandomForest }

// Params returns the effective configuration after defaulting.
func (m *RandomForest) Params() ForestParams { return m.params }

func (m *RandomForest) Fit(x [][]float64, y []float64) error {
	if err := checkMatrix(x, y); err != nil {
		return fmt.Errorf("random forest: %w", err)
	}
	if len(x) < m.params.MinSamplesSplit {
		return fmt.Errorf("random forest: %d rows below min_samples_split %d", len(x), m.params.MinSamplesSplit)
	}

	rng := rand.New(rand.NewSource(m.params.Seed))
	trees := make([]*treeNode, m.params.Estimators)
	n := len(x)

	for t := range trees {
		sampleX := make([][]float64, n)
		sampleY := make([]float64, n)
		for i := range sampleX {
			j := rng.Intn(n)
			sampleX[i] = x[j]
			sampleY[i] = y[j]
		}
		trees[t] = growTree(sampleX, sampleY, 0, m.params.MaxDepth, m.params.MinSamplesSplit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fitted = true
	m.trees = trees
	return nil
}

func (m *RandomForest) Predict(x [][]float64) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.fitted {
		return nil, ErrNotFitted
	}

	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, tree := range m.trees {
			sum += tree.predict(row)
		}
		out[i] = sum / float64(len(m.trees))
	}
	return out, nil
}

func checkMatrix(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return errors.New("empty training matrix")
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d feature rows but %d targets", len(x), len(y))
	}
	cols := len(x[0])
	if cols == 0 {
		return errors.New("feature rows have no columns")
	}
	for i, row := range x {
		if len(row) != cols {
			return fmt.Errorf("ragged matrix: row %d has %d columns, row 0 has %d", i, len(row), cols)
		}
	}
	return nil
}

// treeNode is a CART regression tree node. Leaves carry the mean target of
// the samples that reached them.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// growTree builds a tree by greedy variance-reduction splits.
// maxDepth <= 0 means unlimited depth.
func growTree(x [][]float64, y []float64, depth, maxDepth, minSplit int) *treeNode {
	if len(y) < minSplit || (maxDepth > 0 && depth >= maxDepth) || constantTargets(y) {
		return &treeNode{leaf: true, value: meanOf(y)}
	}

	feature, threshold, ok := bestSplit(x, y)
	if !ok {
		return &treeNode{leaf: true, value: meanOf(y)}
	}

	var leftX, rightX [][]float64
	var leftY, rightY []float64
	for i, row := range x {
		if row[feature] <= threshold {
			leftX = append(leftX, row)
			leftY = append(leftY, y[i])
		} else {
			rightX = append(rightX, row)
			rightY = append(rightY, y[i])
		}
	}
	if len(leftY) == 0 || len(rightY) == 0 {
		return &treeNode{leaf: true, value: meanOf(y)}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      growTree(leftX, leftY, depth+1, maxDepth, minSplit),
		right:     growTree(rightX, rightY, depth+1, maxDepth, minSplit),
	}
}

// bestSplit scans every feature and every midpoint between adjacent sorted
// values, minimizing the summed squared error of the two sides.
func bestSplit(x [][]float64, y []float64) (feature int, threshold float64, ok bool) {
	bestSSE := sse(y)
	cols := len(x[0])

	for f := 0; f < cols; f++ {
		order := argsortByFeature(x, f)

		for k := 0; k < len(order)-1; k++ {
			a, b := x[order[k]][f], x[order[k+1]][f]
			if a == b {
				continue
			}
			mid := (a + b) / 2

			var leftY, rightY []float64
			for _, idx := range order {
				if x[idx][f] <= mid {
					leftY = append(leftY, y[idx])
				} else {
					rightY = append(rightY, y[idx])
				}
			}

			if total := sse(leftY) + sse(rightY); total < bestSSE {
				bestSSE = total
				feature = f
				threshold = mid
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func argsortByFeature(x [][]float64, f int) []int {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })
	return order
}

func sse(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	mean := meanOf(y)
	var sum float64
	for _, v := range y {
		sum += (v - mean) * (v - mean)
	}
	return sum
}

func constantTargets(y []float64) bool {
	for _, v := range y[1:] {
		if v != y[0] {
			return false
		}
	}
	return true
}

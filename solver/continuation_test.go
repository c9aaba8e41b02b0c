package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"towerfield/boundary"
	"towerfield/fem"
	"towerfield/maths"
	"towerfield/mesh"
)

const (
	eps0  = 8.85418782e-12
	slabZ = 0.2
	volt  = 120e3
	beta  = 0.5
)

func TestNext(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		state  State
		err    error
		next   State
		action Action
	}{
		{Unsolved, nil, Seeded, Advance},
		{Unsolved, boom, Seeded, ResetSeed},
		{Seeded, nil, Converged, Advance},
		{Seeded, boom, Seeded, Fail},
		{Converged, nil, Converged, Fail},
	}
	for _, tc := range cases {
		next, act := Next(tc.state, tc.err)
		if next != tc.next || act != tc.action {
			t.Errorf("Next(%v, %v) = %v, %v; want %v, %v", tc.state, tc.err, next, act, tc.next, tc.action)
		}
	}
}

// slabProblem 底部导体板 + 顶面 Robin 的一维问题
func slabProblem(t *testing.T, dirichlet bool, robin bool, source fem.Source) (*mesh.Mesh, *fem.Assembler, []float64) {
	t.Helper()
	m, err := mesh.Box(mesh.BoxOptions{
		Bounds: mesh.Bounds{Max: mesh.Point{X: 1, Y: 1, Z: 1}},
		NX:     2, NY: 2, NZ: 5,
		Label: func(c mesh.Point) int {
			if c.Z < slabZ {
				return 2
			}
			return 1
		},
		InterfaceTag: func(a, b int) int { return 11 },
		Outer:        map[mesh.Side]int{mesh.ZMax: 10},
	})
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	eps := make([]float64, m.NumCells())
	sigma := make([]float64, m.NumCells())
	for c, l := range m.CellLabels {
		eps[c] = eps0 * 1.0006
		if l == 2 {
			eps[c] = eps0
			sigma[c] = 35000
		}
	}
	cfg := fem.Config{Frequency: 50, Scaling: fem.DefaultScaling(), Epsilon: eps, Source: source}
	if dirichlet {
		for _, n := range m.FacetNodes(11) {
			cfg.Dirichlet = append(cfg.Dirichlet, boundary.Constraint{Node: n, Real: volt})
		}
	}
	if robin {
		cfg.Robin = boundary.RobinSpec{BoundaryID: 10, Alpha: 1, Beta: beta, Valid: true}
	}
	a, err := fem.NewAssembler(m, cfg)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}
	return m, a, sigma
}

func TestContinuationAnalytic(t *testing.T) {
	m, a, sigma := slabProblem(t, true, true, fem.Source{})
	rec := &recorder{}
	c := New(a, sigma, Options{Debug: rec})
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != Converged || c.State() != Converged || res.SeedReset {
		t.Fatalf("state %v reset %v", res.State, res.SeedReset)
	}
	if len(res.Attempts) != 4 || len(rec.attempts) != 4 {
		t.Fatalf("attempts = %d, recorded %d", len(res.Attempts), len(rec.attempts))
	}
	if res.Attempts[0].Stage != "seed" || res.Attempts[3].Stage != "full" || res.Attempts[3].Part != "imag" {
		t.Fatalf("attempt order %+v", res.Attempts)
	}
	epsS := eps0 * 1.0006 * 1e8
	B := -volt / (epsS + beta + (1 - slabZ))
	for i, p := range m.Nodes {
		if p.Z < slabZ {
			continue
		}
		want := volt + B*(p.Z-slabZ)
		if d := math.Abs(res.Potential.Real[i] - want); d > 1e-6*volt {
			t.Fatalf("node %v: real %g want %g", p, res.Potential.Real[i], want)
		}
		if math.Abs(res.Potential.Imag[i]) > 1e-6*volt {
			t.Fatalf("node %v: imag %g", p, res.Potential.Imag[i])
		}
	}
}

// TestSeedOnlyWarmStarts 种子阶段只提供初值，结果与种子比例无关，
// 且满足完整电导率下的耦合方程
func TestSeedOnlyWarmStarts(t *testing.T) {
	_, a, sigma := slabProblem(t, true, true, fem.DefaultSource())
	var results []Potential
	for _, factor := range []float64{0.1, 0.5} {
		spy := &spy{inner: &Direct{}}
		res, err := New(a, sigma, Options{SeedFactor: factor, Solver: spy}).Run(context.Background())
		if err != nil {
			t.Fatalf("factor %g: Run failed: %v", factor, err)
		}
		if len(spy.matrices) != 4 {
			t.Fatalf("factor %g: %d solves", factor, len(spy.matrices))
		}
		// 种子与完整阶段、实部与虚部各用不同的系数矩阵
		seen := map[*maths.SparseMatrix]bool{}
		for _, m := range spy.matrices {
			seen[m] = true
		}
		if len(seen) != 4 {
			t.Fatalf("factor %g: %d distinct matrices", factor, len(seen))
		}
		results = append(results, res.Potential)
	}
	scale := floats.Norm(results[0].Real, math.Inf(1))
	if scale == 0 {
		t.Fatalf("zero potential")
	}
	for _, part := range [][2][]float64{{results[0].Real, results[1].Real}, {results[0].Imag, results[1].Imag}} {
		if d := floats.Distance(part[0], part[1], math.Inf(1)); d > 1e-9*scale {
			t.Fatalf("result depends on seed factor: diff %g", d)
		}
	}

	pair, err := a.Assemble(sigma)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if floats.Norm(pair.C.Diagonal(), math.Inf(1)) == 0 {
		t.Fatalf("no conductivity coupling in the test problem")
	}
	for _, part := range []fem.Part{fem.Real, fem.Imag} {
		u := results[0].Real
		if part == fem.Imag {
			u = results[0].Imag
		}
		r := make([]float64, len(u))
		pair.Matrix(part).MulVecTo(r, u)
		b := pair.RHS(part)
		floats.Sub(r, b)
		if got := floats.Norm(r, math.Inf(1)); got > 1e-8*math.Max(floats.Norm(b, math.Inf(1)), 1) {
			t.Fatalf("%v residual %g", part, got)
		}
	}
}

// TestRunRepeatable 重复调用 Run 从头求解并得到相同结果
func TestRunRepeatable(t *testing.T) {
	_, a, sigma := slabProblem(t, true, true, fem.DefaultSource())
	c := New(a, sigma, Options{})
	first, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(second.Attempts) != 4 || second.State != Converged {
		t.Fatalf("second run: %d attempts, state %v", len(second.Attempts), second.State)
	}
	if floats.Norm(second.Potential.Real, math.Inf(1)) < volt/2 {
		t.Fatalf("second run returned an empty potential")
	}
	if !floats.EqualApprox(first.Potential.Real, second.Potential.Real, 1e-9) {
		t.Fatalf("second run differs from first")
	}
}

// TestZeroData 零源、零电导率、零约束值时两阶段都得到零场
func TestZeroData(t *testing.T) {
	for _, robin := range []bool{true, false} {
		_, a, sigma := slabProblem(t, false, robin, fem.Source{})
		for i := range sigma {
			sigma[i] = 0
		}
		res, err := New(a, sigma, Options{}).Run(context.Background())
		if err != nil {
			t.Fatalf("robin=%v: Run failed: %v", robin, err)
		}
		for i := range res.Potential.Real {
			if res.Potential.Real[i] != 0 || res.Potential.Imag[i] != 0 {
				t.Fatalf("robin=%v: node %d = (%g, %g)", robin, i, res.Potential.Real[i], res.Potential.Imag[i])
			}
		}
	}
}

func TestSeedFailureResets(t *testing.T) {
	_, a, sigma := slabProblem(t, true, true, fem.DefaultSource())
	f := &flaky{fails: 1, inner: &Direct{}}
	res, err := New(a, sigma, Options{Solver: f}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.SeedReset || !errors.Is(res.SeedErr, errFlaky) {
		t.Fatalf("seed reset %v err %v", res.SeedReset, res.SeedErr)
	}
	// 种子阶段实部失败后不再求解虚部
	if f.calls != 3 {
		t.Fatalf("calls = %d", f.calls)
	}
}

func TestFullStageFailure(t *testing.T) {
	_, a, sigma := slabProblem(t, true, true, fem.Source{})
	c := New(a, sigma, Options{Solver: &flaky{fails: 100, inner: &Direct{}}})
	if _, err := c.Run(context.Background()); !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	if c.State() != Seeded {
		t.Fatalf("state = %v", c.State())
	}
}

func TestCancelled(t *testing.T) {
	_, a, sigma := slabProblem(t, true, true, fem.Source{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(a, sigma, Options{}).Run(ctx)
	if !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

// TestTwoTierFallback 带宽超限时回退到 GMRES
func TestTwoTierFallback(t *testing.T) {
	_, a, _ := slabProblem(t, true, true, fem.DefaultSource())
	k := a.Stiffness()
	b := make([]float64, k.Rows())
	for i := range b {
		b[i] = float64(i%7) - 3
	}
	tt := &TwoTier{Primary: &Direct{Limit: 1}, Fallback: NewIterative()}
	x := make([]float64, len(b))
	rep, err := tt.Solve(context.Background(), k, b, x)
	if err != nil {
		t.Fatalf("two tier failed: %v", err)
	}
	if rep.Method != "gmres" || rep.Preconditioner == "" || rep.Iterations == 0 {
		t.Fatalf("report = %+v", rep)
	}
	r := make([]float64, len(b))
	k.MulVecTo(r, x)
	floats.SubTo(r, b, r)
	if got, tol := floats.Norm(r, 2), 1.01*math.Max(1e-6*floats.Norm(b, 2), 1e-9); got > tol {
		t.Fatalf("residual %g > %g", got, tol)
	}
	// 两级都失败
	tt = &TwoTier{Primary: &Direct{Limit: 1}, Fallback: &Iterative{Options: maths.GMRESOptions{Restart: 2, MaxIter: 1, RelTol: 1e-12}}}
	x = make([]float64, len(b))
	if _, err := tt.Solve(context.Background(), k, b, x); !errors.Is(err, maths.ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	for i := range x {
		if x[i] != 0 {
			t.Fatalf("x modified on failure")
		}
	}
}

// TestDirectCancelledFactor 分解被取消时不缓存错误
func TestDirectCancelledFactor(t *testing.T) {
	_, a, _ := slabProblem(t, true, true, fem.DefaultSource())
	k := a.Stiffness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Direct{}
	if err := d.factor(ctx, k); !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	b := make([]float64, k.Rows())
	b[0] = 1
	x := make([]float64, len(b))
	if _, err := d.Solve(context.Background(), k, b, x); err != nil {
		t.Fatalf("solve after cancelled factor failed: %v", err)
	}
}

var errFlaky = errors.New("flaky solver")

type flaky struct {
	fails int
	calls int
	inner LinearSolver
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error) {
	f.calls++
	if f.calls <= f.fails {
		return Report{Method: f.Name()}, errFlaky
	}
	return f.inner.Solve(ctx, a, b, x)
}

// spy 记录每次求解使用的系数矩阵
type spy struct {
	inner    LinearSolver
	matrices []*maths.SparseMatrix
}

func (s *spy) Name() string { return "spy" }

func (s *spy) Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error) {
	s.matrices = append(s.matrices, a)
	return s.inner.Solve(ctx, a, b, x)
}

type recorder struct {
	debug
	attempts []Attempt
}

func (r *recorder) IsDebug() bool     { return true }
func (r *recorder) Update(a Attempt) { r.attempts = append(r.attempts, a) }

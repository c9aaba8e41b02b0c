package solver

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"towerfield/maths"
)

// Report 单次线性求解的统计
type Report struct {
	Method         string
	Preconditioner string
	Iterations     int
	Residual       float64
	History        []float64
}

// LinearSolver 线性方程组求解器
// x 传入初始猜测，成功时写回解；失败时 x 保持不变
type LinearSolver interface {
	Name() string
	Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error)
}

// Direct RCM 重排序后的带状 LU 直接求解
// 同一矩阵的分解结果在多次求解间复用
type Direct struct {
	Limit int // 带状存储上限，0 使用 maths.MaxBandEntries

	matrix *maths.SparseMatrix
	perm   []int
	lu     *maths.BandLU
	err    error
}

var _ LinearSolver = (*Direct)(nil)

func (d *Direct) Name() string { return "direct" }

func (d *Direct) factor(ctx context.Context, a *maths.SparseMatrix) error {
	if d.matrix == a {
		return d.err
	}
	d.matrix, d.perm, d.lu = a, nil, nil
	perm := maths.ReverseCuthillMcKee(a)
	lu := maths.NewBandLU()
	if d.Limit > 0 {
		lu.Limit = d.Limit
	}
	d.err = lu.DecomposeContext(ctx, a.Permute(perm))
	if IsCancelled(d.err) {
		// 取消不代表矩阵不可分解，不缓存
		err := d.err
		d.matrix, d.err = nil, nil
		return err
	}
	if d.err == nil {
		d.perm, d.lu = perm, lu
		kl, ku := lu.Band()
		slog.Debug("带状LU分解完成", "n", a.Rows(), "kl", kl, "ku", ku)
	}
	return d.err
}

func (d *Direct) Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error) {
	rep := Report{Method: d.Name()}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if len(b) != a.Rows() || len(x) != a.Rows() {
		return rep, maths.ErrDimension
	}
	if err := d.factor(ctx, a); err != nil {
		return rep, fmt.Errorf("direct: %w", err)
	}
	n := len(b)
	pb := make([]float64, n)
	for i, p := range d.perm {
		pb[i] = b[p]
	}
	px := make([]float64, n)
	if err := d.lu.SolveReuse(pb, px); err != nil {
		return rep, fmt.Errorf("direct: %w", err)
	}
	for i, p := range d.perm {
		x[p] = px[i]
	}
	rep.Residual = residual(a, b, x)
	return rep, nil
}

// Iterative 预条件重启 GMRES
// 优先 ILU(0)，分解失败时退化为 Jacobi
type Iterative struct {
	Options maths.GMRESOptions

	matrix *maths.SparseMatrix
	pc     maths.Preconditioner
	pcName string
}

var _ LinearSolver = (*Iterative)(nil)

// NewIterative 默认参数的迭代求解器
func NewIterative() *Iterative {
	return &Iterative{Options: maths.DefaultGMRESOptions()}
}

func (it *Iterative) Name() string { return "gmres" }

func (it *Iterative) preconditioner(a *maths.SparseMatrix) {
	if it.matrix == a {
		return
	}
	it.matrix = a
	ilu, err := maths.NewILU0(a)
	if err != nil {
		slog.Warn("ILU(0) 分解失败，改用 Jacobi 预条件", "err", err)
		it.pc, it.pcName = maths.NewJacobi(a), "jacobi"
		return
	}
	it.pc, it.pcName = ilu, "ilu0"
}

func (it *Iterative) Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error) {
	rep := Report{Method: it.Name()}
	if len(b) != a.Rows() || len(x) != a.Rows() {
		return rep, maths.ErrDimension
	}
	it.preconditioner(a)
	rep.Preconditioner = it.pcName
	work := append([]float64(nil), x...)
	res, err := maths.GMRES(ctx, a, b, work, it.pc, it.Options)
	rep.Iterations, rep.Residual, rep.History = res.Iterations, res.Residual, res.History
	if err != nil {
		return rep, err
	}
	copy(x, work)
	return rep, nil
}

// TwoTier 先尝试 Primary，失败后自动切换到 Fallback
type TwoTier struct {
	Primary  LinearSolver
	Fallback LinearSolver
}

var _ LinearSolver = (*TwoTier)(nil)

// NewTwoTier 直接求解失败时回退到 GMRES
func NewTwoTier() *TwoTier {
	return &TwoTier{Primary: &Direct{}, Fallback: NewIterative()}
}

func (t *TwoTier) Name() string { return t.Primary.Name() + "+" + t.Fallback.Name() }

func (t *TwoTier) Solve(ctx context.Context, a *maths.SparseMatrix, b, x []float64) (Report, error) {
	rep, err := t.Primary.Solve(ctx, a, b, x)
	if err == nil {
		return rep, nil
	}
	if IsCancelled(err) {
		return rep, err
	}
	slog.Warn("直接求解失败，回退到迭代求解", "err", err)
	rep, ferr := t.Fallback.Solve(ctx, a, b, x)
	if ferr != nil {
		return rep, fmt.Errorf("fallback after %v: %w", err, ferr)
	}
	return rep, nil
}

func residual(a *maths.SparseMatrix, b, x []float64) float64 {
	r := make([]float64, len(b))
	a.MulVecTo(r, x)
	floats.SubTo(r, b, r)
	return floats.Norm(r, 2)
}

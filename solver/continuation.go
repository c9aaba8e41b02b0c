package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"towerfield/fem"
)

// Potential 节点电位相量
type Potential struct {
	Real []float64
	Imag []float64
}

// ZeroPotential 零场
func ZeroPotential(n int) Potential {
	return Potential{Real: make([]float64, n), Imag: make([]float64, n)}
}

// Clone 深拷贝
func (p Potential) Clone() Potential {
	return Potential{
		Real: append([]float64(nil), p.Real...),
		Imag: append([]float64(nil), p.Imag...),
	}
}

// Attempt 一次分量求解记录
type Attempt struct {
	Stage    string
	Part     string
	Duration time.Duration
	Err      string
	Report
}

// Debug 调试接口
type Debug interface {
	Init(n int)
	IsDebug() bool
	SetDebug(is bool)
	Update(a Attempt)
	Render(w io.Writer) error
}

type debug struct{ is bool }

func (debug) Init(n int)               {}
func (d *debug) IsDebug() bool         { return d.is }
func (d *debug) SetDebug(is bool)      { d.is = is }
func (debug) Update(a Attempt)         {}
func (debug) Render(w io.Writer) error { return nil }

// Options 延拓参数
type Options struct {
	SeedFactor float64      // 0 使用 SeedFactor
	Solver     LinearSolver // nil 使用 NewTwoTier()
	Debug      Debug
}

// Result 延拓求解结果
type Result struct {
	Potential Potential
	State     State
	SeedReset bool  // 种子阶段失败并以零场替代
	SeedErr   error // 种子阶段失败原因
	Method    string
	Attempts  []Attempt
}

// Continuation 延拓求解器
type Continuation struct {
	assembler *fem.Assembler
	sigma     []float64
	opt       Options
	state     State
	attempts  []Attempt
}

// New 创建延拓求解器，sigma 为未缩放的单元电导率
func New(a *fem.Assembler, sigma []float64, opt Options) *Continuation {
	if opt.SeedFactor == 0 {
		opt.SeedFactor = SeedFactor
	}
	if opt.Solver == nil {
		opt.Solver = NewTwoTier()
	}
	if opt.Debug == nil {
		opt.Debug = &debug{}
	}
	return &Continuation{assembler: a, sigma: sigma, opt: opt}
}

// State 当前状态
func (c *Continuation) State() State { return c.state }

// Run 执行两阶段求解，每次调用都从 Unsolved 重新开始
// 种子阶段的电位只作为完整阶段的初始猜测
// 上下文取消总是终止计算；完整阶段失败返回错误
func (c *Continuation) Run(ctx context.Context) (*Result, error) {
	n := c.assembler.Stiffness().Rows()
	c.state, c.attempts = Unsolved, nil
	c.opt.Debug.Init(n)
	res := &Result{Method: c.opt.Solver.Name()}
	seed := ZeroPotential(n)
	for c.state != Converged {
		factor := 1.0
		if c.state == Unsolved {
			factor = c.opt.SeedFactor
		}
		out, err := c.stage(ctx, factor, seed)
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("solver: %s stage: %w", c.state.Stage(), cerr)
		}
		next, act := Next(c.state, err)
		switch act {
		case Advance:
			seed = out
		case ResetSeed:
			slog.Warn("种子阶段求解失败，以零场继续", "err", err)
			seed = ZeroPotential(n)
			res.SeedReset, res.SeedErr = true, err
		case Fail:
			return nil, fmt.Errorf("solver: %s stage: %w", c.state.Stage(), err)
		}
		slog.Info("延拓阶段完成", "stage", c.state.Stage(), "next", next, "action", act)
		c.state = next
	}
	res.Potential = seed
	res.State = c.state
	res.Attempts = c.attempts
	return res, nil
}

// stage 按给定电导率比例求解实部与虚部两个独立系统
// init 为迭代求解的初始猜测，直接求解不使用它
func (c *Continuation) stage(ctx context.Context, factor float64, init Potential) (Potential, error) {
	sigma := make([]float64, len(c.sigma))
	for i, s := range c.sigma {
		sigma[i] = s * factor
	}
	pair, err := c.assembler.Assemble(sigma)
	if err != nil {
		return Potential{}, err
	}
	out := init.Clone()
	if err := c.solve(ctx, pair, fem.Real, out.Real); err != nil {
		return Potential{}, err
	}
	if err := c.solve(ctx, pair, fem.Imag, out.Imag); err != nil {
		return Potential{}, err
	}
	return out, nil
}

func (c *Continuation) solve(ctx context.Context, pair *fem.Pair, part fem.Part, x []float64) error {
	start := time.Now()
	rep, err := c.opt.Solver.Solve(ctx, pair.Matrix(part), pair.RHS(part), x)
	a := Attempt{Stage: c.state.Stage(), Part: part.String(), Duration: time.Since(start), Report: rep}
	if err != nil {
		a.Err = err.Error()
	}
	c.attempts = append(c.attempts, a)
	if c.opt.Debug.IsDebug() {
		c.opt.Debug.Update(a)
	}
	if err != nil {
		return fmt.Errorf("%s part: %w", part, err)
	}
	return nil
}

// IsCancelled 判断错误是否由上下文取消或超时引起
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

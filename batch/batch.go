// Package batch 并行执行多组参数的计算
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"towerfield"
	"towerfield/mesh"
	"towerfield/solver"
)

// Case 一组计算参数
type Case struct {
	Name            string  `yaml:"name"`
	MaxConductivity float64 `yaml:"max_conductivity"`
	RobinCoeff      float64 `yaml:"robin_coeff"`
}

// DefaultCases 电导率水平、边界强度与组合参数共六组
func DefaultCases() []Case {
	return []Case{
		{Name: "low_conductivity", MaxConductivity: 1000, RobinCoeff: 0.5},
		{Name: "medium_conductivity", MaxConductivity: 15000, RobinCoeff: 0.5},
		{Name: "high_conductivity", MaxConductivity: 35000, RobinCoeff: 0.5},
		{Name: "weak_boundary", MaxConductivity: 35000, RobinCoeff: 0.1},
		{Name: "strong_boundary", MaxConductivity: 35000, RobinCoeff: 1.0},
		{Name: "extreme_case", MaxConductivity: 50000, RobinCoeff: 0.8},
	}
}

// Outcome 单组计算结果
type Outcome struct {
	Case
	RunID        string
	Success      bool
	Err          string
	Path         string
	Duration     time.Duration
	MaxE         float64
	BoxAirPoints int
	Percentage   float64
	Result       *towerfield.Result
}

// SolveFunc 单次计算
type SolveFunc func(ctx context.Context, opt towerfield.Options) (*towerfield.Result, error)

// Runner 批量执行器
// 每组计算使用独立的输出目录、求解器和超时，失败不影响其他组
type Runner struct {
	Root        string
	Workers     int
	Timeout     time.Duration
	Base        towerfield.Options         // 公共参数，Solver 与 Debug 字段被忽略
	MeshFactory func() (*mesh.Mesh, error) // 非空时每组计算生成自己的网格
	NewSolver   func() solver.LinearSolver // nil 使用默认两级求解器
	Solve       SolveFunc                  // nil 使用 towerfield.Solve
	OnDone      func(Outcome)              // 每组结束时调用，调用之间互斥
}

// Run 执行全部计算，结果顺序与 cases 一致
func (r *Runner) Run(ctx context.Context, cases []Case) []Outcome {
	workers := r.Workers
	if workers <= 0 {
		workers = 3
	}
	solve := r.Solve
	if solve == nil {
		solve = towerfield.Solve
	}
	out := make([]Outcome, len(cases))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)
	for i, c := range cases {
		g.Go(func() error {
			o := r.runOne(ctx, solve, c)
			out[i] = o
			if r.OnDone != nil {
				mu.Lock()
				r.OnDone(o)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Runner) runOne(ctx context.Context, solve SolveFunc, c Case) Outcome {
	o := Outcome{Case: c}
	start := time.Now()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	opt := r.Base
	opt.OutputDir = filepath.Join(r.Root, c.Name)
	opt.Stem = "case_" + c.Name
	opt.MaxConductivity = c.MaxConductivity
	opt.RobinCoeff = c.RobinCoeff
	opt.Solver, opt.Debug = nil, nil
	if r.NewSolver != nil {
		opt.Solver = r.NewSolver()
	}
	slog.Info("开始计算", "case", c.Name, "max_conductivity", c.MaxConductivity, "robin_coeff", c.RobinCoeff)
	res, err := func() (*towerfield.Result, error) {
		if r.MeshFactory != nil {
			m, err := r.MeshFactory()
			if err != nil {
				return nil, fmt.Errorf("mesh: %w", err)
			}
			opt.Mesh = m
		}
		return solve(ctx, opt)
	}()
	o.Duration = time.Since(start)
	switch {
	case err != nil:
		o.Err = err.Error()
	case res.ExportErr != nil:
		o.Err = "export: " + res.ExportErr.Error()
	default:
		o.Success = true
	}
	if res != nil {
		o.Result = res
		o.RunID = res.RunID
		o.Path = res.Path
		o.MaxE = res.Summary.MaxE
		o.BoxAirPoints = res.Filter.BoxAirPoints
		o.Percentage = res.Filter.Percentage
	}
	if o.Success {
		slog.Info("计算完成", "case", c.Name, "duration", o.Duration)
	} else {
		slog.Error("计算失败", "case", c.Name, "err", o.Err)
	}
	return o
}

// Summary 批量统计
type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	SuccessRate float64 // 百分比
	Duration    time.Duration
}

// Summarize 统计成功率
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Duration += o.Duration
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total) * 100
	}
	return s
}

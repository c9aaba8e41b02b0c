// Package towerfield 三相输电塔周围的工频电位与电场计算
//
// 一次计算依次执行：材料分类、边界条件、方程组装、两阶段延拓求解、
// 电场后处理和数据集导出。
package towerfield

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"towerfield/boundary"
	"towerfield/export"
	"towerfield/fem"
	"towerfield/field"
	"towerfield/material"
	"towerfield/mesh"
	"towerfield/solver"
)

// ErrMeshNotFound 网格文件不存在或不可读
var ErrMeshNotFound = mesh.ErrNotFound

// Physics 物理常数与数值参数
type Physics struct {
	Frequency  float64 // Hz
	Voltage    float64 // 相对地峰值电压
	Scaling    fem.Scaling // 各分量为零时取默认值
	Source     *fem.Source // nil 使用默认源项，&fem.Source{} 表示无源项
	SeedFactor float64
}

// DefaultPhysics 50 Hz，120 kV
func DefaultPhysics() Physics {
	src := fem.DefaultSource()
	return Physics{
		Frequency:  50,
		Voltage:    boundary.NominalVoltage,
		Scaling:    fem.DefaultScaling(),
		Source:     &src,
		SeedFactor: solver.SeedFactor,
	}
}

// withDefaults 逐项补齐未设置的参数
func (p Physics) withDefaults() Physics {
	d := DefaultPhysics()
	if p.Frequency == 0 {
		p.Frequency = d.Frequency
	}
	if p.Voltage == 0 {
		p.Voltage = d.Voltage
	}
	if p.Scaling.Epsilon == 0 {
		p.Scaling.Epsilon = d.Scaling.Epsilon
	}
	if p.Scaling.Sigma == 0 {
		p.Scaling.Sigma = d.Scaling.Sigma
	}
	if p.Scaling.Omega == 0 {
		p.Scaling.Omega = d.Scaling.Omega
	}
	if p.Source == nil {
		p.Source = d.Source
	}
	if p.SeedFactor == 0 {
		p.SeedFactor = d.SeedFactor
	}
	return p
}

// Options 一次计算的输入
type Options struct {
	MeshFile        string
	Mesh            *mesh.Mesh // 非空时忽略 MeshFile
	OutputDir       string
	Stem            string
	MaxConductivity float64
	RobinCoeff      float64
	Physics         Physics
	Conductors      []boundary.ConductorSpec // 为空时按 Physics.Voltage 生成默认导体
	Solver          solver.LinearSolver
	Debug           solver.Debug
	Now             func() time.Time
}

// Result 一次计算的结果
// 导出失败不影响其余字段，原因记录在 ExportErr
type Result struct {
	RunID         string
	Path          string
	ExportErr     error
	Strategy      material.Strategy
	SeedReset     bool
	Unconstrained []string
	Summary       field.Summary
	Conductor     *field.ConductorStats
	Filter        export.FilterStats
	Duration      time.Duration
	Metadata      export.Metadata
}

// Solve 执行一次完整计算
// 网格缺失与完整阶段求解失败返回错误；导出失败仅记录
func Solve(ctx context.Context, opt Options) (*Result, error) {
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	opt.Physics = opt.Physics.withDefaults()
	start := now()
	res := &Result{RunID: uuid.NewString()}
	log := slog.With("run", res.RunID)

	m := opt.Mesh
	if m == nil {
		var err error
		if m, err = mesh.Load(opt.MeshFile); err != nil {
			return nil, fmt.Errorf("towerfield: %w", err)
		}
	}
	log.Info("网格已加载",
		"source", m.Source,
		"nodes", humanize.Comma(int64(m.NumNodes())),
		"cells", humanize.Comma(int64(m.NumCells())))

	mp, err := material.Classify(m, material.DefaultTable(opt.MaxConductivity))
	if err != nil {
		return nil, fmt.Errorf("towerfield: %w", err)
	}
	res.Strategy = mp.Strategy

	conductors := opt.Conductors
	if conductors == nil {
		conductors = boundary.DefaultConductors(opt.Physics.Voltage)
	}
	bset := boundary.Build(m, boundary.Options{Conductors: conductors, RobinCoeff: opt.RobinCoeff})
	res.Unconstrained = bset.Unconstrained

	asm, err := fem.NewAssembler(m, fem.Config{
		Frequency: opt.Physics.Frequency,
		Scaling:   opt.Physics.Scaling,
		Source:    *opt.Physics.Source,
		Epsilon:   mp.Epsilon,
		Dirichlet: bset.Dirichlet(),
		Robin:     bset.Robin,
	})
	if err != nil {
		return nil, fmt.Errorf("towerfield: %w", err)
	}
	cont := solver.New(asm, mp.Sigma, solver.Options{
		SeedFactor: opt.Physics.SeedFactor,
		Solver:     opt.Solver,
		Debug:      opt.Debug,
	})
	sol, err := cont.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("towerfield: %w", err)
	}
	res.SeedReset = sol.SeedReset

	f, err := field.Compute(m, asm.Geometry(), sol.Potential)
	if err != nil {
		return nil, fmt.Errorf("towerfield: %w", err)
	}
	res.Summary = field.Summarize(f, sol.Potential)
	res.Conductor = field.ConductorDiagnostics(f.Magnitude, mp.Sigma)
	if res.Conductor == nil {
		log.Info("未找到导体单元，跳过导体诊断")
	}

	pts, err := export.Reconcile(m, asm.Geometry(), sol.Potential, f, mp)
	var filtered *export.Points
	if err == nil {
		filtered, res.Filter = export.Filter(pts, m.Bounds())
	}
	finish := now()
	res.Duration = finish.Sub(start)
	res.Metadata = metadata(res, opt, m, mp, bset, sol, start, finish)
	if err == nil {
		ds := &export.Dataset{Points: *filtered, Freq: opt.Physics.Frequency, Metadata: res.Metadata}
		e := &export.Exporter{Dir: opt.OutputDir, Stem: opt.Stem, Now: opt.Now}
		res.Path, err = e.Write(ds)
	}
	if err != nil {
		res.ExportErr = err
		log.Error("数据集导出失败", "err", err)
	}
	log.Info("计算完成",
		"max_E", res.Summary.MaxE,
		"box_air_points", humanize.Comma(int64(res.Filter.BoxAirPoints)),
		"percentage", res.Filter.Percentage,
		"duration", res.Duration)
	return res, nil
}

func metadata(res *Result, opt Options, m *mesh.Mesh, mp *material.Map, bset *boundary.Set,
	sol *solver.Result, start, finish time.Time) export.Metadata {
	seed := "converged"
	if sol.SeedReset {
		seed = "reset: " + sol.SeedErr.Error()
	}
	counts := map[string]int{}
	for id, n := range mp.Counts() {
		counts[id.String()] = n
	}
	source := m.Source
	if source == "" {
		source = opt.MeshFile
	}
	return export.Metadata{
		RunID:           res.RunID,
		Date:            start.Format(time.DateOnly),
		StartTime:       start,
		FinishTime:      finish,
		ComputationTime: finish.Sub(start).Seconds(),
		MeshFile:        source,
		Solver:          sol.Method,
		ElementOrder:    1,
		Strategy:        mp.Strategy.String(),
		Frequency:       opt.Physics.Frequency,
		MaxConductivity: opt.MaxConductivity,
		RobinAlpha:      bset.Robin.Alpha,
		RobinBeta:       bset.Robin.Beta,
		Boundary:        bset.Summary(),
		ScaleFactors: map[string]float64{
			"epsilon": opt.Physics.Scaling.Epsilon,
			"sigma":   opt.Physics.Scaling.Sigma,
			"omega":   opt.Physics.Scaling.Omega,
		},
		SeedStage: seed,
		Materials: counts,
		BoxFilter: res.Filter,
		Conductor: res.Conductor,
		Summary:   res.Summary,
	}
}

// towerfield 输电塔工频电场计算命令行
//
//	towerfield solve   [-config f] [-mesh f] [-sigma v] [-robin v] [-out dir]
//	towerfield batch   [-config f] [-root dir] [-workers n]
//	towerfield analyze [-hist f.png] dataset.npz
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"towerfield"
	"towerfield/analysis"
	"towerfield/batch"
	"towerfield/catalog"
	"towerfield/config"
	"towerfield/export"
	"towerfield/maths"
	"towerfield/mesh"
	"towerfield/solver"
	"towerfield/solver/debug"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "solve":
		err = runSolve(ctx, os.Args[2:])
	case "batch":
		err = runBatch(ctx, os.Args[2:])
	case "analyze":
		err = runAnalyze(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("执行失败", "cmd", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: towerfield <solve|batch|analyze> [flags]")
}

// loadConfig 读取配置文件，path 为空时按默认位置查找
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg   *config.Config
		found string
		err   error
	)
	if path != "" {
		cfg, found, err = config.LoadFromPath(path)
	} else {
		cfg, found, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if found != "" {
		slog.Info("已加载配置", "path", found)
	}
	maths.MaxBandEntries = cfg.Solver.MaxBandEntries
	return cfg, nil
}

// newSolver 按配置构造两级线性求解器
func newSolver(cfg *config.Config) solver.LinearSolver {
	it := solver.NewIterative()
	it.Options = maths.GMRESOptions{
		Restart: cfg.Solver.Restart,
		RelTol:  cfg.Solver.RelTol,
		AbsTol:  cfg.Solver.AbsTol,
		MaxIter: cfg.Solver.MaxIter,
	}
	return &solver.TwoTier{Primary: &solver.Direct{Limit: cfg.Solver.MaxBandEntries}, Fallback: it}
}

func physics(cfg *config.Config) towerfield.Physics {
	p := towerfield.DefaultPhysics()
	p.Frequency = cfg.Physics.Frequency
	p.Voltage = cfg.Physics.Voltage
	p.SeedFactor = cfg.Physics.SeedFactor
	return p
}

// meshFactory 配置了网格文件时返回 nil，由 Solve 自行读取
func meshFactory(cfg *config.Config) func() (*mesh.Mesh, error) {
	if cfg.Mesh.File != "" {
		return nil
	}
	s := cfg.Mesh.Synthetic
	h := s.Size / 2
	opt := towerfield.TowerMeshOptions{
		Bounds: mesh.Bounds{Min: mesh.Point{X: -h, Y: -h}, Max: mesh.Point{X: h, Y: h, Z: s.Size}},
		NX:     s.NX, NY: s.NY, NZ: s.NZ,
		Jitter: s.Jitter,
		Seed:   s.Seed,
	}
	return func() (*mesh.Mesh, error) { return towerfield.TowerMesh(opt) }
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return nil, nil
	}
	return catalog.Open(cfg.Catalog.Path)
}

// solveFlags solve 子命令参数，只有显式给出的参数才覆盖配置
type solveFlags struct {
	fs        *flag.FlagSet
	config    string
	mesh      string
	sigma     float64
	robin     float64
	out       string
	debugHTML string
}

func newSolveFlags() *solveFlags {
	f := &solveFlags{fs: flag.NewFlagSet("solve", flag.ContinueOnError)}
	f.fs.StringVar(&f.config, "config", "", "config file")
	f.fs.StringVar(&f.mesh, "mesh", "", "Gmsh mesh file (default: synthetic tower mesh)")
	f.fs.Float64Var(&f.sigma, "sigma", 0, "max conductivity (S/m)")
	f.fs.Float64Var(&f.robin, "robin", 0, "Robin coefficient, 0 gives a pure Neumann outer boundary")
	f.fs.StringVar(&f.out, "out", "", "output directory")
	f.fs.StringVar(&f.debugHTML, "debug", "", "write residual charts to this HTML file")
	return f
}

// apply 将显式设置的参数写入配置
func (f *solveFlags) apply(cfg *config.Config) error {
	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mesh":
			cfg.Mesh.File = f.mesh
		case "sigma":
			if f.sigma < 0 {
				err = fmt.Errorf("solve: negative conductivity %g", f.sigma)
			}
			cfg.Physics.MaxConductivity = f.sigma
		case "robin":
			if f.robin < 0 {
				err = fmt.Errorf("solve: negative robin coefficient %g", f.robin)
			}
			cfg.Physics.RobinCoeff = f.robin
		case "out":
			cfg.Output.Dir = f.out
		case "debug":
			cfg.Solver.DebugHTML = f.debugHTML
		}
	})
	return err
}

func runSolve(ctx context.Context, args []string) error {
	f := newSolveFlags()
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}

	opt := towerfield.Options{
		MeshFile:        cfg.Mesh.File,
		OutputDir:       cfg.Output.Dir,
		Stem:            cfg.Output.Stem,
		MaxConductivity: cfg.Physics.MaxConductivity,
		RobinCoeff:      cfg.Physics.RobinCoeff,
		Physics:         physics(cfg),
		Solver:          newSolver(cfg),
	}
	if f := meshFactory(cfg); f != nil {
		if opt.Mesh, err = f(); err != nil {
			return err
		}
	}
	var charts *debug.Charts
	if cfg.Solver.DebugHTML != "" {
		charts = &debug.Charts{}
		opt.Debug = charts
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	res, solveErr := towerfield.Solve(ctx, opt)
	if cat != nil {
		if err := cat.Record(ctx, catalog.FromResult("single", opt, res, solveErr)); err != nil {
			slog.Warn("运行记录写入失败", "err", err)
		}
	}
	if charts != nil {
		if err := writeCharts(cfg.Solver.DebugHTML, charts); err != nil {
			slog.Warn("残差曲线写出失败", "err", err)
		}
	}
	if solveErr != nil {
		return solveErr
	}
	if res.ExportErr != nil {
		return res.ExportErr
	}
	fmt.Printf("%s\n最大场强 %.3e V/m，计算区域空气点 %s (%.1f%%)，耗时 %s\n",
		res.Path, res.Summary.MaxE,
		humanize.Comma(int64(res.Filter.BoxAirPoints)), res.Filter.Percentage, res.Duration)
	return nil
}

func writeCharts(path string, c *debug.Charts) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	root := fs.String("root", "", "batch output root")
	workers := fs.Int("workers", 0, "concurrent cases")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *root != "" {
		cfg.Batch.Root = *root
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	r := &batch.Runner{
		Root:    cfg.Batch.Root,
		Workers: cfg.Batch.Workers,
		Timeout: cfg.Batch.Timeout.Duration(),
		Base: towerfield.Options{
			MeshFile: cfg.Mesh.File,
			Physics:  physics(cfg),
		},
		MeshFactory: meshFactory(cfg),
		NewSolver:   func() solver.LinearSolver { return newSolver(cfg) },
	}
	if cat != nil {
		r.OnDone = func(o batch.Outcome) {
			var err error
			if !o.Success && o.Result == nil {
				err = errors.New(o.Err)
			}
			opt := r.Base
			opt.MaxConductivity, opt.RobinCoeff = o.MaxConductivity, o.RobinCoeff
			if err := cat.Record(ctx, catalog.FromResult(o.Name, opt, o.Result, err)); err != nil {
				slog.Warn("运行记录写入失败", "case", o.Name, "err", err)
			}
		}
	}
	outcomes := r.Run(ctx, batch.DefaultCases())
	sum := batch.Summarize(outcomes)
	slog.Info("批量计算完成",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", sum.SuccessRate),
		"duration", sum.Duration)

	xlsx := filepath.Join(cfg.Batch.Root, cfg.Batch.Summary)
	if err := batch.WriteSummaryXLSX(xlsx, outcomes); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	fmt.Println(xlsx)
	if sum.Succeeded == 0 && sum.Total > 0 {
		return fmt.Errorf("all %d cases failed", sum.Total)
	}
	return nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file")
	hist := fs.String("hist", "", "histogram PNG path")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("analyze: expected one dataset path")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *hist == "" {
		*hist = cfg.Report.Histogram
	}
	path := fs.Arg(0)
	ds, err := export.Read(path)
	if err != nil {
		return err
	}
	r, err := analysis.AnalyzeDataset(ds)
	if err != nil {
		return err
	}
	r.Source = path
	if err := r.WriteText(os.Stdout); err != nil {
		return err
	}
	if *hist != "" {
		if err := analysis.PlotHistogram(ds.EMag, *hist, 50); err != nil {
			return err
		}
		slog.Info("直方图已保存", "path", *hist)
	}
	return nil
}

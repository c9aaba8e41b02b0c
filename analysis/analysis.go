// Package analysis 数据集统计与绘图
package analysis

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"towerfield/export"
	"towerfield/mesh"
)

// ErrEmpty 数据集没有点
var ErrEmpty = errors.New("analysis: empty dataset")

// 数量级统计范围 [1e-10, 1e12)
const (
	DecadeMin = -10
	DecadeMax = 12
)

// Percentiles 报告的百分位
var Percentiles = []float64{1, 5, 10, 25, 50, 75, 90, 95, 99}

// HighFieldPercentile 高场强区域阈值
var HighFieldPercentile = 95.0

// Stats 基本统计
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Std    float64 // 总体标准差
}

// Decade 一个数量级区间 [10^Exponent, 10^(Exponent+1))
type Decade struct {
	Exponent   int
	Count      int
	Percentage float64
}

// Percentile 百分位值
type Percentile struct {
	P     float64
	Value float64
}

// Extent 各轴范围
type Extent struct {
	Min, Max mesh.Point
}

// HighField 高场强区域
type HighField struct {
	Threshold  float64
	Count      int
	Percentage float64
	Extent     Extent
}

// Report 分析结果
type Report struct {
	Source      string
	Stats       Stats
	Decades     []Decade // 只含非空区间
	Percentiles []Percentile
	Extent      Extent
	HighField   *HighField // 没有点超过阈值时为 nil
}

// AnalyzeDataset 分析导出的数据集
func AnalyzeDataset(ds *export.Dataset) (*Report, error) {
	return Analyze(ds.Coordinates, ds.EMag)
}

// Analyze 统计场强分布与空间分布
func Analyze(coords []mesh.Point, emag []float64) (*Report, error) {
	if len(emag) == 0 {
		return nil, ErrEmpty
	}
	if len(coords) != len(emag) {
		return nil, fmt.Errorf("analysis: %d coordinates for %d values: %w", len(coords), len(emag), export.ErrShapeMismatch)
	}
	sorted := append([]float64(nil), emag...)
	sort.Float64s(sorted)
	r := &Report{}
	mean, std := stat.PopMeanStdDev(emag, nil)
	r.Stats = Stats{
		Count:  len(emag),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Std:    std,
		Median: quantile(sorted, 50),
	}
	for e := DecadeMin; e < DecadeMax; e++ {
		lo, hi := math.Pow(10, float64(e)), math.Pow(10, float64(e+1))
		n := 0
		for _, v := range emag {
			if v >= lo && v < hi {
				n++
			}
		}
		if n > 0 {
			r.Decades = append(r.Decades, Decade{Exponent: e, Count: n, Percentage: float64(n) / float64(len(emag)) * 100})
		}
	}
	for _, p := range Percentiles {
		r.Percentiles = append(r.Percentiles, Percentile{P: p, Value: quantile(sorted, p)})
	}
	r.Extent = extent(coords, nil)

	threshold := quantile(sorted, HighFieldPercentile)
	var high []int
	for i, v := range emag {
		if v > threshold {
			high = append(high, i)
		}
	}
	if len(high) > 0 {
		r.HighField = &HighField{
			Threshold:  threshold,
			Count:      len(high),
			Percentage: float64(len(high)) / float64(len(emag)) * 100,
			Extent:     extent(coords, high),
		}
	}
	return r, nil
}

// quantile 线性插值百分位，sorted 须已升序
func quantile(sorted []float64, p float64) float64 {
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}

func extent(coords []mesh.Point, idx []int) Extent {
	var xs, ys, zs []float64
	add := func(p mesh.Point) {
		xs, ys, zs = append(xs, p.X), append(ys, p.Y), append(zs, p.Z)
	}
	if idx == nil {
		for _, p := range coords {
			add(p)
		}
	} else {
		for _, i := range idx {
			add(coords[i])
		}
	}
	return Extent{
		Min: mesh.Point{X: floats.Min(xs), Y: floats.Min(ys), Z: floats.Min(zs)},
		Max: mesh.Point{X: floats.Max(xs), Y: floats.Max(ys), Z: floats.Max(zs)},
	}
}

// WriteText 输出文本报告
func (r *Report) WriteText(w io.Writer) error {
	p := &printer{w: w}
	if r.Source != "" {
		p.printf("数据集: %s\n", r.Source)
	}
	s := r.Stats
	p.printf("\n电场强度分布\n")
	p.printf("数据点数: %s\n", humanize.Comma(int64(s.Count)))
	p.printf("最小值: %.2e V/m\n", s.Min)
	p.printf("最大值: %.2e V/m\n", s.Max)
	p.printf("平均值: %.2e V/m\n", s.Mean)
	p.printf("中位数: %.2e V/m\n", s.Median)
	p.printf("标准差: %.2e V/m\n", s.Std)
	p.printf("\n数量级分布:\n")
	for _, d := range r.Decades {
		p.printf("  1e%2d - 1e%2d: %8d 点 (%5.2f%%)\n", d.Exponent, d.Exponent+1, d.Count, d.Percentage)
	}
	p.printf("\n百分位数:\n")
	for _, q := range r.Percentiles {
		p.printf("  %2.0f%%: %.2e V/m\n", q.P, q.Value)
	}
	e := r.Extent
	p.printf("\n空间范围:\n")
	p.printf("  X: [%.1f, %.1f] m\n", e.Min.X, e.Max.X)
	p.printf("  Y: [%.1f, %.1f] m\n", e.Min.Y, e.Max.Y)
	p.printf("  Z: [%.1f, %.1f] m\n", e.Min.Z, e.Max.Z)
	if h := r.HighField; h != nil {
		p.printf("\n高场强区域 (>%.2e V/m): %d 点 (%.1f%%)\n", h.Threshold, h.Count, h.Percentage)
		p.printf("  X: [%.1f, %.1f] m\n", h.Extent.Min.X, h.Extent.Max.X)
		p.printf("  Y: [%.1f, %.1f] m\n", h.Extent.Min.Y, h.Extent.Max.Y)
		p.printf("  Z: [%.1f, %.1f] m\n", h.Extent.Min.Z, h.Extent.Max.Z)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

// PlotHistogram 绘制 log10|E| 直方图，非正值被忽略
func PlotHistogram(emag []float64, path string, bins int) error {
	var vs plotter.Values
	for _, v := range emag {
		if v > 0 && !math.IsInf(v, 0) {
			vs = append(vs, math.Log10(v))
		}
	}
	if len(vs) == 0 {
		return ErrEmpty
	}
	if bins <= 0 {
		bins = 50
	}
	p := plot.New()
	p.Title.Text = "log10 |E| distribution"
	p.X.Label.Text = "log10 |E| [V/m]"
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(vs, bins)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	p.Add(h, plotter.NewGrid())
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}

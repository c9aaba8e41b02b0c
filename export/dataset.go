// Package export 将求解结果整理到网格节点并写出数据集
package export

import (
	"errors"
	"fmt"
	"time"

	"towerfield/field"
	"towerfield/material"
	"towerfield/mesh"
	"towerfield/solver"
)

// 导出错误定义
var (
	ErrShapeMismatch = errors.New("export: inconsistent array shapes")
	ErrEmptyDataset  = errors.New("export: no points left after filtering")
)

// MarginFraction 包围盒过滤边距占各轴长度的比例
var MarginFraction = 0.01

// Points 按节点对齐的数据
type Points struct {
	Coordinates []mesh.Point
	PhiReal     []float64
	PhiImag     []float64
	EReal       []mesh.Point
	EImag       []mesh.Point
	EMag        []float64
	Epsilon     []float64
	Sigma       []float64
}

// Len 点数
func (p *Points) Len() int { return len(p.Coordinates) }

// Validate 检查所有数组长度一致
func (p *Points) Validate() error {
	n := p.Len()
	lens := map[string]int{
		"phi_real": len(p.PhiReal),
		"phi_imag": len(p.PhiImag),
		"E_real":   len(p.EReal),
		"E_imag":   len(p.EImag),
		"E_mag":    len(p.EMag),
		"epsilon":  len(p.Epsilon),
		"sigma":    len(p.Sigma),
	}
	for name, l := range lens {
		if l != n {
			return fmt.Errorf("%s has %d values for %d points: %w", name, l, n, ErrShapeMismatch)
		}
	}
	return nil
}

func (p *Points) subset(keep []int) *Points {
	out := &Points{
		Coordinates: make([]mesh.Point, len(keep)),
		PhiReal:     make([]float64, len(keep)),
		PhiImag:     make([]float64, len(keep)),
		EReal:       make([]mesh.Point, len(keep)),
		EImag:       make([]mesh.Point, len(keep)),
		EMag:        make([]float64, len(keep)),
		Epsilon:     make([]float64, len(keep)),
		Sigma:       make([]float64, len(keep)),
	}
	for k, i := range keep {
		out.Coordinates[k] = p.Coordinates[i]
		out.PhiReal[k], out.PhiImag[k] = p.PhiReal[i], p.PhiImag[i]
		out.EReal[k], out.EImag[k] = p.EReal[i], p.EImag[i]
		out.EMag[k] = p.EMag[i]
		out.Epsilon[k], out.Sigma[k] = p.Epsilon[i], p.Sigma[i]
	}
	return out
}

// Reconcile 将单元量按体积加权平均到节点，并在节点上重新计算 |E|
// 电位本身为节点量，直接复制
func Reconcile(m *mesh.Mesh, geo []mesh.Tetra, p solver.Potential, f *field.Field, mp *material.Map) (*Points, error) {
	nc, nn := m.NumCells(), m.NumNodes()
	if len(geo) != nc || len(f.Real) != nc || len(f.Imag) != nc || len(mp.Epsilon) != nc || len(mp.Sigma) != nc {
		return nil, fmt.Errorf("reconcile cell data: %w", ErrShapeMismatch)
	}
	if len(p.Real) != nn || len(p.Imag) != nn {
		return nil, fmt.Errorf("reconcile potential: %w", ErrShapeMismatch)
	}
	out := &Points{
		Coordinates: append([]mesh.Point(nil), m.Nodes...),
		PhiReal:     append([]float64(nil), p.Real...),
		PhiImag:     append([]float64(nil), p.Imag...),
		EReal:       make([]mesh.Point, nn),
		EImag:       make([]mesh.Point, nn),
		EMag:        make([]float64, nn),
		Epsilon:     make([]float64, nn),
		Sigma:       make([]float64, nn),
	}
	weight := make([]float64, nn)
	for c, cell := range m.Cells {
		w := geo[c].Volume
		for _, v := range cell {
			weight[v] += w
			out.EReal[v].X += w * f.Real[c].X
			out.EReal[v].Y += w * f.Real[c].Y
			out.EReal[v].Z += w * f.Real[c].Z
			out.EImag[v].X += w * f.Imag[c].X
			out.EImag[v].Y += w * f.Imag[c].Y
			out.EImag[v].Z += w * f.Imag[c].Z
			out.Epsilon[v] += w * mp.Epsilon[c]
			out.Sigma[v] += w * mp.Sigma[c]
		}
	}
	for v, w := range weight {
		if w > 0 {
			s := 1 / w
			out.EReal[v] = mesh.Point{X: out.EReal[v].X * s, Y: out.EReal[v].Y * s, Z: out.EReal[v].Z * s}
			out.EImag[v] = mesh.Point{X: out.EImag[v].X * s, Y: out.EImag[v].Y * s, Z: out.EImag[v].Z * s}
			out.Epsilon[v] *= s
			out.Sigma[v] *= s
		}
		out.EMag[v] = field.Magnitude(out.EReal[v], out.EImag[v])
	}
	return out, nil
}

// FilterStats 过滤统计
type FilterStats struct {
	TotalPoints  int        `json:"total_points"`
	BoxPoints    int        `json:"box_points"`
	BoxAirPoints int        `json:"box_air_points"`
	Percentage   float64    `json:"percentage"`
	Margin       [3]float64 `json:"margin"`
}

// Filter 两级过滤
//  1. 保留严格位于 [min+margin, max−margin] 内的点，margin 为各轴长度的 MarginFraction
//  2. 保留 σ < material.Threshold 的非导体点
func Filter(p *Points, b mesh.Bounds) (*Points, FilterStats) {
	e := b.Extent()
	inner := b.Shrink(MarginFraction)
	stats := FilterStats{
		TotalPoints: p.Len(),
		Margin:      [3]float64{e.X * MarginFraction, e.Y * MarginFraction, e.Z * MarginFraction},
	}
	var keep []int
	for i, c := range p.Coordinates {
		if !inner.ContainsStrict(c) {
			continue
		}
		stats.BoxPoints++
		if p.Sigma[i] < material.Threshold {
			keep = append(keep, i)
		}
	}
	stats.BoxAirPoints = len(keep)
	if stats.TotalPoints > 0 {
		stats.Percentage = float64(stats.BoxAirPoints) / float64(stats.TotalPoints) * 100
	}
	return p.subset(keep), stats
}

// Metadata 数据集元信息
type Metadata struct {
	RunID           string                `json:"run_id"`
	Date            string                `json:"date"`
	StartTime       time.Time             `json:"start_time"`
	FinishTime      time.Time             `json:"finish_time"`
	ComputationTime float64               `json:"computation_time"` // 秒
	MeshFile        string                `json:"mesh_file"`
	Solver          string                `json:"solver"`
	ElementOrder    int                   `json:"element_order"`
	Strategy        string                `json:"strategy"`
	Frequency       float64               `json:"frequency"`
	MaxConductivity float64               `json:"max_conductivity"`
	RobinAlpha      float64               `json:"robin_alpha"`
	RobinBeta       float64               `json:"robin_beta"`
	Boundary        map[string]any        `json:"boundary_conditions"`
	ScaleFactors    map[string]float64    `json:"scale_factors"`
	SeedStage       string                `json:"seed_stage"`
	Materials       map[string]int        `json:"material_cells"`
	BoxFilter       FilterStats           `json:"box_filter_info"`
	Conductor       *field.ConductorStats `json:"conductor_stats,omitempty"`
	Summary         field.Summary         `json:"summary"`
}

// Dataset 一次计算导出的数据
type Dataset struct {
	Points
	Freq     float64
	Metadata Metadata
}

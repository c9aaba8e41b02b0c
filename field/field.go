// Package field 由电位计算电场
package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"towerfield/material"
	"towerfield/mesh"
	"towerfield/solver"
)

// Field 单元电场 E = −∇u
type Field struct {
	Real      []mesh.Point
	Imag      []mesh.Point
	Magnitude []float64
}

// Compute 按单元常梯度计算实部与虚部电场
func Compute(m *mesh.Mesh, geo []mesh.Tetra, p solver.Potential) (*Field, error) {
	if len(geo) != m.NumCells() {
		return nil, fmt.Errorf("field: %d cell geometries for %d cells", len(geo), m.NumCells())
	}
	if len(p.Real) != m.NumNodes() || len(p.Imag) != m.NumNodes() {
		return nil, fmt.Errorf("field: potential has %d/%d values for %d nodes", len(p.Real), len(p.Imag), m.NumNodes())
	}
	f := &Field{
		Real:      make([]mesh.Point, m.NumCells()),
		Imag:      make([]mesh.Point, m.NumCells()),
		Magnitude: make([]float64, m.NumCells()),
	}
	for c, cell := range m.Cells {
		var re, im r3.Vec
		for i, v := range cell {
			g := geo[c].Grad[i]
			re = r3.Add(re, r3.Scale(-p.Real[v], g))
			im = r3.Add(im, r3.Scale(-p.Imag[v], g))
		}
		f.Real[c], f.Imag[c] = re, im
		f.Magnitude[c] = Magnitude(re, im)
	}
	return f, nil
}

// MagnitudeFromSquared sqrt(max(s, 0))，NaN 视为 0
func MagnitudeFromSquared(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	return math.Sqrt(s)
}

// Magnitude 复电场模 sqrt(|E_re|² + |E_im|²)
// 平方和溢出时按分量逐次求 hypot，结果总是有限且非负
func Magnitude(re, im mesh.Point) float64 {
	s := r3.Norm2(re) + r3.Norm2(im)
	if !math.IsInf(s, 1) {
		return MagnitudeFromSquared(s)
	}
	h := 0.0
	for _, v := range [...]float64{re.X, re.Y, re.Z, im.X, im.Y, im.Z} {
		if math.IsNaN(v) {
			continue
		}
		h = math.Hypot(h, v)
	}
	if math.IsInf(h, 0) {
		return math.MaxFloat64
	}
	return h
}

// ConductorStats 导体内部电场诊断
type ConductorStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_E"`
	Max   float64 `json:"max_E"`
}

// ConductorDiagnostics 统计 σ > material.Threshold 的点上的 |E|
// 下标限制在两个数组的公共范围内，没有导体点时返回 nil
func ConductorDiagnostics(mag, sigma []float64) *ConductorStats {
	n := min(len(mag), len(sigma))
	var s ConductorStats
	sum := 0.0
	for i := 0; i < n; i++ {
		if sigma[i] <= material.Threshold {
			continue
		}
		s.Count++
		sum += mag[i]
		s.Max = math.Max(s.Max, mag[i])
	}
	if s.Count == 0 {
		return nil
	}
	s.Mean = sum / float64(s.Count)
	return &s
}

// Summary 运行摘要
type Summary struct {
	MaxE       float64 `json:"max_E"`
	MaxPhiReal float64 `json:"max_phi_real"`
	MaxPhiImag float64 `json:"max_phi_imag"`
}

// Summarize 计算最大场强与最大电位绝对值
func Summarize(f *Field, p solver.Potential) Summary {
	var s Summary
	for _, v := range f.Magnitude {
		s.MaxE = math.Max(s.MaxE, v)
	}
	for _, v := range p.Real {
		s.MaxPhiReal = math.Max(s.MaxPhiReal, math.Abs(v))
	}
	for _, v := range p.Imag {
		s.MaxPhiImag = math.Max(s.MaxPhiImag, math.Abs(v))
	}
	return s
}

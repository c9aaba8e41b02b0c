package fem

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"towerfield/mesh"
)

// Source 高斯稳定化源项（实部），虚部为零
type Source struct {
	Amplitude     float64 // 峰值 (V)
	WidthFraction float64 // 宽度 / 包围盒最小尺寸
}

// DefaultSource 幅值 100，宽度取最小尺寸的 10%
func DefaultSource() Source {
	return Source{Amplitude: 100, WidthFraction: 0.1}
}

// Interpolate 在网格节点上取值，中心为包围盒中心
func (s Source) Interpolate(m *mesh.Mesh) []float64 {
	out := make([]float64, m.NumNodes())
	if s.Amplitude == 0 {
		return out
	}
	b := m.Bounds()
	center := b.Center()
	width := s.WidthFraction * b.MinExtent()
	if width <= 0 {
		return out
	}
	for i, p := range m.Nodes {
		r2 := r3.Norm2(r3.Sub(p, center))
		out[i] = s.Amplitude * math.Exp(-r2/(2*width*width))
	}
	return out
}

// Package fem 组装相量电位的线性有限元方程
//
// 实部与虚部方程：
//
//	∇·(ε∇u_re) − ωσ·u_im = f_re
//	∇·(ε∇u_im) + ωσ·u_re = f_im
//
// K 为刚度与 Robin 项，C = ωσ·M 为电导率质量矩阵。
// 两个分量各自求解一个独立系统，电导率进入系数矩阵：
//
//	(K − C)·u_re = f_re
//	(K + C)·u_im = f_im
//
// Dirichlet 节点在两个系统中均为单位行。
package fem

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/spatial/r3"

	"towerfield/boundary"
	"towerfield/maths"
	"towerfield/mesh"
)

// Scaling 条件数缩放常数，电位本身不缩放
type Scaling struct {
	Epsilon float64
	Sigma   float64
	Omega   float64
}

// DefaultScaling ε×1e8, σ×1e-5, ω×1e-2
func DefaultScaling() Scaling {
	return Scaling{Epsilon: 1e8, Sigma: 1e-5, Omega: 1e-2}
}

// Config 组装参数
type Config struct {
	Frequency float64   // Hz
	Scaling   Scaling
	Source    Source    // 稳定化源项
	Epsilon   []float64 // 单元介电常数（未缩放）
	Dirichlet []boundary.Constraint
	Robin     boundary.RobinSpec
}

// Assembler 方程组装器
// 与电导率无关的部分在构造时一次组装
type Assembler struct {
	mesh      *mesh.Mesh
	geo       []mesh.Tetra
	cfg       Config
	omega     float64 // 缩放后的角频率
	stiffness *maths.SparseMatrix
	load      []float64
	fixed     []bool // 单位行（孤立节点与 Dirichlet 节点）
}

// NewAssembler 组装刚度矩阵、Robin 项、源项并施加Dirichlet行替换
func NewAssembler(m *mesh.Mesh, cfg Config) (*Assembler, error) {
	if len(cfg.Epsilon) != m.NumCells() {
		return nil, fmt.Errorf("fem: %d permittivity values for %d cells", len(cfg.Epsilon), m.NumCells())
	}
	geo, err := m.Geometry()
	if err != nil {
		return nil, fmt.Errorf("fem: %w", err)
	}
	a := &Assembler{
		mesh:  m,
		geo:   geo,
		cfg:   cfg,
		omega: 2 * math.Pi * cfg.Frequency * cfg.Scaling.Omega,
	}
	n := m.NumNodes()
	b := maths.NewBuilder(n, n)
	for c, cell := range m.Cells {
		eps := cfg.Epsilon[c] * cfg.Scaling.Epsilon
		t := geo[c]
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				b.Increment(cell[i], cell[j], eps*t.Volume*r3.Dot(t.Grad[i], t.Grad[j]))
			}
		}
	}
	if cfg.Robin.Valid {
		if err := a.robin(b); err != nil {
			return nil, err
		}
	}
	a.stiffness = b.Build()
	a.load = a.massApply(cfg.Source.Interpolate(m))

	// 孤立节点与Dirichlet节点采用单位行
	a.fixed = make([]bool, n)
	diag := a.stiffness.Diagonal()
	for i, d := range diag {
		if d == 0 {
			a.stiffness.ReplaceRow(i, 1)
			a.load[i] = 0
			a.fixed[i] = true
		}
	}
	for _, c := range cfg.Dirichlet {
		a.stiffness.ReplaceRow(c.Node, 1)
		a.fixed[c.Node] = true
	}
	slog.Info("刚度矩阵组装完成",
		"dofs", humanize.Comma(int64(n)),
		"nnz", humanize.Comma(int64(a.stiffness.NonZeroCount())),
		"dirichlet", len(cfg.Dirichlet))
	return a, nil
}

// robin 外边界项 ∫(α·u·v + β·(∇u·n)·v) ds
// ∇u 取相邻单元的常梯度，n 为背离单元的外法向
func (a *Assembler) robin(b *maths.Builder) error {
	m := a.mesh
	owners, err := m.FacetOwners()
	if err != nil {
		return fmt.Errorf("fem: robin: %w", err)
	}
	alpha, beta := a.cfg.Robin.Alpha, a.cfg.Robin.Beta
	for _, f := range m.FacetsWithTag(a.cfg.Robin.BoundaryID) {
		facet := m.Facets[f]
		p0, p1, p2 := m.Nodes[facet[0]], m.Nodes[facet[1]], m.Nodes[facet[2]]
		area, normal := mesh.TriangleArea(p0, p1, p2)
		if area == 0 {
			continue
		}
		o := owners[f]
		cell := m.Cells[o.Cell]
		opposite := m.Nodes[cell[o.Opposite]]
		if r3.Dot(normal, r3.Sub(p0, opposite)) < 0 {
			normal = r3.Scale(-1, normal)
		}
		// 面上质量矩阵 area/12·(1+δij)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				w := area / 12
				if i == j {
					w *= 2
				}
				b.Increment(facet[i], facet[j], alpha*w)
			}
		}
		// 梯度项：∫φ_i ds = area/3
		t := a.geo[o.Cell]
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				b.Increment(facet[i], cell[j], beta*r3.Dot(t.Grad[j], normal)*area/3)
			}
		}
	}
	return nil
}

// massApply 计算 M·f，M 为单位系数的一致质量矩阵
func (a *Assembler) massApply(f []float64) []float64 {
	out := make([]float64, a.mesh.NumNodes())
	for c, cell := range a.mesh.Cells {
		w := a.geo[c].Volume / 20
		sum := 0.0
		for _, v := range cell {
			sum += f[v]
		}
		for _, v := range cell {
			out[v] += w * (sum + f[v])
		}
	}
	return out
}

// Stiffness 与电导率无关的算子 K
func (a *Assembler) Stiffness() *maths.SparseMatrix { return a.stiffness }

// Geometry 单元几何量
func (a *Assembler) Geometry() []mesh.Tetra { return a.geo }

// Assemble 按给定电导率生成实部与虚部系数矩阵
func (a *Assembler) Assemble(sigma []float64) (*Pair, error) {
	m := a.mesh
	if len(sigma) != m.NumCells() {
		return nil, fmt.Errorf("fem: %d conductivity values for %d cells", len(sigma), m.NumCells())
	}
	n := m.NumNodes()
	b := maths.NewBuilder(n, n)
	for c, cell := range m.Cells {
		s := sigma[c] * a.cfg.Scaling.Sigma * a.omega
		if s == 0 {
			continue
		}
		w := s * a.geo[c].Volume / 20
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				if i == j {
					b.Increment(cell[i], cell[j], 2*w)
				} else {
					b.Increment(cell[i], cell[j], w)
				}
			}
		}
	}
	coupling := b.Build()
	// 单位行不参与耦合
	for i, ok := range a.fixed {
		if ok {
			coupling.ReplaceRow(i, 0)
		}
	}
	p := &Pair{
		C:    coupling,
		A:    [2]*maths.SparseMatrix{maths.AddScaled(a.stiffness, -1, coupling), maths.AddScaled(a.stiffness, 1, coupling)},
		Load: [2][]float64{append([]float64(nil), a.load...), make([]float64, n)},
	}
	for _, c := range a.cfg.Dirichlet {
		p.Load[Real][c.Node] = c.Real
		p.Load[Imag][c.Node] = c.Imag
	}
	return p, nil
}

// Part 相量分量
type Part int

const (
	Real Part = iota
	Imag
)

func (p Part) String() string {
	if p == Real {
		return "real"
	}
	return "imag"
}

// Pair 一组实部/虚部系统，Load 已写入 Dirichlet 约束值
type Pair struct {
	A    [2]*maths.SparseMatrix
	C    *maths.SparseMatrix
	Load [2][]float64
}

// Matrix 分量的系数矩阵
func (p *Pair) Matrix(part Part) *maths.SparseMatrix { return p.A[part] }

// RHS 分量的右端（副本）
func (p *Pair) RHS(part Part) []float64 {
	return append([]float64(nil), p.Load[part]...)
}

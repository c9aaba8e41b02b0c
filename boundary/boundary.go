package boundary

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"towerfield/mesh"
)

// 边界标识与默认参数
var (
	NominalVoltage = 120e3 // 相对地峰值电压 (V)
	BoxBoundaryID  = 10    // 外边界
	ScanMin        = 1     // 扫描范围下限
	ScanMax        = 24    // 扫描范围上限
	RobinAlpha     = 1.0
)

// Phasor 相量
type Phasor struct {
	Magnitude float64
	Angle     float64 // 弧度
}

// Real 实部 V·cosθ
func (p Phasor) Real() float64 { return p.Magnitude * math.Cos(p.Angle) }

// Imag 虚部 V·sinθ
func (p Phasor) Imag() float64 { return p.Magnitude * math.Sin(p.Angle) }

// ConductorSpec 导体边界条件
type ConductorSpec struct {
	Name       string
	BoundaryID int
	Phasor     Phasor
	Valid      bool  // 网格上存在该边界
	Nodes      []int // 受约束节点
}

// DefaultConductors 塔身接地，上下两组三相导线
func DefaultConductors(voltage float64) []ConductorSpec {
	third := 2 * math.Pi / 3
	return []ConductorSpec{
		{Name: "Tower", BoundaryID: 17, Phasor: Phasor{}},
		{Name: "PhaseA", BoundaryID: 11, Phasor: Phasor{voltage, 0}},
		{Name: "PhaseB", BoundaryID: 12, Phasor: Phasor{voltage, third}},
		{Name: "PhaseC", BoundaryID: 13, Phasor: Phasor{voltage, 2 * third}},
		{Name: "Phasea", BoundaryID: 14, Phasor: Phasor{voltage, 0}},
		{Name: "Phaseb", BoundaryID: 15, Phasor: Phasor{voltage, third}},
		{Name: "Phasec", BoundaryID: 16, Phasor: Phasor{voltage, 2 * third}},
	}
}

// RobinSpec 外边界 Robin 条件 ∫(α·u·v + β·(∇u·n)·v) ds
type RobinSpec struct {
	BoundaryID int
	Alpha      float64
	Beta       float64
	Valid      bool
}

// Constraint 节点Dirichlet值
type Constraint struct {
	Node       int
	Real, Imag float64
}

// Options 构建参数
type Options struct {
	Conductors []ConductorSpec // 为空时使用 DefaultConductors(NominalVoltage)
	RobinCoeff float64
	BoxID      int // 为 0 时使用 BoxBoundaryID
	ScanMin    int
	ScanMax    int
}

// Set 一次计算的全部边界条件
type Set struct {
	Conductors    []ConductorSpec
	Robin         RobinSpec
	TagCounts     map[int]int // 边界编号 -> 自由度数量
	Unconstrained []string    // 网格上缺失的导体
}

// CountTags 统计 [lo, hi] 范围内每个边界编号上的自由度数量，零计数的编号不返回
func CountTags(m *mesh.Mesh, lo, hi int) map[int]int {
	out := map[int]int{}
	for id := lo; id <= hi; id++ {
		if n := len(m.FacetNodes(id)); n > 0 {
			out[id] = n
		}
	}
	return out
}

// Build 探测边界编号并生成导体约束与Robin条件
// 缺失的导体被省略并记录，不视为错误
func Build(m *mesh.Mesh, opt Options) *Set {
	lo, hi := opt.ScanMin, opt.ScanMax
	if lo == 0 && hi == 0 {
		lo, hi = ScanMin, ScanMax
	}
	specs := opt.Conductors
	if specs == nil {
		specs = DefaultConductors(NominalVoltage)
	}
	box := opt.BoxID
	if box == 0 {
		box = BoxBoundaryID
	}
	s := &Set{TagCounts: CountTags(m, lo, hi)}
	for _, c := range specs {
		c.Nodes = nil
		c.Valid = false
		if s.TagCounts[c.BoundaryID] > 0 {
			c.Valid = true
			c.Nodes = m.FacetNodes(c.BoundaryID)
		} else {
			s.Unconstrained = append(s.Unconstrained, c.Name)
		}
		s.Conductors = append(s.Conductors, c)
	}
	s.Robin = RobinSpec{BoundaryID: box, Alpha: RobinAlpha, Beta: opt.RobinCoeff, Valid: s.TagCounts[box] > 0}
	if len(s.Unconstrained) > 0 {
		slog.Warn("导体边界缺失，已省略约束", "conductors", s.Unconstrained)
	}
	if !s.Robin.Valid {
		slog.Warn("外边界缺失，Robin 条件不生效", "boundary", box)
	}
	return s
}

// Valid 有效导体
func (s *Set) Valid() []ConductorSpec {
	var out []ConductorSpec
	for _, c := range s.Conductors {
		if c.Valid {
			out = append(out, c)
		}
	}
	return out
}

// Dirichlet 节点约束（按节点升序），多个导体共享的节点取列表中靠前者
func (s *Set) Dirichlet() []Constraint {
	seen := map[int]bool{}
	var out []Constraint
	for _, c := range s.Conductors {
		if !c.Valid {
			continue
		}
		re, im := c.Phasor.Real(), c.Phasor.Imag()
		for _, n := range c.Nodes {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, Constraint{Node: n, Real: re, Imag: im})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Summary 边界条件摘要，写入数据集元信息
func (s *Set) Summary() map[string]any {
	conductors := map[string]any{}
	for _, c := range s.Conductors {
		conductors[c.Name] = map[string]any{
			"boundary_id": c.BoundaryID,
			"valid":       c.Valid,
			"dofs":        len(c.Nodes),
			"magnitude":   c.Phasor.Magnitude,
			"angle_deg":   c.Phasor.Angle * 180 / math.Pi,
			"real":        c.Phasor.Real(),
			"imag":        c.Phasor.Imag(),
		}
	}
	counts := map[string]int{}
	for id, n := range s.TagCounts {
		counts[fmt.Sprint(id)] = n
	}
	return map[string]any{
		"conductors":    conductors,
		"unconstrained": s.Unconstrained,
		"tag_counts":    counts,
		"robin": map[string]any{
			"boundary_id": s.Robin.BoundaryID,
			"alpha":       s.Robin.Alpha,
			"beta":        s.Robin.Beta,
			"valid":       s.Robin.Valid,
		},
	}
}

package material

import (
	"math"
	"sort"

	"towerfield/mesh"
)

// 几何布局比例（相对包围盒）
var (
	TowerWidthFraction     = 0.6  // 塔身宽度 / min(xs, ys)
	TowerHeightFraction    = 0.3  // 塔顶高于中心 zs 的比例
	TransitionFraction     = 0.08 // 过渡宽度 / min(xs, ys)
	UpperPhaseDrop         = 0.2  // 上层导线低于 zmax 的 zs 比例
	PhaseSpacingFraction   = 1.0 / 6.0
	WireRadiusFraction     = 0.03
	InsulatorWidthFraction = 0.05
	InsulatorHeightRatio   = 0.3 // 绝缘子高度 / (导线高度 - 塔顶)
	InsulatorMinHeight     = 0.1 // 绝缘子最小高度 / zs
	RampSharpness          = 8.0
)

// Ramp 平滑指示函数：0.5 + 0.5·tanh(k·(half - d)/transition)
// d 为到中心的距离，half 为半宽
// transition 非正时退化为阶跃
func Ramp(d, half, transition float64) float64 {
	if transition <= 0 {
		if d <= half {
			return 1
		}
		return 0
	}
	return 0.5 + 0.5*math.Tanh(RampSharpness*(half-d)/transition)
}

// Shape 区域形状
type Shape interface {
	// Indicator 返回 [0,1] 的隶属度
	Indicator(p mesh.Point) float64
}

// Cuboid 轴对齐长方体，Soft 指定该轴是否使用平滑过渡
type Cuboid struct {
	Center     mesh.Point
	Half       mesh.Point
	Soft       [3]bool
	Transition float64
}

// Indicator 各轴隶属度相乘
func (c Cuboid) Indicator(p mesh.Point) float64 {
	d := [3]float64{math.Abs(p.X - c.Center.X), math.Abs(p.Y - c.Center.Y), math.Abs(p.Z - c.Center.Z)}
	h := [3]float64{c.Half.X, c.Half.Y, c.Half.Z}
	v := 1.0
	for i := range d {
		if c.Soft[i] {
			v *= Ramp(d[i], h[i], c.Transition)
		} else if d[i] > h[i] {
			return 0
		}
	}
	return v
}

// CylinderY 沿 y 轴的圆柱导线
type CylinderY struct {
	X, Z       float64
	Radius     float64
	Transition float64
}

// Indicator 径向平滑过渡
func (c CylinderY) Indicator(p mesh.Point) float64 {
	return Ramp(math.Hypot(p.X-c.X, p.Z-c.Z), c.Radius, c.Transition)
}

// Region 带优先级的材料区域，数值越小越优先
type Region struct {
	Material ID
	Priority int
	Shape    Shape
}

// 区域优先级：导体 > 绝缘子 > 塔身 > 空气
const (
	PriorityConductor = iota
	PriorityInsulator
	PriorityTower
)

// Layout 有序区域列表，点按首个隶属度 ≥ 0.5 的区域归类，否则为空气
type Layout struct {
	Regions []Region
}

// NewLayout 按优先级稳定排序
func NewLayout(regions ...Region) *Layout {
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Priority < regions[j].Priority })
	return &Layout{Regions: regions}
}

// At 分类任意空间点
func (l *Layout) At(p mesh.Point) ID {
	for _, r := range l.Regions {
		if r.Shape.Indicator(p) >= 0.5 {
			return r.Material
		}
	}
	return Air
}

// TowerGeometry 由包围盒推断的塔与导线尺寸
type TowerGeometry struct {
	Bounds     mesh.Bounds
	Transition float64
	TowerTop   float64
	TowerHalf  float64
	UpperZ     float64
	LowerZ     float64
	PhaseX     [3]float64
	WireRadius float64
	InsHalf    float64
	InsHeight  float64
}

// NewTowerGeometry 计算默认比例下的几何尺寸
func NewTowerGeometry(b mesh.Bounds) TowerGeometry {
	e, c := b.Extent(), b.Center()
	minXY := math.Min(e.X, e.Y)
	g := TowerGeometry{
		Bounds:     b,
		Transition: TransitionFraction * minXY,
		TowerTop:   c.Z + TowerHeightFraction*e.Z,
		TowerHalf:  0.5 * TowerWidthFraction * minXY,
		UpperZ:     b.Max.Z - UpperPhaseDrop*e.Z,
		LowerZ:     c.Z,
		WireRadius: WireRadiusFraction * minXY,
		InsHalf:    0.5 * InsulatorWidthFraction * minXY,
	}
	for i := range g.PhaseX {
		g.PhaseX[i] = c.X + float64(i-1)*PhaseSpacingFraction*e.X
	}
	// 默认比例下导线高度与塔顶重合，取最小高度
	g.InsHeight = math.Max(InsulatorHeightRatio*(g.UpperZ-g.TowerTop), InsulatorMinHeight*e.Z)
	return g
}

// Layout 生成带优先级的区域布局
func (g TowerGeometry) Layout() *Layout {
	b, c := g.Bounds, g.Bounds.Center()
	upper := [3]ID{PhaseA, PhaseB, PhaseC}
	lower := [3]ID{Phasea, Phaseb, Phasec}
	var regions []Region
	for i, x := range g.PhaseX {
		regions = append(regions,
			Region{Material: upper[i], Priority: PriorityConductor,
				Shape: CylinderY{X: x, Z: g.UpperZ, Radius: g.WireRadius, Transition: g.Transition}},
			Region{Material: lower[i], Priority: PriorityConductor,
				Shape: CylinderY{X: x, Z: g.LowerZ, Radius: g.WireRadius, Transition: g.Transition}},
		)
		if g.InsHeight > 0 {
			regions = append(regions, Region{Material: Insulator, Priority: PriorityInsulator,
				Shape: Cuboid{
					Center:     mesh.Point{X: x, Y: c.Y, Z: g.TowerTop + g.InsHeight/2},
					Half:       mesh.Point{X: g.InsHalf, Y: g.InsHalf, Z: g.InsHeight / 2},
					Soft:       [3]bool{true, true, false},
					Transition: g.Transition,
				}})
		}
	}
	regions = append(regions, Region{Material: Tower, Priority: PriorityTower,
		Shape: Cuboid{
			Center:     mesh.Point{X: c.X, Y: c.Y, Z: (b.Min.Z + g.TowerTop) / 2},
			Half:       mesh.Point{X: g.TowerHalf, Y: g.TowerHalf, Z: (g.TowerTop - b.Min.Z) / 2},
			Soft:       [3]bool{true, true, false},
			Transition: g.Transition,
		}})
	return NewLayout(regions...)
}

// DefaultLayout 由包围盒推断默认塔布局
func DefaultLayout(b mesh.Bounds) *Layout {
	return NewTowerGeometry(b).Layout()
}

package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// 网格错误定义
var (
	ErrNotFound          = errors.New("mesh: file not found")
	ErrUnsupportedFormat = errors.New("mesh: unsupported format")
	ErrInvalid           = errors.New("mesh: invalid mesh")
	ErrDegenerateCell    = errors.New("mesh: degenerate cell")
)

// Point 空间坐标
type Point = r3.Vec

// Bounds 轴对齐包围盒
type Bounds struct {
	Min, Max Point
}

// Extent 各轴尺寸
func (b Bounds) Extent() Point { return r3.Sub(b.Max, b.Min) }

// Center 中心点
func (b Bounds) Center() Point { return r3.Scale(0.5, r3.Add(b.Min, b.Max)) }

// MinExtent 最小轴尺寸
func (b Bounds) MinExtent() float64 {
	e := b.Extent()
	return math.Min(e.X, math.Min(e.Y, e.Z))
}

// Shrink 每轴向内收缩 frac·尺寸
func (b Bounds) Shrink(frac float64) Bounds {
	m := r3.Scale(frac, b.Extent())
	return Bounds{Min: r3.Add(b.Min, m), Max: r3.Sub(b.Max, m)}
}

// ContainsStrict 严格位于盒内（不含边界）
func (b Bounds) ContainsStrict(p Point) bool {
	return p.X > b.Min.X && p.X < b.Max.X &&
		p.Y > b.Min.Y && p.Y < b.Max.Y &&
		p.Z > b.Min.Z && p.Z < b.Max.Z
}

// Mesh 线性四面体网格
// CellLabels 为空表示网格不携带区域标签
type Mesh struct {
	Nodes       []Point
	Cells       [][4]int
	CellLabels  []int
	Facets      [][3]int
	FacetTags   []int
	RegionNames map[int]string // 物理组编号到名称
	Source      string         // 来源描述（文件路径或生成器）
}

// NumNodes 节点数量
func (m *Mesh) NumNodes() int { return len(m.Nodes) }

// NumCells 单元数量
func (m *Mesh) NumCells() int { return len(m.Cells) }

// HasLabels 是否携带区域标签
func (m *Mesh) HasLabels() bool { return len(m.CellLabels) > 0 }

// Bounds 计算包围盒
func (m *Mesh) Bounds() Bounds {
	if len(m.Nodes) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: m.Nodes[0], Max: m.Nodes[0]}
	for _, p := range m.Nodes[1:] {
		b.Min = Point{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = Point{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return b
}

// Validate 检查索引与长度一致性
func (m *Mesh) Validate() error {
	n := len(m.Nodes)
	if n == 0 || len(m.Cells) == 0 {
		return fmt.Errorf("%w: %d nodes, %d cells", ErrInvalid, n, len(m.Cells))
	}
	if m.HasLabels() && len(m.CellLabels) != len(m.Cells) {
		return fmt.Errorf("%w: %d labels for %d cells", ErrInvalid, len(m.CellLabels), len(m.Cells))
	}
	if len(m.FacetTags) != len(m.Facets) {
		return fmt.Errorf("%w: %d tags for %d facets", ErrInvalid, len(m.FacetTags), len(m.Facets))
	}
	for c, cell := range m.Cells {
		for _, v := range cell {
			if v < 0 || v >= n {
				return fmt.Errorf("%w: cell %d references node %d", ErrInvalid, c, v)
			}
		}
	}
	for f, facet := range m.Facets {
		for _, v := range facet {
			if v < 0 || v >= n {
				return fmt.Errorf("%w: facet %d references node %d", ErrInvalid, f, v)
			}
		}
	}
	return nil
}

// Centroid 单元形心
func (m *Mesh) Centroid(cell int) Point {
	var c Point
	for _, v := range m.Cells[cell] {
		c = r3.Add(c, m.Nodes[v])
	}
	return r3.Scale(0.25, c)
}

// FacetTagSet 出现过的面标签（升序）
func (m *Mesh) FacetTagSet() []int {
	seen := map[int]bool{}
	var tags []int
	for _, t := range m.FacetTags {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Ints(tags)
	return tags
}

// FacetNodes 指定标签面上的去重节点（升序）
func (m *Mesh) FacetNodes(tag int) []int {
	seen := map[int]bool{}
	var nodes []int
	for f, t := range m.FacetTags {
		if t != tag {
			continue
		}
		for _, v := range m.Facets[f] {
			if !seen[v] {
				seen[v] = true
				nodes = append(nodes, v)
			}
		}
	}
	sort.Ints(nodes)
	return nodes
}

// FacetsWithTag 指定标签的面序号
func (m *Mesh) FacetsWithTag(tag int) []int {
	var out []int
	for f, t := range m.FacetTags {
		if t == tag {
			out = append(out, f)
		}
	}
	return out
}

// faceKey 排序后的三角形顶点
type faceKey [3]int

func newFaceKey(a, b, c int) faceKey {
	k := faceKey{a, b, c}
	sort.Ints(k[:])
	return k
}

// cellFaces 四面体的四个面，第 i 个面不含顶点 i
func cellFaces(cell [4]int) [4]faceKey {
	return [4]faceKey{
		newFaceKey(cell[1], cell[2], cell[3]),
		newFaceKey(cell[0], cell[2], cell[3]),
		newFaceKey(cell[0], cell[1], cell[3]),
		newFaceKey(cell[0], cell[1], cell[2]),
	}
}

// FacetOwner 面所属单元及其对顶点（局部序号）
type FacetOwner struct {
	Cell     int
	Opposite int
}

// FacetOwners 为每个标记面查找一个相邻单元
// 内部界面取首个匹配单元，找不到单元的面返回错误
func (m *Mesh) FacetOwners() ([]FacetOwner, error) {
	index := make(map[faceKey]int, len(m.Facets))
	for f, facet := range m.Facets {
		index[newFaceKey(facet[0], facet[1], facet[2])] = f
	}
	owners := make([]FacetOwner, len(m.Facets))
	for i := range owners {
		owners[i].Cell = -1
	}
	for c, cell := range m.Cells {
		for local, key := range cellFaces(cell) {
			if f, ok := index[key]; ok && owners[f].Cell < 0 {
				owners[f] = FacetOwner{Cell: c, Opposite: local}
			}
		}
	}
	for f, o := range owners {
		if o.Cell < 0 {
			return nil, fmt.Errorf("%w: facet %d has no adjacent cell", ErrInvalid, f)
		}
	}
	return owners, nil
}

// Tetra 四面体几何量
// Grad[i] 为第 i 个线性基函数的梯度（单元内为常数）
type Tetra struct {
	Volume float64
	Grad   [4]Point
}

// Geometry 计算全部单元的体积与基函数梯度
// 通过求逆 [1 x y z] 矩阵得到重心坐标系数
func (m *Mesh) Geometry() ([]Tetra, error) {
	out := make([]Tetra, len(m.Cells))
	a := mat.NewDense(4, 4, nil)
	var inv mat.Dense
	for c, cell := range m.Cells {
		for i, v := range cell {
			p := m.Nodes[v]
			a.SetRow(i, []float64{1, p.X, p.Y, p.Z})
		}
		vol := math.Abs(mat.Det(a)) / 6
		if vol == 0 || math.IsNaN(vol) {
			return nil, fmt.Errorf("%w: cell %d has zero volume", ErrDegenerateCell, c)
		}
		if err := inv.Inverse(a); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return nil, fmt.Errorf("%w: cell %d: %v", ErrDegenerateCell, c, err)
			}
		}
		t := Tetra{Volume: vol}
		for i := 0; i < 4; i++ {
			t.Grad[i] = Point{X: inv.At(1, i), Y: inv.At(2, i), Z: inv.At(3, i)}
		}
		out[c] = t
	}
	return out, nil
}

// TriangleArea 三角形面积与单位法向
func TriangleArea(a, b, c Point) (float64, Point) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l == 0 {
		return 0, Point{}
	}
	return 0.5 * l, r3.Scale(1/l, n)
}

package mesh

import (
	"fmt"

	"github.com/ojrac/opensimplex-go"
)

// Side 包围盒外表面
type Side int

const (
	XMin Side = iota
	XMax
	YMin
	YMax
	ZMin
	ZMax
)

// AllSides 全部六个外表面
var AllSides = []Side{XMin, XMax, YMin, YMax, ZMin, ZMax}

// BoxOptions 结构化网格参数
type BoxOptions struct {
	Bounds     Bounds
	NX, NY, NZ int // 各轴划分数

	// Label 按单元形心给出区域标签，nil 表示不生成标签
	Label func(c Point) int
	// InterfaceTag 两侧标签不同的内部面的标记，返回 0 表示不标记
	InterfaceTag func(a, b int) int
	// Outer 外表面标记，未列出的外表面不标记
	Outer map[Side]int

	// Jitter 内部节点水平扰动幅度（网格间距的比例），0 表示不扰动
	Jitter float64
	Seed   int64
}

// kuhn 立方体的六个 Kuhn 四面体（顶点按位编码 x=1 y=2 z=4）
var kuhn = [6][4]int{
	{0, 1, 3, 7},
	{0, 1, 5, 7},
	{0, 2, 3, 7},
	{0, 2, 6, 7},
	{0, 4, 5, 7},
	{0, 4, 6, 7},
}

// Box 生成结构化四面体网格
// 每个六面体按 Kuhn 方式剖分为 6 个四面体，相邻六面体的剖分协调一致
func Box(opt BoxOptions) (*Mesh, error) {
	nx, ny, nz := opt.NX, opt.NY, opt.NZ
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("%w: divisions %dx%dx%d", ErrInvalid, nx, ny, nz)
	}
	e := opt.Bounds.Extent()
	if e.X <= 0 || e.Y <= 0 || e.Z <= 0 {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalid)
	}
	hx, hy, hz := e.X/float64(nx), e.Y/float64(ny), e.Z/float64(nz)
	node := func(i, j, k int) int { return (k*(ny+1)+j)*(nx+1) + i }

	m := &Mesh{
		Nodes:  make([]Point, 0, (nx+1)*(ny+1)*(nz+1)),
		Source: fmt.Sprintf("box %dx%dx%d", nx, ny, nz),
	}
	var noise opensimplex.Noise
	if opt.Jitter > 0 {
		noise = opensimplex.NewNormalized(opt.Seed)
	}
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				p := Point{
					X: opt.Bounds.Min.X + float64(i)*hx,
					Y: opt.Bounds.Min.Y + float64(j)*hy,
					Z: opt.Bounds.Min.Z + float64(k)*hz,
				}
				// 只在水平方向扰动内部节点，z 平面保持平整
				if noise != nil && i > 0 && i < nx && j > 0 && j < ny {
					p.X += opt.Jitter * hx * (noise.Eval3(p.X, p.Y, p.Z) - 0.5)
					p.Y += opt.Jitter * hy * (noise.Eval3(p.Y+31.7, p.Z, p.X) - 0.5)
				}
				m.Nodes = append(m.Nodes, p)
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				var corner [8]int
				for b := 0; b < 8; b++ {
					corner[b] = node(i+b&1, j+(b>>1)&1, k+(b>>2)&1)
				}
				for _, t := range kuhn {
					m.Cells = append(m.Cells, [4]int{corner[t[0]], corner[t[1]], corner[t[2]], corner[t[3]]})
				}
			}
		}
	}
	if opt.Label != nil {
		m.CellLabels = make([]int, len(m.Cells))
		for c := range m.Cells {
			m.CellLabels[c] = opt.Label(m.Centroid(c))
		}
	}
	tagFacets(m, opt)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// tagFacets 标记外表面与区域界面
func tagFacets(m *Mesh, opt BoxOptions) {
	nx, ny, nz := opt.NX, opt.NY, opt.NZ
	type owner struct{ first, second int }
	faces := map[faceKey]*owner{}
	var order []faceKey
	for c, cell := range m.Cells {
		for _, key := range cellFaces(cell) {
			if o, ok := faces[key]; ok {
				o.second = c
				continue
			}
			faces[key] = &owner{first: c, second: -1}
			order = append(order, key)
		}
	}
	// 节点序号到网格坐标
	coord := func(v int) (int, int, int) {
		i := v % (nx + 1)
		j := (v / (nx + 1)) % (ny + 1)
		return i, j, v / ((nx + 1) * (ny + 1))
	}
	side := func(key faceKey) (Side, bool) {
		var ii, jj, kk [3]int
		for n, v := range key {
			ii[n], jj[n], kk[n] = coord(v)
		}
		switch {
		case ii[0] == 0 && ii[1] == 0 && ii[2] == 0:
			return XMin, true
		case ii[0] == nx && ii[1] == nx && ii[2] == nx:
			return XMax, true
		case jj[0] == 0 && jj[1] == 0 && jj[2] == 0:
			return YMin, true
		case jj[0] == ny && jj[1] == ny && jj[2] == ny:
			return YMax, true
		case kk[0] == 0 && kk[1] == 0 && kk[2] == 0:
			return ZMin, true
		case kk[0] == nz && kk[1] == nz && kk[2] == nz:
			return ZMax, true
		}
		return 0, false
	}
	for _, key := range order {
		o := faces[key]
		tag := 0
		if o.second < 0 {
			if s, ok := side(key); ok {
				tag = opt.Outer[s]
			}
		} else if m.HasLabels() && opt.InterfaceTag != nil {
			a, b := m.CellLabels[o.first], m.CellLabels[o.second]
			if a != b {
				tag = opt.InterfaceTag(a, b)
			}
		}
		if tag != 0 {
			m.Facets = append(m.Facets, [3]int(key))
			m.FacetTags = append(m.FacetTags, tag)
		}
	}
}

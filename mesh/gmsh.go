package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Gmsh 单元类型
const (
	gmshTriangle  = 2
	gmshTetra     = 4
	gmshTriangle6 = 9
	gmshTetra10   = 11
)

// Load 读取 Gmsh MSH 2.2 ASCII 网格文件
// 文件不存在或不可读时返回 ErrNotFound
func Load(path string) (*Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer file.Close()
	m, err := ReadGmsh(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Source = path
	return m, nil
}

// gmshReader 按行读取并记录行号
type gmshReader struct {
	scanner *bufio.Scanner
	line    int
}

func (r *gmshReader) next() (string, bool) {
	for r.scanner.Scan() {
		r.line++
		s := strings.TrimSpace(r.scanner.Text())
		if s != "" {
			return s, true
		}
	}
	return "", false
}

func (r *gmshReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalid, r.line, fmt.Sprintf(format, args...))
}

// skipTo 跳过直到指定结束标记
func (r *gmshReader) skipTo(end string) error {
	for {
		s, ok := r.next()
		if !ok {
			return r.errorf("missing %s", end)
		}
		if s == end {
			return nil
		}
	}
}

// count 读取区段开头的数量行
func (r *gmshReader) count() (int, error) {
	s, ok := r.next()
	if !ok {
		return 0, r.errorf("unexpected end of file")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, r.errorf("invalid count %q", s)
	}
	return n, nil
}

// ReadGmsh 解析 MSH 2.2 ASCII 格式
// 保留四面体（二阶单元只取角点）与带物理标签的三角面，
// 未被四面体引用的节点被剔除
func ReadGmsh(in io.Reader) (*Mesh, error) {
	r := &gmshReader{scanner: bufio.NewScanner(in)}
	r.scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		ids       = map[int]int{} // 文件节点编号 -> 原始序号
		raw       []Point
		cells     [][4]int
		labels    []int
		facets    [][3]int
		facetTags []int
		names     = map[int]string{}
		format    bool
	)
	for {
		head, ok := r.next()
		if !ok {
			break
		}
		switch head {
		case "$MeshFormat":
			s, ok := r.next()
			if !ok {
				return nil, r.errorf("truncated $MeshFormat")
			}
			f := strings.Fields(s)
			if len(f) < 2 {
				return nil, r.errorf("invalid format line %q", s)
			}
			if !strings.HasPrefix(f[0], "2.") {
				return nil, fmt.Errorf("%w: msh version %s", ErrUnsupportedFormat, f[0])
			}
			if f[1] != "0" {
				return nil, fmt.Errorf("%w: binary msh", ErrUnsupportedFormat)
			}
			format = true
			if err := r.skipTo("$EndMeshFormat"); err != nil {
				return nil, err
			}
		case "$PhysicalNames":
			n, err := r.count()
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				s, _ := r.next()
				f := strings.Fields(s)
				if len(f) < 3 {
					return nil, r.errorf("invalid physical name %q", s)
				}
				tag, err := strconv.Atoi(f[1])
				if err != nil {
					return nil, r.errorf("invalid physical tag %q", f[1])
				}
				names[tag] = strings.Trim(strings.Join(f[2:], " "), `"`)
			}
			if err := r.skipTo("$EndPhysicalNames"); err != nil {
				return nil, err
			}
		case "$Nodes":
			n, err := r.count()
			if err != nil {
				return nil, err
			}
			raw = make([]Point, 0, n)
			for i := 0; i < n; i++ {
				s, _ := r.next()
				f := strings.Fields(s)
				if len(f) != 4 {
					return nil, r.errorf("invalid node %q", s)
				}
				id, err := strconv.Atoi(f[0])
				if err != nil {
					return nil, r.errorf("invalid node id %q", f[0])
				}
				var xyz [3]float64
				for k := range xyz {
					if xyz[k], err = strconv.ParseFloat(f[k+1], 64); err != nil {
						return nil, r.errorf("invalid coordinate %q", f[k+1])
					}
				}
				ids[id] = len(raw)
				raw = append(raw, Point{X: xyz[0], Y: xyz[1], Z: xyz[2]})
			}
			if err := r.skipTo("$EndNodes"); err != nil {
				return nil, err
			}
		case "$Elements":
			n, err := r.count()
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				s, _ := r.next()
				f := strings.Fields(s)
				v := make([]int, len(f))
				for k := range f {
					if v[k], err = strconv.Atoi(f[k]); err != nil {
						return nil, r.errorf("invalid element %q", s)
					}
				}
				if len(v) < 3 || v[2] < 0 || len(v) < 3+v[2] {
					return nil, r.errorf("invalid element %q", s)
				}
				typ, ntags := v[1], v[2]
				physical := 0
				if ntags > 0 {
					physical = v[3]
				}
				nodes := v[3+ntags:]
				corner := func(k int) (int, error) {
					idx, ok := ids[nodes[k]]
					if !ok {
						return 0, r.errorf("element %d references unknown node %d", v[0], nodes[k])
					}
					return idx, nil
				}
				switch typ {
				case gmshTetra, gmshTetra10:
					if len(nodes) < 4 {
						return nil, r.errorf("tetrahedron with %d nodes", len(nodes))
					}
					var c [4]int
					for k := range c {
						if c[k], err = corner(k); err != nil {
							return nil, err
						}
					}
					cells = append(cells, c)
					labels = append(labels, physical)
				case gmshTriangle, gmshTriangle6:
					if physical == 0 {
						continue
					}
					if len(nodes) < 3 {
						return nil, r.errorf("triangle with %d nodes", len(nodes))
					}
					var t [3]int
					for k := range t {
						if t[k], err = corner(k); err != nil {
							return nil, err
						}
					}
					facets = append(facets, t)
					facetTags = append(facetTags, physical)
				}
			}
			if err := r.skipTo("$EndElements"); err != nil {
				return nil, err
			}
		default:
			if strings.HasPrefix(head, "$") {
				if err := r.skipTo("$End" + head[1:]); err != nil {
					return nil, err
				}
				continue
			}
			return nil, r.errorf("unexpected content %q", head)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if !format {
		return nil, fmt.Errorf("%w: missing $MeshFormat", ErrUnsupportedFormat)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no tetrahedra", ErrInvalid)
	}

	// 剔除孤立节点并重新编号
	remap := make([]int, len(raw))
	for i := range remap {
		remap[i] = -1
	}
	m := &Mesh{RegionNames: names}
	for c := range cells {
		for k, v := range cells[c] {
			if remap[v] < 0 {
				remap[v] = len(m.Nodes)
				m.Nodes = append(m.Nodes, raw[v])
			}
			cells[c][k] = remap[v]
		}
	}
	for f := range facets {
		for k, v := range facets[f] {
			if remap[v] < 0 {
				return nil, fmt.Errorf("%w: facet %d is not attached to a tetrahedron", ErrInvalid, f)
			}
			facets[f][k] = remap[v]
		}
	}
	m.Cells, m.Facets, m.FacetTags = cells, facets, facetTags
	// 全部为 0 视为无区域标签
	for _, l := range labels {
		if l != 0 {
			m.CellLabels = labels
			break
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

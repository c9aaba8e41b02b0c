package mesh

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const twoTets = `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
3
2 11 "PhaseA"
3 1 "Box"
3 2 "PhaseA"
$EndPhysicalNames
$Nodes
6
10 0 0 0
20 1 0 0
30 0 1 0
40 0 0 1
50 1 1 1
99 5 5 5
$EndNodes
$Elements
5
1 15 2 0 10 10
2 2 2 11 7 20 30 40
3 2 2 0 7 10 20 30
4 4 2 1 1 10 20 30 40
5 4 2 2 2 20 30 40 50
$EndElements
`

func TestReadGmsh(t *testing.T) {
	m, err := ReadGmsh(strings.NewReader(twoTets))
	if err != nil {
		t.Fatalf("ReadGmsh failed: %v", err)
	}
	// 孤立节点 99 被剔除
	if m.NumNodes() != 5 || m.NumCells() != 2 {
		t.Fatalf("got %d nodes %d cells", m.NumNodes(), m.NumCells())
	}
	if !m.HasLabels() || m.CellLabels[0] != 1 || m.CellLabels[1] != 2 {
		t.Fatalf("labels = %v", m.CellLabels)
	}
	// 物理标签为 0 的三角形不保留
	if len(m.Facets) != 1 || m.FacetTags[0] != 11 {
		t.Fatalf("facets = %v tags = %v", m.Facets, m.FacetTags)
	}
	if m.RegionNames[11] != "PhaseA" || m.RegionNames[1] != "Box" {
		t.Fatalf("names = %v", m.RegionNames)
	}
	if got := m.FacetNodes(11); len(got) != 3 {
		t.Fatalf("FacetNodes = %v", got)
	}
	owners, err := m.FacetOwners()
	if err != nil {
		t.Fatalf("FacetOwners failed: %v", err)
	}
	if owners[0].Cell != 0 || owners[0].Opposite != 0 {
		t.Fatalf("owner = %+v", owners[0])
	}
}

// gmshHeader 格式行与四个节点
const gmshHeader = "$MeshFormat\n2.2 0 8\n$EndMeshFormat\n" +
	"$Nodes\n4\n1 0 0 0\n2 1 0 0\n3 0 1 0\n4 0 0 1\n$EndNodes\n"

func TestReadGmshRejects(t *testing.T) {
	cases := map[string]struct {
		input string
		want  error
	}{
		"v4":       {"$MeshFormat\n4.1 0 8\n$EndMeshFormat\n", ErrUnsupportedFormat},
		"binary":   {"$MeshFormat\n2.2 1 8\n$EndMeshFormat\n", ErrUnsupportedFormat},
		"noformat": {"$Nodes\n0\n$EndNodes\n", ErrUnsupportedFormat},
		"notets":   {"$MeshFormat\n2.2 0 8\n$EndMeshFormat\n$Nodes\n1\n1 0 0 0\n$EndNodes\n", ErrInvalid},
		"negtags":  {gmshHeader + "$Elements\n1\n1 4 -5 1 2 3 4\n$EndElements\n", ErrInvalid},
		"shorttag": {gmshHeader + "$Elements\n1\n1 4 9 1 2 3 4\n$EndElements\n", ErrInvalid},
		"badcount": {gmshHeader + "$Elements\n-1\n$EndElements\n", ErrInvalid},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadGmsh(strings.NewReader(c.input))
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.msh"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "two.msh")
	if err := os.WriteFile(path, []byte(twoTets), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Source != path {
		t.Fatalf("Source = %q", m.Source)
	}
}

func TestGeometry(t *testing.T) {
	b := Bounds{Min: Point{X: -1, Y: 0, Z: 0}, Max: Point{X: 1, Y: 3, Z: 0.5}}
	m, err := Box(BoxOptions{Bounds: b, NX: 3, NY: 4, NZ: 2, Jitter: 0.3, Seed: 42})
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	geo, err := m.Geometry()
	if err != nil {
		t.Fatalf("Geometry failed: %v", err)
	}
	total := 0.0
	for c, g := range geo {
		total += g.Volume
		// 基函数之和恒为 1，梯度之和为零
		var sum Point
		for _, gr := range g.Grad {
			sum = r3.Add(sum, gr)
		}
		if r3.Norm(sum) > 1e-9 {
			t.Fatalf("cell %d gradient sum = %v", c, sum)
		}
		// 基函数在自身顶点上的线性插值性质：∇φ_i·(x_j - x_i) = -1 (j≠i)
		p0 := m.Nodes[m.Cells[c][0]]
		p1 := m.Nodes[m.Cells[c][1]]
		if d := r3.Dot(g.Grad[0], r3.Sub(p1, p0)); math.Abs(d+1) > 1e-9 {
			t.Fatalf("cell %d: grad·edge = %g", c, d)
		}
	}
	if math.Abs(total-2*3*0.5) > 1e-9 {
		t.Fatalf("total volume = %g", total)
	}
}

func TestBoxTagging(t *testing.T) {
	b := Bounds{Max: Point{X: 1, Y: 1, Z: 1}}
	m, err := Box(BoxOptions{
		Bounds: b, NX: 2, NY: 2, NZ: 5,
		Label: func(c Point) int {
			if c.Z < 0.2 {
				return 2
			}
			return 1
		},
		InterfaceTag: func(a, b int) int { return 11 },
		Outer:        map[Side]int{ZMax: 10},
	})
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	if m.NumNodes() != 3*3*6 || m.NumCells() != 6*2*2*5 {
		t.Fatalf("got %d nodes %d cells", m.NumNodes(), m.NumCells())
	}
	// 每个外表面方格剖分为两个三角形
	if n := len(m.FacetsWithTag(10)); n != 8 {
		t.Fatalf("top facets = %d, want 8", n)
	}
	if n := len(m.FacetsWithTag(11)); n != 8 {
		t.Fatalf("interface facets = %d, want 8", n)
	}
	for _, v := range m.FacetNodes(11) {
		if math.Abs(m.Nodes[v].Z-0.2) > 1e-12 {
			t.Fatalf("interface node off plane: %v", m.Nodes[v])
		}
	}
	if got := m.FacetTagSet(); len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Fatalf("FacetTagSet = %v", got)
	}
	bb := m.Bounds()
	if bb.Min != b.Min || bb.Max != b.Max {
		t.Fatalf("bounds = %+v", bb)
	}
	if !b.Shrink(0.01).ContainsStrict(b.Center()) {
		t.Fatalf("center must be inside")
	}
}

func TestBoxInvalid(t *testing.T) {
	if _, err := Box(BoxOptions{NX: 0, NY: 1, NZ: 1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

package material

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"towerfield/mesh"
)

var testBounds = mesh.Bounds{
	Min: mesh.Point{X: -30, Y: -30, Z: 0},
	Max: mesh.Point{X: 30, Y: 30, Z: 60},
}

func TestDefaultTable(t *testing.T) {
	tab := DefaultTable(35000)
	if got := tab[Tower].Conductivity; got != 35000 {
		t.Errorf("tower sigma = %g, want 35000", got)
	}
	for id := PhaseA; id <= Phasec; id++ {
		if got := tab[id].Conductivity; got != 35000 {
			t.Errorf("%v sigma = %g", id, got)
		}
	}
	if tab[Insulator].Conductivity != 1e-12 || tab[Insulator].Permittivity != 7.5 {
		t.Errorf("insulator = %+v", tab[Insulator])
	}
	if math.Abs(tab[Air].Epsilon()-Epsilon0*1.0006) > 1e-24 {
		t.Errorf("air epsilon = %g", tab[Air].Epsilon())
	}
	// 截断只降低电导率
	if got := DefaultTable(1e9)[Phasea].Conductivity; got != 3.5e7 {
		t.Errorf("uncapped phase sigma = %g", got)
	}
	if got := tab.Lookup(ID(42)); got != tab[Air] {
		t.Errorf("unknown id must map to air, got %+v", got)
	}
}

// TestLayoutCoverage 任意点都得到有限的材料参数
func TestLayoutCoverage(t *testing.T) {
	layout := DefaultLayout(testBounds)
	tab := DefaultTable(0)
	rng := rand.New(rand.NewSource(1))
	e := testBounds.Extent()
	for i := 0; i < 5000; i++ {
		p := mesh.Point{
			X: testBounds.Min.X + rng.Float64()*e.X,
			Y: testBounds.Min.Y + rng.Float64()*e.Y,
			Z: testBounds.Min.Z + rng.Float64()*e.Z,
		}
		prop := tab.Lookup(layout.At(p))
		if math.IsNaN(prop.Epsilon()) || math.IsInf(prop.Epsilon(), 0) || prop.Epsilon() <= 0 {
			t.Fatalf("epsilon at %v = %g", p, prop.Epsilon())
		}
		if math.IsNaN(prop.Conductivity) || prop.Conductivity < 0 {
			t.Fatalf("sigma at %v = %g", p, prop.Conductivity)
		}
	}
}

// TestLayoutPriority 重叠区域按优先级裁决
func TestLayoutPriority(t *testing.T) {
	g := NewTowerGeometry(testBounds)
	layout := g.Layout()
	c := testBounds.Center()
	cases := []struct {
		name string
		p    mesh.Point
		want ID
	}{
		// 下层中相导线穿过塔身，导体优先
		{"lower wire inside tower", mesh.Point{X: g.PhaseX[1], Y: 0, Z: g.LowerZ}, Phaseb},
		{"lower outer wire", mesh.Point{X: g.PhaseX[0], Y: 20, Z: g.LowerZ}, Phasea},
		{"upper wire", mesh.Point{X: g.PhaseX[2], Y: -10, Z: g.UpperZ}, PhaseC},
		{"tower trunk", mesh.Point{X: c.X + 1, Y: c.Y + 1, Z: 5}, Tower},
		{"insulator", mesh.Point{X: g.PhaseX[0], Y: c.Y, Z: g.TowerTop + g.InsHeight/2}, Insulator},
		{"open air", mesh.Point{X: 29, Y: 29, Z: 59}, Air},
		{"above tower top", mesh.Point{X: c.X + 5, Y: c.Y, Z: g.TowerTop + 0.5}, Air},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := layout.At(tc.p); got != tc.want {
				t.Fatalf("At(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}

func TestRamp(t *testing.T) {
	if v := Ramp(0, 1, 0.1); v < 0.999 {
		t.Errorf("center ramp = %g", v)
	}
	if v := Ramp(1, 1, 0.1); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("edge ramp = %g", v)
	}
	if v := Ramp(2, 1, 0.1); v > 1e-3 {
		t.Errorf("outside ramp = %g", v)
	}
	if Ramp(0.5, 1, 0) != 1 || Ramp(1.5, 1, 0) != 0 {
		t.Errorf("zero transition must be a step")
	}
}

func labelledBox(t *testing.T, label func(mesh.Point) int) *mesh.Mesh {
	t.Helper()
	m, err := mesh.Box(mesh.BoxOptions{Bounds: testBounds, NX: 4, NY: 4, NZ: 4, Label: label})
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	return m
}

func TestClassifyTopological(t *testing.T) {
	m := labelledBox(t, func(c mesh.Point) int {
		if c.Z < 15 {
			return int(Tower)
		}
		if c.Z > 50 {
			return 77 // 表外标签按空气处理
		}
		return int(Air)
	})
	tab := DefaultTable(35000)
	if s := SelectStrategy(m, tab); s != Topological {
		t.Fatalf("strategy = %v", s)
	}
	mp, err := Classify(m, tab)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if mp.Strategy != Topological {
		t.Fatalf("strategy = %v", mp.Strategy)
	}
	counts := mp.Counts()
	if counts[Tower] != 6*16 || counts[Air] != 6*48 {
		t.Fatalf("counts = %v", counts)
	}
	for _, c := range mp.ConductorCells() {
		if mp.Material[c] != Tower {
			t.Fatalf("cell %d counted as conductor: %v", c, mp.Material[c])
		}
	}
	seed := mp.ScaledSigma(0.1)
	if math.Abs(seed[mp.ConductorCells()[0]]-3500) > 1e-9 {
		t.Fatalf("scaled sigma = %g", seed[mp.ConductorCells()[0]])
	}
}

func TestClassifyFallback(t *testing.T) {
	tab := DefaultTable(0)
	// 标签全部不在表内
	m := labelledBox(t, func(mesh.Point) int { return 99 })
	if s := SelectStrategy(m, tab); s != Geometric {
		t.Fatalf("strategy = %v", s)
	}
	// 标签数量不一致：拓扑分类失败后回退
	m = labelledBox(t, func(mesh.Point) int { return int(Air) })
	m.CellLabels = m.CellLabels[:10]
	if _, err := (TopologicalClassifier{Table: tab}).Classify(m); !errors.Is(err, ErrLabelMismatch) {
		t.Fatalf("expected ErrLabelMismatch, got %v", err)
	}
	mp, err := Classify(m, tab)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if mp.Strategy != Geometric || len(mp.Material) != m.NumCells() {
		t.Fatalf("fallback map = %v cells %d", mp.Strategy, len(mp.Material))
	}
	for c := range mp.Material {
		if mp.Epsilon[c] <= 0 || math.IsNaN(mp.Sigma[c]) {
			t.Fatalf("cell %d: eps %g sigma %g", c, mp.Epsilon[c], mp.Sigma[c])
		}
	}
}

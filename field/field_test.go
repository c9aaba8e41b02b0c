package field

import (
	"math"
	"math/rand"
	"testing"

	"towerfield/mesh"
	"towerfield/solver"
)

func TestMagnitudeAlwaysFinite(t *testing.T) {
	cases := []float64{-1e-30, -5, math.NaN(), math.Inf(-1), 0, 4}
	want := []float64{0, 0, 0, 0, 0, 2}
	for i, s := range cases {
		if got := MagnitudeFromSquared(s); got != want[i] {
			t.Errorf("MagnitudeFromSquared(%g) = %g, want %g", s, got, want[i])
		}
	}
	big := mesh.Point{X: 1e200, Y: -1e200}
	if got := Magnitude(big, mesh.Point{Z: 1e200}); math.IsInf(got, 0) || math.Abs(got-math.Sqrt(3)*1e200) > 1e188 {
		t.Errorf("overflow magnitude = %g", got)
	}
	if got := Magnitude(mesh.Point{X: math.MaxFloat64}, mesh.Point{X: math.MaxFloat64}); math.IsInf(got, 0) || got <= 0 {
		t.Errorf("saturated magnitude = %g", got)
	}
	if got := Magnitude(mesh.Point{X: math.NaN()}, mesh.Point{}); got != 0 {
		t.Errorf("NaN magnitude = %g", got)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		p := func() mesh.Point {
			e := math.Pow(10, rng.Float64()*600-300)
			return mesh.Point{X: rng.NormFloat64() * e, Y: rng.NormFloat64() * e, Z: rng.NormFloat64() * e}
		}
		if v := Magnitude(p(), p()); math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			t.Fatalf("magnitude = %g", v)
		}
	}
}

func TestComputeLinearPotential(t *testing.T) {
	m, err := mesh.Box(mesh.BoxOptions{
		Bounds: mesh.Bounds{Max: mesh.Point{X: 1, Y: 2, Z: 3}},
		NX:     2, NY: 3, NZ: 4,
	})
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	geo, err := m.Geometry()
	if err != nil {
		t.Fatalf("Geometry failed: %v", err)
	}
	p := solver.ZeroPotential(m.NumNodes())
	for i, n := range m.Nodes {
		p.Real[i] = 2*n.X - n.Z + 5
		p.Imag[i] = 3 * n.Y
	}
	f, err := Compute(m, geo, p)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	want := math.Sqrt(4 + 1 + 9)
	for c := range m.Cells {
		re, im := f.Real[c], f.Imag[c]
		if math.Abs(re.X+2) > 1e-9 || math.Abs(re.Y) > 1e-9 || math.Abs(re.Z-1) > 1e-9 {
			t.Fatalf("cell %d: E_re = %v", c, re)
		}
		if math.Abs(im.Y+3) > 1e-9 {
			t.Fatalf("cell %d: E_im = %v", c, im)
		}
		if math.Abs(f.Magnitude[c]-want) > 1e-9 {
			t.Fatalf("cell %d: |E| = %g", c, f.Magnitude[c])
		}
	}
	s := Summarize(f, p)
	if math.Abs(s.MaxE-want) > 1e-9 || math.Abs(s.MaxPhiReal-7) > 1e-12 || math.Abs(s.MaxPhiImag-6) > 1e-12 {
		t.Fatalf("summary = %+v", s)
	}
	if _, err := Compute(m, geo[:1], p); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConductorDiagnostics(t *testing.T) {
	if d := ConductorDiagnostics([]float64{1, 2}, []float64{0, 1e-9}); d != nil {
		t.Fatalf("expected nil, got %+v", d)
	}
	// sigma 比 mag 长时超出部分被忽略
	d := ConductorDiagnostics([]float64{1, 3, 5}, []float64{1, 1, 0, 1, 1})
	if d == nil || d.Count != 2 || d.Mean != 2 || d.Max != 3 {
		t.Fatalf("diagnostics = %+v", d)
	}
}

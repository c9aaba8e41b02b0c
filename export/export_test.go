package export

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerfield/field"
	"towerfield/material"
	"towerfield/mesh"
	"towerfield/solver"
)

var unitBox = mesh.Bounds{Max: mesh.Point{X: 1, Y: 1, Z: 1}}

func samplePoints() *Points {
	coords := []mesh.Point{
		{X: 0.5, Y: 0.5, Z: 0.5},   // 保留
		{X: 0.005, Y: 0.5, Z: 0.5}, // 边距内
		{X: 0.01, Y: 0.5, Z: 0.5},  // 恰在边距上，严格不等式排除
		{X: 0.5, Y: 0.5, Z: 0.2},   // 导体
		{X: 0.2, Y: 0.8, Z: 0.98},  // 保留
		{X: 1, Y: 1, Z: 1},         // 边界
	}
	n := len(coords)
	p := &Points{
		Coordinates: coords,
		PhiReal:     make([]float64, n),
		PhiImag:     make([]float64, n),
		EReal:       make([]mesh.Point, n),
		EImag:       make([]mesh.Point, n),
		EMag:        make([]float64, n),
		Epsilon:     make([]float64, n),
		Sigma:       make([]float64, n),
	}
	for i := range coords {
		p.PhiReal[i] = float64(i)
		p.PhiImag[i] = -float64(i)
		p.EReal[i] = mesh.Point{X: float64(i)}
		p.EImag[i] = mesh.Point{Z: 1}
		p.EMag[i] = field.Magnitude(p.EReal[i], p.EImag[i])
		p.Epsilon[i] = material.Epsilon0
	}
	p.Sigma[3] = 35000
	p.Sigma[4] = 1e-12
	return p
}

func TestFilter(t *testing.T) {
	out, stats := Filter(samplePoints(), unitBox)
	assert.Equal(t, 6, stats.TotalPoints)
	assert.Equal(t, 3, stats.BoxPoints)
	assert.Equal(t, 2, stats.BoxAirPoints)
	assert.InDelta(t, 100.0*2/6, stats.Percentage, 1e-2)
	require.Equal(t, 2, out.Len())
	require.NoError(t, out.Validate())
	inner := unitBox.Shrink(MarginFraction)
	for i, c := range out.Coordinates {
		assert.True(t, inner.ContainsStrict(c), "point %v outside margin box", c)
		assert.Less(t, out.Sigma[i], material.Threshold)
	}
	assert.Equal(t, []float64{0, 4}, out.PhiReal)
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, "tower_20240305_070809.npz", FileName("tower", ts))
}

func sampleDataset() *Dataset {
	p, stats := Filter(samplePoints(), unitBox)
	return &Dataset{
		Points: *p,
		Freq:   50,
		Metadata: Metadata{
			RunID:     "run-1",
			Solver:    "direct+gmres",
			BoxFilter: stats,
			Conductor: &field.ConductorStats{Count: 1, Mean: 2, Max: 2},
			Boundary:  map[string]any{"unconstrained": []string{"Tower"}},
		},
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	e := &Exporter{Dir: filepath.Join(dir, "out"), Stem: "case", Now: func() time.Time { return ts }}
	ds := sampleDataset()

	path, err := e.Write(ds)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "case_20240305_070809.npz"), path)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, ds.Coordinates, got.Coordinates)
	assert.Equal(t, ds.EReal, got.EReal)
	assert.Equal(t, ds.EMag, got.EMag)
	assert.Equal(t, ds.Sigma, got.Sigma)
	assert.Equal(t, 50.0, got.Freq)
	assert.Equal(t, "run-1", got.Metadata.RunID)
	assert.Equal(t, ds.Metadata.BoxFilter, got.Metadata.BoxFilter)
	require.NotNil(t, got.Metadata.Conductor)
	assert.Equal(t, 1, got.Metadata.Conductor.Count)

	// 同名文件不覆盖
	_, err = e.Write(ds)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestWriteShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	ds := sampleDataset()
	ds.EMag = ds.EMag[:1]
	_, err := (&Exporter{Dir: dir, Stem: "bad"}).Write(ds)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ds = sampleDataset()
	ds.Points = Points{}
	_, err = (&Exporter{Dir: dir, Stem: "empty"}).Write(ds)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestReconcile(t *testing.T) {
	m, err := mesh.Box(mesh.BoxOptions{Bounds: unitBox, NX: 3, NY: 3, NZ: 3})
	require.NoError(t, err)
	geo, err := m.Geometry()
	require.NoError(t, err)
	p := solver.ZeroPotential(m.NumNodes())
	for i, n := range m.Nodes {
		p.Real[i] = 4 * n.Z
	}
	f, err := field.Compute(m, geo, p)
	require.NoError(t, err)
	mp, err := material.Classify(m, material.DefaultTable(35000))
	require.NoError(t, err)

	pts, err := Reconcile(m, geo, p, f, mp)
	require.NoError(t, err)
	require.NoError(t, pts.Validate())
	require.Equal(t, m.NumNodes(), pts.Len())
	for i := range pts.Coordinates {
		assert.InDelta(t, -4, pts.EReal[i].Z, 1e-9)
		assert.InDelta(t, 4, pts.EMag[i], 1e-9)
		assert.False(t, math.IsNaN(pts.Sigma[i]))
		assert.Greater(t, pts.Epsilon[i], 0.0)
	}
	assert.Equal(t, p.Real, pts.PhiReal)

	_, err = Reconcile(m, geo[:2], p, f, mp)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

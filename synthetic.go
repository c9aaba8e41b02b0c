package towerfield

import (
	"towerfield/boundary"
	"towerfield/material"
	"towerfield/mesh"
)

// TowerMeshOptions 合成塔网格参数
type TowerMeshOptions struct {
	Bounds     mesh.Bounds
	NX, NY, NZ int
	Jitter     float64 // 内部节点水平扰动（相对网格间距）
	Seed       int64
}

// DefaultTowerMeshOptions 60 m 立方体，30³ 网格
func DefaultTowerMeshOptions() TowerMeshOptions {
	return TowerMeshOptions{
		Bounds: mesh.Bounds{Min: mesh.Point{X: -30, Y: -30, Z: 0}, Max: mesh.Point{X: 30, Y: 30, Z: 60}},
		NX:     30, NY: 30, NZ: 30,
	}
}

// BoundaryIDs 导体材料到边界编号的对应，按导体名称匹配
func BoundaryIDs(conductors []boundary.ConductorSpec) map[material.ID]int {
	out := map[material.ID]int{}
	for _, id := range material.DefaultTable(0).IDs() {
		for _, c := range conductors {
			if c.Name == id.String() {
				out[id] = c.BoundaryID
			}
		}
	}
	return out
}

// TowerMesh 按几何布局生成带区域标签和边界标记的结构化网格
// 导体与其他区域的交界面标记为该导体的边界编号，相导线优先于塔身；
// 外表面标记为 boundary.BoxBoundaryID
func TowerMesh(opt TowerMeshOptions) (*mesh.Mesh, error) {
	layout := material.DefaultLayout(opt.Bounds)
	ids := BoundaryIDs(boundary.DefaultConductors(boundary.NominalVoltage))
	tag := func(a, b int) int {
		ma, mb := material.ID(a), material.ID(b)
		switch {
		case ma.IsPhase():
			return ids[ma]
		case mb.IsPhase():
			return ids[mb]
		case ma == material.Tower || mb == material.Tower:
			return ids[material.Tower]
		}
		return 0
	}
	outer := map[mesh.Side]int{}
	for _, s := range mesh.AllSides {
		outer[s] = boundary.BoxBoundaryID
	}
	m, err := mesh.Box(mesh.BoxOptions{
		Bounds:       opt.Bounds,
		NX:           opt.NX,
		NY:           opt.NY,
		NZ:           opt.NZ,
		Label:        func(c mesh.Point) int { return int(layout.At(c)) },
		InterfaceTag: tag,
		Outer:        outer,
		Jitter:       opt.Jitter,
		Seed:         opt.Seed,
	})
	if err != nil {
		return nil, err
	}
	m.RegionNames = map[int]string{}
	for _, id := range material.DefaultTable(0).IDs() {
		m.RegionNames[int(id)] = id.String()
	}
	m.Source = "synthetic"
	return m, nil
}

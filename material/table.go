package material

import (
	"fmt"
	"math"
	"sort"
)

// Epsilon0 真空介电常数 (F/m)
const Epsilon0 = 8.85418782e-12

// Threshold 导体判定阈值 (S/m)
// 导出过滤保留 σ < Threshold，导体统计取 σ > Threshold
const Threshold = 1e-8

// ID 材料编号，与网格区域标签一致
type ID int

const (
	Air       ID = 1
	PhaseA    ID = 2
	PhaseB    ID = 3
	PhaseC    ID = 4
	Phasea    ID = 5
	Phaseb    ID = 6
	Phasec    ID = 7
	Insulator ID = 8
	Tower     ID = 9
)

var idNames = map[ID]string{
	Air:       "Box",
	PhaseA:    "PhaseA",
	PhaseB:    "PhaseB",
	PhaseC:    "PhaseC",
	Phasea:    "Phasea",
	Phaseb:    "Phaseb",
	Phasec:    "Phasec",
	Insulator: "Insulator",
	Tower:     "Tower",
}

func (id ID) String() string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return fmt.Sprintf("Material(%d)", int(id))
}

// IsPhase 是否为相导线
func (id ID) IsPhase() bool { return id >= PhaseA && id <= Phasec }

// Properties 材料参数
type Properties struct {
	Permittivity float64 // 相对介电常数
	Conductivity float64 // 电导率 (S/m)
}

// Epsilon 绝对介电常数
func (p Properties) Epsilon() float64 { return Epsilon0 * p.Permittivity }

// Table 材料参数表
type Table map[ID]Properties

// 材料默认电导率
var (
	TowerConductivity     = 5.8e6
	PhaseConductivity     = 3.5e7
	InsulatorConductivity = 1e-12
)

// DefaultTable 默认材料表，导体与塔身电导率被 maxConductivity 截断
// maxConductivity 非正时不截断
func DefaultTable(maxConductivity float64) Table {
	capped := func(v float64) float64 {
		if maxConductivity > 0 {
			return math.Min(v, maxConductivity)
		}
		return v
	}
	t := Table{
		Air:       {Permittivity: 1.0006, Conductivity: 0},
		Insulator: {Permittivity: 7.5, Conductivity: InsulatorConductivity},
		Tower:     {Permittivity: 1.0, Conductivity: capped(TowerConductivity)},
	}
	for id := PhaseA; id <= Phasec; id++ {
		t[id] = Properties{Permittivity: 1.0, Conductivity: capped(PhaseConductivity)}
	}
	return t
}

// Lookup 查询材料，未知编号按空气处理
func (t Table) Lookup(id ID) Properties {
	if p, ok := t[id]; ok {
		return p
	}
	return t[Air]
}

// IDs 表内编号（升序）
func (t Table) IDs() []ID {
	ids := make([]ID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

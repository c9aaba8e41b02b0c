package material

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"towerfield/mesh"
)

// 分类错误定义
var (
	ErrLabelMismatch = errors.New("material: cell label count mismatch")
	ErrNoStrata      = errors.New("material: no labelled strata match the table")
)

// Strategy 材料分类策略，每次计算只选择一次
type Strategy int

const (
	Topological Strategy = iota // 按网格区域标签
	Geometric                   // 按包围盒推断的几何布局
)

func (s Strategy) String() string {
	switch s {
	case Topological:
		return "topological"
	case Geometric:
		return "geometric"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Map 单元材料分布（分片常数）
type Map struct {
	Material []ID      // 每个单元的材料
	Epsilon  []float64 // 绝对介电常数
	Sigma    []float64 // 电导率
	Strategy Strategy
}

// Counts 各材料单元数
func (m *Map) Counts() map[ID]int {
	c := map[ID]int{}
	for _, id := range m.Material {
		c[id]++
	}
	return c
}

// ScaledSigma 返回按比例缩放的电导率副本
func (m *Map) ScaledSigma(factor float64) []float64 {
	out := make([]float64, len(m.Sigma))
	for i, s := range m.Sigma {
		out[i] = s * factor
	}
	return out
}

// ConductorCells σ > Threshold 的单元
func (m *Map) ConductorCells() []int {
	var out []int
	for c, s := range m.Sigma {
		if s > Threshold {
			out = append(out, c)
		}
	}
	return out
}

// Classifier 材料分类器接口
type Classifier interface {
	Classify(m *mesh.Mesh) (*Map, error)
}

// SelectStrategy 网格携带标签且至少一个标签在材料表中时选择拓扑分类
func SelectStrategy(m *mesh.Mesh, table Table) Strategy {
	if !m.HasLabels() {
		return Geometric
	}
	for _, l := range m.CellLabels {
		if _, ok := table[ID(l)]; ok {
			return Topological
		}
	}
	return Geometric
}

// newMap 按单元材料填充参数
func newMap(ids []ID, table Table, s Strategy) *Map {
	m := &Map{
		Material: ids,
		Epsilon:  make([]float64, len(ids)),
		Sigma:    make([]float64, len(ids)),
		Strategy: s,
	}
	for c, id := range ids {
		p := table.Lookup(id)
		m.Epsilon[c] = p.Epsilon()
		m.Sigma[c] = p.Conductivity
	}
	return m
}

// TopologicalClassifier 按区域标签精确赋值，不做过渡
type TopologicalClassifier struct {
	Table Table
}

// Classify 未知标签按空气处理
func (t TopologicalClassifier) Classify(m *mesh.Mesh) (*Map, error) {
	if len(m.CellLabels) != len(m.Cells) {
		return nil, fmt.Errorf("%w: %d labels for %d cells", ErrLabelMismatch, len(m.CellLabels), len(m.Cells))
	}
	ids := make([]ID, len(m.Cells))
	matched := 0
	for c, l := range m.CellLabels {
		id := ID(l)
		if _, ok := t.Table[id]; ok {
			matched++
		} else {
			id = Air
		}
		ids[c] = id
	}
	if matched == 0 {
		return nil, ErrNoStrata
	}
	return newMap(ids, t.Table, Topological), nil
}

// GeometricClassifier 按几何布局对单元形心分类
type GeometricClassifier struct {
	Layout *Layout
	Table  Table
}

// Classify 布局为空时由网格包围盒推断
func (g GeometricClassifier) Classify(m *mesh.Mesh) (*Map, error) {
	layout := g.Layout
	if layout == nil {
		layout = DefaultLayout(m.Bounds())
	}
	ids := make([]ID, len(m.Cells))
	for c := range m.Cells {
		ids[c] = layout.At(m.Centroid(c))
	}
	mp := newMap(ids, g.Table, Geometric)
	for c := range ids {
		if math.IsNaN(mp.Epsilon[c]) || math.IsNaN(mp.Sigma[c]) {
			return nil, fmt.Errorf("material: cell %d has non-finite parameters", c)
		}
	}
	return mp, nil
}

// Classify 选择策略并分类，拓扑分类失败时回退到几何分类
func Classify(m *mesh.Mesh, table Table) (*Map, error) {
	strategy := SelectStrategy(m, table)
	if strategy == Topological {
		mp, err := TopologicalClassifier{Table: table}.Classify(m)
		if err == nil {
			return mp, nil
		}
		slog.Warn("拓扑分类失败，改用几何分类", "err", err)
	}
	return GeometricClassifier{Table: table}.Classify(m)
}

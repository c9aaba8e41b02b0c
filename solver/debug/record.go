package debug

import (
	"encoding/json"
	"io"

	"towerfield/solver"
)

// Record 记录每次线性求解
type Record struct {
	Dofs     int              `json:"dofs"`
	Attempts []solver.Attempt `json:"attempts"`
}

var _ solver.Debug = (*Record)(nil)

// Init 初始化
func (list *Record) Init(n int) {
	list.Dofs = n
	list.Attempts = list.Attempts[:0]
}

func (Record) IsDebug() bool    { return true }
func (Record) SetDebug(is bool) {}

// Update 记录数据
func (list *Record) Update(a solver.Attempt) {
	a.History = append([]float64(nil), a.History...)
	list.Attempts = append(list.Attempts, a)
}

// Render 以 JSON 输出
func (list *Record) Render(w io.Writer) error { return json.NewEncoder(w).Encode(list) }

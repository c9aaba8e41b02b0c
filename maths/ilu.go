package maths

import (
	"fmt"
	"math"
)

// ILU0 零填充不完全LU分解预条件器
// L 为单位下三角，与 U 共用原矩阵的稀疏结构
type ILU0 struct {
	lu   *SparseMatrix
	diag []int // 每行对角元素位置
}

var _ Preconditioner = (*ILU0)(nil)

// NewILU0 对矩阵执行 ILU(0) 分解
// 对角元素为零或过小时返回 ErrBreakdown
func NewILU0(a *SparseMatrix) (*ILU0, error) {
	if !a.IsSquare() {
		return nil, fmt.Errorf("ilu0: %w", ErrDimension)
	}
	n := a.Rows()
	lu := a.Clone()
	diag := make([]int, n)
	for i := 0; i < n; i++ {
		diag[i] = lu.find(i, i)
		if diag[i] < 0 {
			return nil, fmt.Errorf("ilu0: missing diagonal at row %d: %w", i, ErrBreakdown)
		}
	}
	tiny := 1e-14 * a.MaxAbs()
	// 行内列号到存储位置的映射
	where := make([]int, n)
	for i := range where {
		where[i] = -1
	}
	for i := 0; i < n; i++ {
		start, end := lu.rowPtr[i], lu.rowPtr[i+1]
		for p := start; p < end; p++ {
			where[lu.colInd[p]] = p
		}
		for p := start; p < end; p++ {
			k := lu.colInd[p]
			if k >= i {
				break
			}
			pivot := lu.values[diag[k]]
			if math.Abs(pivot) <= tiny {
				return nil, fmt.Errorf("ilu0: pivot %d: %w", k, ErrBreakdown)
			}
			lu.values[p] /= pivot
			factor := lu.values[p]
			for q := diag[k] + 1; q < lu.rowPtr[k+1]; q++ {
				if w := where[lu.colInd[q]]; w >= 0 {
					lu.values[w] -= factor * lu.values[q]
				}
			}
		}
		for p := start; p < end; p++ {
			where[lu.colInd[p]] = -1
		}
		if math.Abs(lu.values[diag[i]]) <= tiny {
			return nil, fmt.Errorf("ilu0: pivot %d: %w", i, ErrBreakdown)
		}
	}
	return &ILU0{lu: lu, diag: diag}, nil
}

// Apply 前向替换 L·y = r，后向替换 U·z = y
func (p *ILU0) Apply(z, r []float64) {
	m := p.lu
	n := m.rows
	for i := 0; i < n; i++ {
		sum := r[i]
		for q := m.rowPtr[i]; q < p.diag[i]; q++ {
			sum -= m.values[q] * z[m.colInd[q]]
		}
		z[i] = sum
	}
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for q := p.diag[i] + 1; q < m.rowPtr[i+1]; q++ {
			sum -= m.values[q] * z[m.colInd[q]]
		}
		z[i] = sum / m.values[p.diag[i]]
	}
}

// Jacobi 对角预条件器，零对角按 1 处理
type Jacobi struct {
	inv []float64
}

var _ Preconditioner = (*Jacobi)(nil)

// NewJacobi 创建对角预条件器
func NewJacobi(a *SparseMatrix) *Jacobi {
	d := a.Diagonal()
	for i, v := range d {
		if v == 0 {
			d[i] = 1
		} else {
			d[i] = 1 / v
		}
	}
	return &Jacobi{inv: d}
}

// Apply z = D⁻¹·r
func (p *Jacobi) Apply(z, r []float64) {
	for i, v := range r {
		z[i] = v * p.inv[i]
	}
}

// Identity 恒等预条件器
type Identity struct{}

// Apply z = r
func (Identity) Apply(z, r []float64) { copy(z, r) }

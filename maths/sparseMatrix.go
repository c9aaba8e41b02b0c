package maths

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// SparseMatrix 稀疏矩阵数据结构
// 使用CSR (Compressed Sparse Row) 格式存储，结构在构建后固定
// 同时实现 gonum 的 mat.Matrix 接口，便于格式化和比较
type SparseMatrix struct {
	rows, cols int
	rowPtr     []int     // 行指针数组
	colInd     []int     // 列索引数组（行内升序）
	values     []float64 // 非零元素值
}

var _ mat.Matrix = (*SparseMatrix)(nil)

// NewSparseMatrix 创建新的空稀疏矩阵
func NewSparseMatrix(rows, cols int) *SparseMatrix {
	return &SparseMatrix{
		rows:   rows,
		cols:   cols,
		rowPtr: make([]int, rows+1), // 多一个元素用于存储结束位置
	}
}

// Rows 返回行数
func (m *SparseMatrix) Rows() int { return m.rows }

// Cols 返回列数
func (m *SparseMatrix) Cols() int { return m.cols }

// Dims 实现 mat.Matrix
func (m *SparseMatrix) Dims() (int, int) { return m.rows, m.cols }

// At 实现 mat.Matrix
func (m *SparseMatrix) At(i, j int) float64 { return m.Get(i, j) }

// T 实现 mat.Matrix
func (m *SparseMatrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NonZeroCount 返回结构非零元素数量
func (m *SparseMatrix) NonZeroCount() int { return len(m.values) }

// find 在行内二分查找列位置，不存在返回 -1
func (m *SparseMatrix) find(row, col int) int {
	start, end := m.rowPtr[row], m.rowPtr[row+1]
	pos := sort.SearchInts(m.colInd[start:end], col) + start
	if pos < end && m.colInd[pos] == col {
		return pos
	}
	return -1
}

// Get 获取矩阵元素
func (m *SparseMatrix) Get(row, col int) float64 {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic("index out of range")
	}
	if pos := m.find(row, col); pos >= 0 {
		return m.values[pos]
	}
	return 0
}

// Set 修改已存在结构位置的元素，结构外的位置返回 false
func (m *SparseMatrix) Set(row, col int, value float64) bool {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic("index out of range")
	}
	pos := m.find(row, col)
	if pos < 0 {
		return false
	}
	m.values[pos] = value
	return true
}

// Row 获取指定行的列索引与值（共享底层存储）
func (m *SparseMatrix) Row(row int) ([]int, []float64) {
	start, end := m.rowPtr[row], m.rowPtr[row+1]
	return m.colInd[start:end], m.values[start:end]
}

// ReplaceRow 行替换：非对角元素清零，对角元素置为 diag
// 用于施加Dirichlet约束，对角位置必须在结构内
func (m *SparseMatrix) ReplaceRow(row int, diag float64) {
	cols, vals := m.Row(row)
	for i, c := range cols {
		if c == row {
			vals[i] = diag
		} else {
			vals[i] = 0
		}
	}
}

// Diagonal 返回对角元素
func (m *SparseMatrix) Diagonal() []float64 {
	n := min(m.rows, m.cols)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		if pos := m.find(i, i); pos >= 0 {
			d[i] = m.values[pos]
		}
	}
	return d
}

// MulVecTo 矩阵向量乘法 dst = A·x
func (m *SparseMatrix) MulVecTo(dst, x []float64) {
	if len(x) != m.cols || len(dst) != m.rows {
		panic(ErrDimension)
	}
	for i := 0; i < m.rows; i++ {
		sum := 0.0
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			sum += m.values[p] * x[m.colInd[p]]
		}
		dst[i] = sum
	}
}

// MaxAbs 返回最大元素绝对值
func (m *SparseMatrix) MaxAbs() float64 {
	r := 0.0
	for _, v := range m.values {
		if v < 0 {
			v = -v
		}
		r = max(r, v)
	}
	return r
}

// Bandwidth 返回下带宽和上带宽（只统计非零值）
func (m *SparseMatrix) Bandwidth() (lower, upper int) {
	for i := 0; i < m.rows; i++ {
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			if m.values[p] == 0 {
				continue
			}
			d := m.colInd[p] - i
			if d < 0 {
				lower = max(lower, -d)
			} else {
				upper = max(upper, d)
			}
		}
	}
	return lower, upper
}

// Permute 对称置换：B[i][j] = A[perm[i]][perm[j]]
// perm 为新序号到旧序号的映射
func (m *SparseMatrix) Permute(perm []int) *SparseMatrix {
	if !m.IsSquare() || len(perm) != m.rows {
		panic(ErrDimension)
	}
	inv := InversePermutation(perm)
	b := NewBuilder(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		old := perm[i]
		for p := m.rowPtr[old]; p < m.rowPtr[old+1]; p++ {
			b.Increment(i, inv[m.colInd[p]], m.values[p])
		}
	}
	return b.Build()
}

// IsSquare 检查是否为方阵
func (m *SparseMatrix) IsSquare() bool { return m.rows == m.cols }

// Clone 深拷贝
func (m *SparseMatrix) Clone() *SparseMatrix {
	return &SparseMatrix{
		rows:   m.rows,
		cols:   m.cols,
		rowPtr: append([]int(nil), m.rowPtr...),
		colInd: append([]int(nil), m.colInd...),
		values: append([]float64(nil), m.values...),
	}
}

// Dense 转换为 gonum 稠密矩阵
func (m *SparseMatrix) Dense() *mat.Dense {
	d := mat.NewDense(max(m.rows, 1), max(m.cols, 1), nil)
	for i := 0; i < m.rows; i++ {
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			d.Set(i, m.colInd[p], m.values[p])
		}
	}
	return d
}

// String 字符串表示
func (m *SparseMatrix) String() string {
	return fmt.Sprintf("%8.4f", mat.Formatted(m))
}

// InversePermutation 求逆置换
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// triplet 坐标格式元素
type triplet struct {
	row, col int
	value    float64
}

// Builder 稀疏矩阵构建器
// 以坐标格式累加元素，Build 时合并重复项并压缩为CSR
type Builder struct {
	rows, cols int
	entries    []triplet
}

// NewBuilder 创建构建器
func NewBuilder(rows, cols int) *Builder {
	return &Builder{rows: rows, cols: cols}
}

// Increment 累加矩阵元素
func (b *Builder) Increment(row, col int, value float64) {
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		panic("index out of range")
	}
	b.entries = append(b.entries, triplet{row, col, value})
}

// Build 生成CSR矩阵，方阵总是保留对角结构位置
func (b *Builder) Build() *SparseMatrix {
	if b.rows == b.cols {
		for i := 0; i < b.rows; i++ {
			b.entries = append(b.entries, triplet{i, i, 0})
		}
	}
	sort.Slice(b.entries, func(i, j int) bool {
		ei, ej := b.entries[i], b.entries[j]
		if ei.row != ej.row {
			return ei.row < ej.row
		}
		return ei.col < ej.col
	})
	m := NewSparseMatrix(b.rows, b.cols)
	m.colInd = make([]int, 0, len(b.entries))
	m.values = make([]float64, 0, len(b.entries))
	last := -1
	for _, e := range b.entries {
		if n := len(m.colInd); n > 0 && last == e.row && m.colInd[n-1] == e.col {
			m.values[n-1] += e.value
			continue
		}
		m.colInd = append(m.colInd, e.col)
		m.values = append(m.values, e.value)
		m.rowPtr[e.row+1]++
		last = e.row
	}
	for i := 0; i < b.rows; i++ {
		m.rowPtr[i+1] += m.rowPtr[i]
	}
	b.entries = b.entries[:0]
	return m
}

// AddScaled 返回 a + s·b，两者维度必须一致
func AddScaled(a *SparseMatrix, s float64, b *SparseMatrix) *SparseMatrix {
	if a.rows != b.rows || a.cols != b.cols {
		panic(ErrDimension)
	}
	out := NewBuilder(a.rows, a.cols)
	for i := 0; i < a.rows; i++ {
		cols, vals := a.Row(i)
		for p, j := range cols {
			out.Increment(i, j, vals[p])
		}
		cols, vals = b.Row(i)
		for p, j := range cols {
			out.Increment(i, j, s*vals[p])
		}
	}
	return out.Build()
}

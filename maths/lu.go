package maths

import (
	"context"
	"fmt"
	"math"
)

// MaxBandEntries 带状存储允许的最大元素数量
var MaxBandEntries = 1 << 27

// cancelStride 分解过程中检查上下文的主元间隔
const cancelStride = 64

var _ LU = (*BandLU)(nil)

// NewBandLU 创建带状LU分解器，存储上限取 MaxBandEntries
func NewBandLU() *BandLU {
	return &BandLU{Limit: MaxBandEntries}
}

// BandLU 带状矩阵LU分解（PA = LU，带部分主元）
// 每行按 [i-kl, i+ku+kl] 的窗口存储，宽度 2kl+ku+1，
// 额外的 kl 列容纳行交换产生的填充
type BandLU struct {
	Limit int // 存储上限（元素数量）

	n, kl, ku int
	width     int
	ab        []float64 // 行主序带状存储
	piv       []int     // 第k步与第piv[k]行交换
}

// Dim 获取矩阵维度
func (lu *BandLU) Dim() int { return lu.n }

// Band 返回分解使用的下带宽和上带宽
func (lu *BandLU) Band() (kl, ku int) { return lu.kl, lu.ku }

// idx 元素 (i,j) 在带状存储中的位置
func (lu *BandLU) idx(i, j int) int {
	return i*lu.width + j - i + lu.kl
}

// Decompose 执行带状LU分解
// 算法步骤:
//  1. 按矩阵带宽分配存储，超限返回 ErrBandTooLarge
//  2. 对每一列k: 在 [k, k+kl] 行中选主元，交换 k 列之后的元素
//  3. 消元因子原位存入 (i,k)，之后的行交换不再移动它们
func (lu *BandLU) Decompose(matrix *SparseMatrix) error {
	return lu.DecomposeContext(context.Background(), matrix)
}

// DecomposeContext 同 Decompose，每 cancelStride 个主元检查一次 ctx
// 取消时返回 ctx.Err()，分解结果不可用
func (lu *BandLU) DecomposeContext(ctx context.Context, matrix *SparseMatrix) error {
	if !matrix.IsSquare() {
		return fmt.Errorf("band lu decompose: %w", ErrDimension)
	}
	n := matrix.Rows()
	kl, ku := matrix.Bandwidth()
	width := 2*kl + ku + 1
	limit := lu.Limit
	if limit <= 0 {
		limit = MaxBandEntries
	}
	if n > 0 && width > limit/n {
		return fmt.Errorf("band lu decompose: n=%d kl=%d ku=%d: %w", n, kl, ku, ErrBandTooLarge)
	}
	lu.n, lu.kl, lu.ku, lu.width = n, kl, ku, width
	if cap(lu.ab) < n*width {
		lu.ab = make([]float64, n*width)
	} else {
		lu.ab = lu.ab[:n*width]
		clear(lu.ab)
	}
	lu.piv = make([]int, n)
	for i := 0; i < n; i++ {
		cols, vals := matrix.Row(i)
		for p, j := range cols {
			if vals[p] != 0 {
				lu.ab[lu.idx(i, j)] = vals[p]
			}
		}
	}
	// 奇异判定阈值相对矩阵尺度
	tiny := 1e-14 * matrix.MaxAbs()
	if tiny == 0 {
		tiny = math.SmallestNonzeroFloat64
	}
	for k := 0; k < n; k++ {
		if k%cancelStride == 0 {
			if err := ctx.Err(); err != nil {
				lu.n = 0
				return err
			}
		}
		// 部分主元选择
		last := min(n-1, k+kl)
		maxRow, maxAbs := k, math.Abs(lu.ab[lu.idx(k, k)])
		for i := k + 1; i <= last; i++ {
			if v := math.Abs(lu.ab[lu.idx(i, k)]); v > maxAbs {
				maxRow, maxAbs = i, v
			}
		}
		if maxAbs < tiny {
			return fmt.Errorf("band lu decompose: pivot %d: %w", k, ErrSingular)
		}
		lu.piv[k] = maxRow
		right := min(n-1, k+kl+ku)
		if maxRow != k {
			for j := k; j <= right; j++ {
				a, b := lu.idx(k, j), lu.idx(maxRow, j)
				lu.ab[a], lu.ab[b] = lu.ab[b], lu.ab[a]
			}
		}
		// 高斯消元
		pivot := lu.ab[lu.idx(k, k)]
		for i := k + 1; i <= last; i++ {
			pos := lu.idx(i, k)
			if lu.ab[pos] == 0 {
				continue
			}
			factor := lu.ab[pos] / pivot
			lu.ab[pos] = factor
			for j := k + 1; j <= right; j++ {
				lu.ab[lu.idx(i, j)] -= factor * lu.ab[lu.idx(k, j)]
			}
		}
	}
	return nil
}

// SolveReuse 利用分解结果求解Ax=b
// 数学步骤:
//  1. 按置换顺序前向替换：求解Ly = Pb
//  2. 后向替换：求解Ux = y
func (lu *BandLU) SolveReuse(b, x []float64) error {
	if len(b) != lu.n || len(x) != lu.n {
		return fmt.Errorf("band lu solve: %w", ErrDimension)
	}
	copy(x, b)
	for k := 0; k < lu.n; k++ {
		if p := lu.piv[k]; p != k {
			x[k], x[p] = x[p], x[k]
		}
		last := min(lu.n-1, k+lu.kl)
		for i := k + 1; i <= last; i++ {
			x[i] -= lu.ab[lu.idx(i, k)] * x[k]
		}
	}
	for i := lu.n - 1; i >= 0; i-- {
		sum := x[i]
		right := min(lu.n-1, i+lu.kl+lu.ku)
		for j := i + 1; j <= right; j++ {
			sum -= lu.ab[lu.idx(i, j)] * x[j]
		}
		diag := lu.ab[lu.idx(i, i)]
		if diag == 0 {
			return fmt.Errorf("band lu solve: zero diagonal at %d: %w", i, ErrSingular)
		}
		x[i] = sum / diag
	}
	return nil
}

package maths

import "errors"

// 线性代数错误定义
var (
	ErrDimension    = errors.New("maths: dimension mismatch")
	ErrSingular     = errors.New("maths: matrix is singular or nearly singular")
	ErrBandTooLarge = errors.New("maths: band storage exceeds limit")
	ErrBreakdown    = errors.New("maths: factorization breakdown")
	ErrNotConverged = errors.New("maths: iterative solve did not converge")
)

// Matrix 线性算子接口
// 迭代求解器只依赖矩阵向量乘法
type Matrix interface {
	// Rows 返回矩阵行数
	Rows() int
	// Cols 返回矩阵列数
	Cols() int
	// Get 获取指定位置的元素值
	Get(row, col int) float64
	// MulVecTo 计算 dst = A·x
	MulVecTo(dst, x []float64)
}

// Preconditioner 预条件器接口
// 右预条件 GMRES 中每次迭代调用一次
type Preconditioner interface {
	// Apply 近似求解 M·z = r
	Apply(z, r []float64)
}

// LU 分解接口
// 定义带部分主元的LU分解基本操作
type LU interface {
	// Decompose 对稀疏矩阵执行分解
	// 返回：
	//   error - 矩阵奇异或存储超限时返回错误
	Decompose(matrix *SparseMatrix) error
	// SolveReuse 解线性方程组 Ax = b，结果写入预分配的 x
	SolveReuse(b, x []float64) error
}

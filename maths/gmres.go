package maths

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GMRESOptions 重启GMRES参数
type GMRESOptions struct {
	Restart int     // Krylov子空间维度
	RelTol  float64 // 相对残差容差（相对 ‖b‖）
	AbsTol  float64 // 绝对残差容差
	MaxIter int     // 最大迭代次数（跨重启累计）
}

// DefaultGMRESOptions 默认参数
func DefaultGMRESOptions() GMRESOptions {
	return GMRESOptions{Restart: 30, RelTol: 1e-6, AbsTol: 1e-9, MaxIter: 2000}
}

// GMRESResult 求解统计
type GMRESResult struct {
	Iterations int       // 总迭代次数
	Residual   float64   // 最终真实残差范数
	History    []float64 // 每次迭代的残差估计
}

// GMRES 右预条件重启GMRES
// x 作为初始猜测传入，求解结果原位写回
// 收敛判据 ‖b-Ax‖ ≤ max(RelTol·‖b‖, AbsTol)，未收敛返回 ErrNotConverged
func GMRES(ctx context.Context, a Matrix, b, x []float64, pc Preconditioner, opt GMRESOptions) (GMRESResult, error) {
	n := len(b)
	var res GMRESResult
	if a.Rows() != n || a.Cols() != n || len(x) != n {
		return res, fmt.Errorf("gmres: %w", ErrDimension)
	}
	if pc == nil {
		pc = Identity{}
	}
	m := opt.Restart
	if m <= 0 {
		m = 30
	}
	m = min(m, max(n, 1))
	target := max(opt.RelTol*floats.Norm(b, 2), opt.AbsTol)

	r := make([]float64, n)
	residual := func() float64 {
		a.MulVecTo(r, x)
		floats.SubTo(r, b, r)
		return floats.Norm(r, 2)
	}
	beta := residual()
	res.Residual = beta
	res.History = append(res.History, beta)
	if beta <= target {
		return res, nil
	}

	V := make([][]float64, m+1)
	for i := range V {
		V[i] = make([]float64, n)
	}
	Z := make([][]float64, m)
	for i := range Z {
		Z[i] = make([]float64, n)
	}
	H := make([][]float64, m+1)
	for i := range H {
		H[i] = make([]float64, m)
	}
	cs := make([]float64, m)
	sn := make([]float64, m)
	g := make([]float64, m+1)
	y := make([]float64, m)

	for res.Iterations < opt.MaxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		floats.ScaleTo(V[0], 1/beta, r)
		clear(g)
		g[0] = beta
		k := 0
		for k < m && res.Iterations < opt.MaxIter {
			res.Iterations++
			pc.Apply(Z[k], V[k])
			w := V[k+1]
			a.MulVecTo(w, Z[k])
			// 修正Gram-Schmidt正交化
			for i := 0; i <= k; i++ {
				H[i][k] = floats.Dot(w, V[i])
				floats.AddScaled(w, -H[i][k], V[i])
			}
			H[k+1][k] = floats.Norm(w, 2)
			happy := H[k+1][k] == 0
			if !happy {
				floats.Scale(1/H[k+1][k], w)
			}
			// 应用已有Givens旋转
			for i := 0; i < k; i++ {
				t := cs[i]*H[i][k] + sn[i]*H[i+1][k]
				H[i+1][k] = -sn[i]*H[i][k] + cs[i]*H[i+1][k]
				H[i][k] = t
			}
			cs[k], sn[k] = givens(H[k][k], H[k+1][k])
			H[k][k] = cs[k]*H[k][k] + sn[k]*H[k+1][k]
			H[k+1][k] = 0
			g[k+1] = -sn[k] * g[k]
			g[k] = cs[k] * g[k]
			estimate := math.Abs(g[k+1])
			res.History = append(res.History, estimate)
			k++
			if estimate <= target || happy {
				break
			}
		}
		// 回代求解上三角系统 H·y = g
		for i := k - 1; i >= 0; i-- {
			sum := g[i]
			for j := i + 1; j < k; j++ {
				sum -= H[i][j] * y[j]
			}
			if H[i][i] == 0 {
				return res, fmt.Errorf("gmres: singular hessenberg at %d: %w", i, ErrBreakdown)
			}
			y[i] = sum / H[i][i]
		}
		for i := 0; i < k; i++ {
			floats.AddScaled(x, y[i], Z[i])
		}
		beta = residual()
		res.Residual = beta
		if beta <= target {
			return res, nil
		}
		if math.IsNaN(beta) || math.IsInf(beta, 0) {
			return res, fmt.Errorf("gmres: residual %v: %w", beta, ErrBreakdown)
		}
	}
	return res, fmt.Errorf("gmres: %d iterations, residual %.3e > %.3e: %w", res.Iterations, beta, target, ErrNotConverged)
}

// givens 计算消去 b 的旋转参数
func givens(a, b float64) (c, s float64) {
	if b == 0 {
		return 1, 0
	}
	r := math.Hypot(a, b)
	return a / r, b / r
}

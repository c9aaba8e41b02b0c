package maths

import "sort"

// ReverseCuthillMcKee 计算降低带宽的对称重排序
// 返回 perm，perm[新序号] = 旧序号
// 使用 A+Aᵀ 的非零结构作为邻接图，每个连通分量从伪外围节点开始广度优先遍历
func ReverseCuthillMcKee(a *SparseMatrix) []int {
	n := a.Rows()
	adj := symmetricAdjacency(a)
	degree := make([]int, n)
	for i := range adj {
		degree[i] = len(adj[i])
	}
	visited := make([]bool, n)
	order := make([]int, 0, n)
	// 节点按度数升序作为候选起点
	candidates := make([]int, n)
	for i := range candidates {
		candidates[i] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool { return degree[candidates[i]] < degree[candidates[j]] })
	for _, start := range candidates {
		if visited[start] {
			continue
		}
		root := peripheral(adj, degree, start)
		visited[root] = true
		queue := []int{root}
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			order = append(order, v)
			next := make([]int, 0, len(adj[v]))
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					next = append(next, w)
				}
			}
			sort.SliceStable(next, func(i, j int) bool { return degree[next[i]] < degree[next[j]] })
			queue = append(queue, next...)
		}
	}
	// 反转
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// symmetricAdjacency 构造无自环的对称邻接表
func symmetricAdjacency(a *SparseMatrix) [][]int {
	n := a.Rows()
	sets := make([]map[int]struct{}, n)
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	for i := 0; i < n; i++ {
		cols, vals := a.Row(i)
		for p, j := range cols {
			if j == i || vals[p] == 0 {
				continue
			}
			sets[i][j] = struct{}{}
			sets[j][i] = struct{}{}
		}
	}
	adj := make([][]int, n)
	for i, s := range sets {
		adj[i] = make([]int, 0, len(s))
		for j := range s {
			adj[i] = append(adj[i], j)
		}
		sort.Ints(adj[i])
	}
	return adj
}

// peripheral 通过反复层次遍历寻找伪外围节点
func peripheral(adj [][]int, degree []int, start int) int {
	root := start
	depth := -1
	for range 8 {
		levels := levelStructure(adj, root)
		if len(levels) <= depth+1 {
			break
		}
		depth = len(levels) - 1
		last := levels[depth]
		best := last[0]
		for _, v := range last[1:] {
			if degree[v] < degree[best] {
				best = v
			}
		}
		if best == root {
			break
		}
		root = best
	}
	return root
}

// levelStructure 以 root 为根的广度优先层次结构
func levelStructure(adj [][]int, root int) [][]int {
	seen := map[int]bool{root: true}
	levels := [][]int{{root}}
	for {
		var next []int
		for _, v := range levels[len(levels)-1] {
			for _, w := range adj[v] {
				if !seen[w] {
					seen[w] = true
					next = append(next, w)
				}
			}
		}
		if len(next) == 0 {
			return levels
		}
		levels = append(levels, next)
	}
}

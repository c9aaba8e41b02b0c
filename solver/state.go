// Package solver 两阶段延拓求解
//
// 第一阶段以衰减后的电导率求得低对比度的种子解，
// 第二阶段以完整电导率求解，种子解作为耦合项与初始猜测。
package solver

import "fmt"

// SeedFactor 种子阶段电导率缩放系数
var SeedFactor = 0.1

// State 延拓状态
type State int

const (
	Unsolved State = iota
	Seeded
	Converged
)

func (s State) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Seeded:
		return "seeded"
	case Converged:
		return "converged"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stage 当前状态下执行的求解阶段名
func (s State) Stage() string {
	if s == Unsolved {
		return "seed"
	}
	return "full"
}

// Action 阶段结束后的处理
type Action int

const (
	Advance   Action = iota // 采用本阶段结果
	ResetSeed               // 丢弃本阶段结果，以零场继续
	Fail                    // 终止本次计算
)

func (a Action) String() string {
	switch a {
	case Advance:
		return "advance"
	case ResetSeed:
		return "reset-seed"
	case Fail:
		return "fail"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Next 状态转移
//
//	Unsolved + ok   -> Seeded, Advance
//	Unsolved + err  -> Seeded, ResetSeed
//	Seeded   + ok   -> Converged, Advance
//	Seeded   + err  -> Seeded, Fail
//	Converged       -> Converged, Fail
func Next(s State, stageErr error) (State, Action) {
	switch s {
	case Unsolved:
		if stageErr != nil {
			return Seeded, ResetSeed
		}
		return Seeded, Advance
	case Seeded:
		if stageErr != nil {
			return Seeded, Fail
		}
		return Converged, Advance
	}
	return s, Fail
}

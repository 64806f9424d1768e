package errors

import "errors"

// ── 引擎错误分类 ──
// 各业务模块的错误通过 fmt.Errorf("...: %w", ErrXxx) 归入以下类别，
// Handler 层只需 errors.Is 判断类别即可映射 HTTP 状态码。

var (
	// ErrNotFound 引用的活动/展位/申请/冲突不存在或已被软删除
	ErrNotFound = errors.New("记录不存在或已删除")

	// ErrInvalidTransition 当前状态不允许该状态机操作，原记录保持不变
	ErrInvalidTransition = errors.New("当前状态不允许该操作")

	// ErrConstraintViolation 违反业务约束（重复的活跃冲突、获胜企业不在冲突列表中等）
	ErrConstraintViolation = errors.New("违反业务约束")

	// ErrComputation 时间区间非法、日期无法解析等计算错误
	ErrComputation = errors.New("计算失败")

	// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
	ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")
)


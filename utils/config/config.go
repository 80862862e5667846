package config

// RuntimeConfig 运行时配置
// 功能：存储规划器运行时的配置信息，对未指定项填充默认值
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
	V   Vehicle // 本车参数
	P   Planner // 规划参数（已填充默认值）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，进行配置验证和默认值填充
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 创建运行时配置对象
// 2. 对可省略的规划参数填充默认值
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	rc.V = config.Vehicle
	rc.P = config.Planner

	if rc.P.ExecuteObjectNum <= 0 {
		rc.P.ExecuteObjectNum = 1
	}
	if rc.P.ResampleIntervalForPlanning <= 0 {
		rc.P.ResampleIntervalForPlanning = 0.3
	}
	if rc.P.ObjectLastSeenThreshold <= 0 {
		rc.P.ObjectLastSeenThreshold = 2.0
	}
	if rc.P.ThresholdTimeObjectIsMoving <= 0 {
		rc.P.ThresholdTimeObjectIsMoving = 1.0
	}
	if rc.P.ThresholdSpeedObjectIsStopped <= 0 {
		rc.P.ThresholdSpeedObjectIsStopped = 1.0
	}
	if rc.P.LaneChangeSampleNum <= 0 {
		rc.P.LaneChangeSampleNum = 4
	}
	if rc.P.CheckDistance <= 0 {
		rc.P.CheckDistance = 100
	}
	if rc.P.SafetyCheckTimeHorizon <= 0 {
		rc.P.SafetyCheckTimeHorizon = 8.0
	}
	if rc.P.SafetyCheckTimeResolution <= 0 {
		rc.P.SafetyCheckTimeResolution = 0.5
	}
	if rc.P.SafetyCheckTimeMargin <= 0 {
		rc.P.SafetyCheckTimeMargin = 2.0
	}
	if rc.P.SafetyCheckLateralMargin <= 0 {
		rc.P.SafetyCheckLateralMargin = 1.0
	}

	return rc
}

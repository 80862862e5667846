package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 说明：如果指定了缓存路径则直接返回，否则使用默认命名规则{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定规划器所有输入数据的配置项
// 功能：定义地图与场景数据的输入配置
type Input struct {
	URI      string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Map      InputPath `yaml:"map"`           // 地图
	Scenario string    `yaml:"scenario"`      // 场景文件路径（YAML，逐周期感知帧）
}

// ControlStep 指定规划周期范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 规划器控制配置
type Control struct {
	Step ControlStep `yaml:"step"`
}

// Vehicle 本车参数配置
type Vehicle struct {
	Width              float64 `yaml:"width"`                // 车宽（米）
	Length             float64 `yaml:"length"`               // 车长（米）
	MaxDeceleration    float64 `yaml:"max_deceleration"`     // 最大减速度（米/秒²，取正值）
	ForwardPathLength  float64 `yaml:"forward_path_length"`  // 前向路径长度（米）
	BackwardPathLength float64 `yaml:"backward_path_length"` // 后向路径长度（米）
}

// Planner 避障变道规划配置
// 功能：定义避障变道决策核心的全部可调参数
type Planner struct {
	// 触发条件

	ExecuteObjectNum                            int32   `yaml:"execute_object_num"`                                 // 触发所需的最少目标物数量，最小1
	ExecuteObjectLongitudinalMargin             float64 `yaml:"execute_object_longitudinal_margin"`                 // 触发所需的最近目标物最小纵向距离（米）
	ExecuteOnlyWhenLaneChangeFinishBeforeObject bool    `yaml:"execute_only_when_lane_change_finish_before_object"` // 仅当变道能在到达目标物前完成时才触发

	// 目标物探测走廊

	DetectionAreaLeftExpandDist  float64 `yaml:"detection_area_left_expand_dist"`  // 探测区域左扩展距离（米）
	DetectionAreaRightExpandDist float64 `yaml:"detection_area_right_expand_dist"` // 探测区域右扩展距离（米）
	LateralPassableSafetyBuffer  float64 `yaml:"lateral_passable_safety_buffer"`   // 横向可通过安全缓冲（米）

	// 目标物跨周期跟踪

	ResampleIntervalForPlanning   float64 `yaml:"resample_interval_for_planning,omitempty"`    // 参考路径重采样间隔（米），默认0.3
	ObjectLastSeenThreshold       float64 `yaml:"object_last_seen_threshold,omitempty"`        // 注册表检测丢失补偿时限（秒），默认2.0
	ThresholdTimeObjectIsMoving   float64 `yaml:"threshold_time_object_is_moving,omitempty"`   // 低速持续该时长后判定为停止（秒），默认1.0
	ThresholdSpeedObjectIsStopped float64 `yaml:"threshold_speed_object_is_stopped,omitempty"` // 停止判定速度阈值（米/秒），默认1.0

	// 变道几何

	PrepareDuration             float64 `yaml:"prepare_duration"`                 // 变道准备时长（秒）
	MinimumLaneChangingLength   float64 `yaml:"minimum_lane_changing_length"`     // 最小变道长度（米）
	LaneChangeFinishJudgeBuffer float64 `yaml:"lane_change_finish_judge_buffer"`  // 变道完成判定缓冲（米）
	LaneChangeSampleNum         int     `yaml:"lane_change_sample_num,omitempty"` // 候选路径采样数，默认4
	CheckDistance               float64 `yaml:"check_distance,omitempty"`         // 安全检查探测距离（米），默认100

	// 安全评估

	SafetyCheckTimeHorizon    float64 `yaml:"safety_check_time_horizon,omitempty"`    // 前向碰撞预测时域（秒），默认8.0
	SafetyCheckTimeResolution float64 `yaml:"safety_check_time_resolution,omitempty"` // 前向碰撞预测时间步长（秒），默认0.5
	SafetyCheckTimeMargin     float64 `yaml:"safety_check_time_margin,omitempty"`     // 纵向时间裕度（秒），默认2.0
	SafetyCheckLateralMargin  float64 `yaml:"safety_check_lateral_margin,omitempty"`  // 横向安全裕度（米），默认1.0

	// 取消与中止

	EnableCancelLaneChange bool `yaml:"enable_cancel_lane_change"` // 允许在原车道内取消变道
	EnableAbortLaneChange  bool `yaml:"enable_abort_lane_change"`  // 允许计算返回原车道的中止路径

	// 可行驶区域

	DrivableAreaLeftBoundOffset  float64 `yaml:"drivable_area_left_bound_offset"`  // 可行驶区域左边界扩展（米）
	DrivableAreaRightBoundOffset float64 `yaml:"drivable_area_right_bound_offset"` // 可行驶区域右边界扩展（米）

	// 当前车道解析策略：true表示从上游参考路径解析，false表示从本车位置解析
	CurrentLaneFromReferencePath bool `yaml:"current_lane_from_reference_path,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Control Control `yaml:"control"` // 规划过程控制
	Vehicle Vehicle `yaml:"vehicle"` // 本车参数
	Planner Planner `yaml:"planner"` // 避障变道规划参数
}

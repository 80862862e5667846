package planner

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// Pose 位姿
type Pose struct {
	XYZ geometry.Point // 位置
	Yaw float64        // 航向角（弧度，atan2约定）
}

// Twist 速度
type Twist struct {
	V float64 // 纵向速度（米/秒）
	W float64 // 偏航角速度（弧度/秒）
}

// PathPoint 路径点
type PathPoint struct {
	Pose
	LaneID int32   // 所在车道ID
	V      float64 // 期望速度（米/秒）
}

// Path 带车道ID的路径
type Path struct {
	Points []PathPoint
}

// Empty 检查路径是否为空
func (p Path) Empty() bool {
	return len(p.Points) == 0
}

// ShiftLine 横向过渡段记录，标记路径在车道间横移的起止位姿
type ShiftLine struct {
	Start Pose // 横移开始位姿
	End   Pose // 横移结束位姿
}

// CandidatePath 候选变道路径
// 说明：由候选路径生成器产生，同一批候选按保守到激进排序，
// 最终只有一条会被提交为执行路径
type CandidatePath struct {
	Path          Path      // 路径本体
	ShiftLine     ShiftLine // 横向过渡段
	Length        float64   // 路径总长（米）
	PrepareLength float64   // 变道准备段长度（米）
	ChangeLength  float64   // 横移段长度（米）
	Acceleration  float64   // 纵向加速度（米/秒²）
	Direction     int       // 变道方向（entity.LEFT/RIGHT）
	TargetLaneIDs []int32   // 目标车道ID列表
}

// ManeuverStatus 变道机动状态
// 说明：由状态机独占持有，每次重新解析几何时整体替换
type ManeuverStatus struct {
	CurrentLanes  []entity.ILane // 当前车道序列
	TargetLanes   []entity.ILane // 目标车道序列
	Path          CandidatePath  // 选中的候选路径
	IsSafe        bool           // 安全标志，每周期重新计算
	IsValidPath   bool           // 路径有效标志，每周期重新计算
	StartDistance float64        // 机动开始时在目标车道序列上的弧长
	LaneFollowIDs []int32        // 跟车车道ID列表
	LaneChangeIDs []int32        // 变道车道ID列表
}

// AbortPath 中止路径：放弃变道并返回原车道的路径
// 说明：一旦发出审批请求，在批准或显式重置前不可变
type AbortPath struct {
	Path  CandidatePath // 返回原车道的路径
	Token string        // 中止路径的独立审批令牌
}

// ModuleState 机动状态机的外层生命周期
type ModuleState int32

const (
	StateWaitingApproval ModuleState = iota // 等待外部批准
	StateRunning                            // 执行中
	StateSucceeded                          // 完成
	StateFailed                             // 失败，调用方应交还控制权
)

func (s ModuleState) String() string {
	switch s {
	case StateWaitingApproval:
		return "WAITING_APPROVAL"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("ModuleState(%d)", int32(s))
	}
}

// SubState 执行中的内层子状态
type SubState int32

const (
	SubNormal SubState = iota // 正常执行
	SubCancel                 // 取消：本车仍在原车道内，零代价回退
	SubStop                   // 停止：无法取消也无法中止，保持上次路径
	SubAbort                  // 中止：沿中止路径返回原车道
)

func (s SubState) String() string {
	switch s {
	case SubNormal:
		return "NORMAL"
	case SubCancel:
		return "CANCEL"
	case SubStop:
		return "STOP"
	case SubAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("SubState(%d)", int32(s))
	}
}

// TurnSignal 转向灯指令
type TurnSignal int32

const (
	TurnSignalNone TurnSignal = iota
	TurnSignalLeft
	TurnSignalRight
)

// SteeringPhase 转向意图阶段
type SteeringPhase int32

const (
	SteeringApproaching SteeringPhase = iota // 接近横移段
	SteeringTurning                          // 正在横移
)

// SteeringIntent 转向意图记录，供下游上报
type SteeringIntent struct {
	Start          Pose          // 横移开始位姿
	End            Pose          // 横移结束位姿
	StartDistance  float64       // 本车到横移开始的弧长（米）
	FinishDistance float64       // 本车到横移结束的弧长（米）
	Direction      int           // 方向（entity.LEFT/RIGHT）
	Phase          SteeringPhase // 阶段
}

// PredictedTrajectory 感知提供的物体预测轨迹
type PredictedTrajectory struct {
	TimeStep   float64 // 相邻预测点的时间间隔（秒）
	Points     []Pose  // 预测位姿序列
	Confidence float64 // 置信度
}

// TrackedObject 感知跟踪物体快照，仅在本周期内有效
type TrackedObject struct {
	ID        int32                 // 物体ID
	Label     string                // 分类标签
	Pose      Pose                  // 位姿
	V         float64               // 速度（米/秒）
	Footprint []geometry.Point      // 世界坐标下的footprint多边形
	Predicted []PredictedTrajectory // 预测轨迹集合
}

// ObjectData 由分类器导出的物体数据，每周期重建
type ObjectData struct {
	Object        TrackedObject    // 原始快照
	Envelope      []geometry.Point // 包络多边形（与上周期注册包络合并后）
	Centroid      geometry.Point   // 包络质心
	Longitudinal  float64          // 本车沿路径到包络最近footprint点的弧长（米）
	Lateral       float64          // 最近路径位姿到物体位姿的横向偏差（米，右正）
	OverhangDist  float64          // 包络上最接近路径中心线的点的带符号横向距离（米，右正）
	OverhangPos   geometry.Point   // 上述点的位置
	StopTime      float64          // 低速累计时长（秒）
	LastSeen      float64          // 最后一次被检测到的时间（秒）
	AvoidRequired bool             // 是否需要避让
	Reason        string           // 排除原因（非目标物时）
}

// IsStopped 判断物体是否处于停止状态
// 说明：速度持续低于阈值达到指定时长后才视为停止，跨周期累计
func (o ObjectData) IsStopped(thresholdTime float64) bool {
	return o.StopTime >= thresholdTime
}

// IsOnRight 判断物体是否位于路径右侧
func (o ObjectData) IsOnRight() bool {
	return o.Lateral > 0
}

// AvoidancePlanningData 单周期的避障规划数据
type AvoidancePlanningData struct {
	ReferencePose    Pose           // 本车参考位姿
	ReferencePath    Path           // 重采样后的参考路径
	EgoClosestIndex  int            // 本车最近路径点索引
	ArclengthFromEgo []float64      // 各路径点相对本车的弧长
	CurrentLanes     []entity.ILane // 当前车道序列
	TargetObjects    []ObjectData   // 目标物，按纵向距离升序
	OtherObjects     []ObjectData   // 非目标物（带排除原因）
}

// PlanningData 每周期输入
type PlanningData struct {
	EgoPose       Pose            // 本车位姿
	EgoTwist      Twist           // 本车速度
	Objects       []TrackedObject // 感知跟踪物体列表
	ReferencePath Path            // 上游参考路径
}

// ObjectDebug 单个物体的安全评估调试信息
type ObjectDebug struct {
	ObjectID        int32   // 物体ID
	IsFront         bool    // 是否在本车前方
	RelativeToEgo   float64 // 相对本车的纵向距离（米）
	AllowLaneChange bool    // 该物体是否允许变道
	FailedReason    string  // 判定不安全的原因
	Velocity        float64 // 物体速度（米/秒）
}

// DebugData 调试数据快照，作为值返回，不写入共享状态
type DebugData struct {
	TargetObjects []ObjectData          // 目标物
	OtherObjects  []ObjectData          // 非目标物
	ObjectDebug   map[int32]ObjectDebug // 安全评估逐物体信息
	ValidPaths    []CandidatePath       // 本周期生成的全部有效候选
}

// CandidateOutput 供外部审查的候选路径输出（独立于已提交输出）
type CandidateOutput struct {
	Path                       Path    // 候选路径
	LateralShift               float64 // 横向位移（米，左正）
	StartDistanceToPathChange  float64 // 本车到横移开始的弧长（米）
	FinishDistanceToPathChange float64 // 本车到横移结束的弧长（米）
}

// Output 每周期输出
// 说明：每周期必定产生{执行中有路径, 执行中无输出, 完成, 失败}之一
type Output struct {
	State          ModuleState      // 外层状态
	SubState       SubState         // 内层子状态
	Active         bool             // 模块是否处于激活状态
	Path           *Path            // 发布的路径，nil表示本周期无输出
	Candidate      *CandidateOutput // 待审查候选
	TurnSignal     TurnSignal       // 转向灯指令
	SteeringIntent *SteeringIntent  // 转向意图记录
	Debug          DebugData        // 调试数据
}

package planner

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

const (
	// 低速判定阈值（米/秒，10km/h）
	lowSpeedThreshold = 10.0 / 3.6
	// 同一键的告警最小间隔（秒）
	warnThrottleInterval = 3.0
)

// Module 避障变道决策模块
// 功能：当前车道前方出现停止车辆时，判定并执行向相邻车道的避让变道，
// 包含触发判定、候选路径生成与安全评估、外部审批、执行监控与取消/中止/停止处置
// 说明：单线程周期驱动，所有跨周期状态由本实例独占持有；
// 审批信号每周期只读取一次，周期内使用该快照
type Module struct {
	ctx     entity.ITaskContext
	gateway IApprovalGateway

	laneProvider CurrentLaneProvider
	classifier   *ObjectClassifier
	generator    *CandidatePathGenerator
	evaluator    *SafetyEvaluator
	abortPlanner *AbortPathPlanner

	// 生命周期

	active   bool
	state    ModuleState
	subState SubState

	// 周期数据

	data        *PlanningData
	avoidance   AvoidancePlanningData
	status      ManeuverStatus
	validPaths  []CandidatePath
	objectDebug map[int32]ObjectDebug

	// 审批

	token               string // 前向变道审批令牌
	registeredDirection int    // 最近注册候选的变道方向
	hasRegistered       bool
	waitingApproval     bool
	activatedSnapshot   bool   // 本周期审批快照

	// 中止

	abortPath              *AbortPath // nil表示不存在，使用前必须判空
	abortApprovalRequested bool
	abortApproved          bool
	abortCondition         bool       // 本周期中止条件判定结果

	prevOutputPath Path
	lastWarn       map[string]float64
}

func NewModule(ctx entity.ITaskContext, gateway IApprovalGateway) *Module {
	return &Module{
		ctx:          ctx,
		gateway:      gateway,
		laneProvider: NewCurrentLaneProvider(ctx),
		classifier:   NewObjectClassifier(ctx),
		generator:    NewCandidatePathGenerator(ctx),
		evaluator:    NewSafetyEvaluator(ctx),
		abortPlanner: NewAbortPathPlanner(ctx),
		state:        StateWaitingApproval,
		subState:     SubNormal,
		objectDebug:  make(map[int32]ObjectDebug),
		lastWarn:     make(map[string]float64),
	}
}

// Run 执行一个规划周期
// 算法说明：目标物分类 → 触发判定（未激活时）→ 审批快照 → 状态迁移 →
// 按等待审批/执行中产生输出，每周期必定返回良构的Output
func (m *Module) Run(data *PlanningData) Output {
	m.data = data
	m.updateData()

	if !m.active {
		if !m.isExecutionRequested() {
			return Output{State: m.state, SubState: m.subState, Debug: m.debugData()}
		}
		m.onEntry()
	}

	m.activatedSnapshot = m.gateway.IsActivated(m.currentToken())
	m.state = m.updateState()
	if m.state == StateSucceeded || m.state == StateFailed {
		out := Output{State: m.state, SubState: m.subState, Active: true, Debug: m.debugData()}
		m.onExit()
		return out
	}
	if m.waitingApproval && m.activatedSnapshot && m.status.IsSafe {
		log.Infof("lane change approved, direction=%d", m.status.Path.Direction)
		m.waitingApproval = false
	}

	var out Output
	if m.waitingApproval {
		out = m.planWaitingApproval()
		out.State = StateWaitingApproval
	} else {
		out = m.plan()
		out.State = m.state
	}
	out.SubState = m.subState
	out.Active = true
	out.Debug = m.debugData()
	return out
}

// Debug 获取本周期的调试数据快照（只读）
func (m *Module) Debug() DebugData {
	return m.debugData()
}

// State 获取当前外层状态
func (m *Module) State() ModuleState { return m.state }

// SubStateNow 获取当前内层子状态
func (m *Module) SubStateNow() SubState { return m.subState }

func (m *Module) debugData() DebugData {
	return DebugData{
		TargetObjects: m.avoidance.TargetObjects,
		OtherObjects:  m.avoidance.OtherObjects,
		ObjectDebug:   m.objectDebug,
		ValidPaths:    m.validPaths,
	}
}

func (m *Module) currentToken() string {
	if m.abortApprovalRequested && m.abortPath != nil {
		return m.abortPath.Token
	}
	return m.token
}

// updateData 准备本周期的避障规划数据
func (m *Module) updateData() {
	p := m.ctx.RuntimeConfig().P
	m.objectDebug = make(map[int32]ObjectDebug)
	m.avoidance = AvoidancePlanningData{
		ReferencePose: m.data.EgoPose,
		ReferencePath: resamplePath(m.data.ReferencePath, p.ResampleIntervalForPlanning),
		CurrentLanes:  m.laneProvider.CurrentLanes(m.data),
	}
	if !m.avoidance.ReferencePath.Empty() {
		m.avoidance.EgoClosestIndex = findNearestIndex(m.avoidance.ReferencePath, m.data.EgoPose.XYZ)
		lengths := calcPathLengths(m.avoidance.ReferencePath)
		base := lengths[m.avoidance.EgoClosestIndex]
		m.avoidance.ArclengthFromEgo = lo.Map(lengths, func(l float64, _ int) float64 { return l - base })
	}
	m.classifier.Classify(&m.avoidance, m.data.Objects)
}

// updateLaneChangeStatus 重新解析机动几何并选择候选路径
// 说明：整体替换ManeuverStatus，安全/有效标志从零重新计算
func (m *Module) updateLaneChangeStatus() {
	p := m.ctx.RuntimeConfig().P
	targets := m.avoidance.TargetObjects
	status := ManeuverStatus{CurrentLanes: m.avoidance.CurrentLanes}
	m.validPaths = nil

	// 无目标物或触发数量不足时不解析目标车道
	if len(targets) == 0 || len(targets) < int(p.ExecuteObjectNum) || len(status.CurrentLanes) == 0 {
		m.status = status
		return
	}
	side := entity.RIGHT
	if targets[0].IsOnRight() {
		side = entity.LEFT
	}
	status.TargetLanes = getLaneChangeLanes(m.ctx, status.CurrentLanes, m.data.EgoPose, m.data.EgoTwist, side)
	if len(status.TargetLanes) == 0 {
		m.status = status
		return
	}

	paths := m.generator.GetLaneChangePaths(status.CurrentLanes, status.TargetLanes,
		m.data.EgoPose, m.data.EgoTwist, side)
	selected, foundValid, foundSafe, valid := m.generator.SelectLaneChangePath(paths,
		status.CurrentLanes, status.TargetLanes, m.safetyCheckObjects(),
		m.data.EgoPose, m.data.EgoTwist, m.evaluator, m.objectDebug)
	if !foundValid {
		m.status = status
		return
	}
	status.Path = selected
	status.IsSafe = foundSafe
	status.IsValidPath = true
	status.StartDistance = newLaneArc(status.TargetLanes).project(m.data.EgoPose.XYZ)
	status.LaneFollowIDs = lo.Map(status.CurrentLanes, func(l entity.ILane, _ int) int32 { return l.ID() })
	status.LaneChangeIDs = selected.TargetLaneIDs
	m.status = status
	m.validPaths = valid
}

// safetyCheckObjects 安全评估需要考虑的物体
// 说明：目标物加上所有关注类型的其他车辆（目标车道上的移动车辆
// 不在探测走廊内，但直接决定变道是否安全）
func (m *Module) safetyCheckObjects() []ObjectData {
	objects := append([]ObjectData{}, m.avoidance.TargetObjects...)
	for _, o := range m.avoidance.OtherObjects {
		if o.Reason != reasonNotTargetType {
			objects = append(objects, o)
		}
	}
	return objects
}

// isExecutionRequested 触发判定
// 算法说明：目标物数量达到阈值，且能解析出有效候选路径，
// 且最近目标物纵向距离不小于触发裕度；按配置还要求变道在到达目标物前完成
func (m *Module) isExecutionRequested() bool {
	p := m.ctx.RuntimeConfig().P
	targets := m.avoidance.TargetObjects
	if len(targets) == 0 || len(targets) < int(p.ExecuteObjectNum) {
		return false
	}
	m.updateLaneChangeStatus()
	if !m.status.IsValidPath {
		return false
	}
	front := targets[0]
	if front.Longitudinal < p.ExecuteObjectLongitudinalMargin {
		return false
	}
	if p.ExecuteOnlyWhenLaneChangeFinishBeforeObject &&
		m.maneuverFinishDistance() >= front.Longitudinal {
		return false
	}
	return true
}

// maneuverFinishDistance 本车到变道完成点的弧长
func (m *Module) maneuverFinishDistance() float64 {
	p := m.ctx.RuntimeConfig().P
	return m.status.Path.PrepareLength + m.status.Path.ChangeLength + p.LaneChangeFinishJudgeBuffer
}

// onEntry 进入等待审批状态
// 说明：重置中止标志与子状态，生成新审批令牌
func (m *Module) onEntry() {
	log.Infof("avoidance lane change triggered, %d target objects", len(m.avoidance.TargetObjects))
	m.active = true
	m.state = StateWaitingApproval
	m.subState = SubNormal
	m.waitingApproval = true
	m.token = NewApprovalToken()
	m.hasRegistered = false
	m.abortPath = nil
	m.abortApprovalRequested = false
	m.abortApproved = false
	m.abortCondition = false
}

// onExit 退出时清理调试缓存、中止指针与待批标志
func (m *Module) onExit() {
	m.gateway.Invalidate(m.token)
	if m.abortPath != nil {
		m.gateway.Invalidate(m.abortPath.Token)
	}
	m.active = false
	m.subState = SubNormal
	m.waitingApproval = false
	m.hasRegistered = false
	m.abortPath = nil
	m.abortApprovalRequested = false
	m.abortApproved = false
	m.abortCondition = false
	m.validPaths = nil
	m.objectDebug = make(map[int32]ObjectDebug)
	m.prevOutputPath = Path{}
}

// updateState 状态迁移判定
// 算法说明：
// 1. 路径失效直接完成（放弃发布几何不安全的路径，交还控制权）
// 2. 等待审批期间触发条件消失：未获批时退出（完成），已获批时失败
// 3. 中止条件成立时基本保持执行（取消/中止/停止均在子状态内处置），
// 仅当本车已不在任何车道安全包络内时失败
// 4. 获批的中止路径把本车带回原车道后本次机动结束（完成），
// 恢复正常只能经由重新触发进入
// 5. 行驶弧长超过机动长度加缓冲则完成
func (m *Module) updateState() ModuleState {
	p := m.ctx.RuntimeConfig().P
	if !m.status.IsValidPath {
		return StateSucceeded
	}
	targets := m.avoidance.TargetObjects
	if m.waitingApproval {
		backOut := func() ModuleState {
			if m.activatedSnapshot {
				return StateFailed
			}
			return StateSucceeded
		}
		if len(targets) == 0 || len(targets) < int(p.ExecuteObjectNum) {
			return backOut()
		}
		if targets[0].Longitudinal < p.ExecuteObjectLongitudinalMargin {
			return backOut()
		}
		if p.ExecuteOnlyWhenLaneChangeFinishBeforeObject &&
			m.maneuverFinishDistance() >= targets[0].Longitudinal {
			return backOut()
		}
		return StateRunning
	}

	within := m.isEgoWithinOriginalLane()
	if m.subState == SubAbort {
		// 中止路径一经申请审批即不可变，不再重评提交路径
		if !within {
			return StateRunning
		}
		// 已沿中止路径返回原车道：本次机动结束，后续处置经由重新触发
		if m.abortApproved {
			log.Info("abort finished, ego back in original lane")
			return StateSucceeded
		}
	}
	m.abortCondition = m.checkAbortCondition(within)
	if m.abortCondition {
		if !within && !m.isEgoWithinTargetLane() {
			log.Error("ego left both original and target lane envelopes, relinquish control")
			return StateFailed
		}
		return StateRunning
	}
	if m.hasFinishedManeuver() {
		log.Info("lane change finished")
		return StateSucceeded
	}
	return StateRunning
}

// checkAbortCondition 中止子状态机
// 参数：within-本车是否仍在原车道包络内
// 返回：提交路径是否不再安全
// 算法说明：
// 1. 提交路径复查仍安全时维持Normal（已在中止流程中的不回退）
// 2. 不安全且仍在原车道内（允许取消）⇒ Cancel：零代价回退原参考路径
// 3. 不安全且允许中止 ⇒ 计算返回原车道的中止路径，成功则Abort并要求新审批
// 4. 均不可行 ⇒ Stop：保持上次路径并限流告警，无进一步自动处置
func (m *Module) checkAbortCondition(within bool) bool {
	p := m.ctx.RuntimeConfig().P
	safe := m.evaluator.IsApprovedPathSafe(m.status, m.safetyCheckObjects(),
		m.data.EgoPose, m.data.EgoTwist, m.objectDebug)
	m.status.IsSafe = safe
	if safe {
		if m.subState != SubAbort {
			m.subState = SubNormal
		}
		return false
	}
	if p.EnableCancelLaneChange && within {
		m.subState = SubCancel
		log.Info("lane change path is unsafe, cancel within original lane")
		return true
	}
	if !p.EnableAbortLaneChange {
		m.subState = SubStop
		m.warnThrottled("abort-disabled",
			"lane change path is unsafe but abort is disabled, hold last path")
		return true
	}
	if m.abortPath == nil {
		ap := m.abortPlanner.GetAbortPath(m.status.CurrentLanes, m.status.Path,
			m.data.EgoPose, m.data.EgoTwist)
		if ap == nil {
			m.subState = SubStop
			m.warnThrottled("abort-infeasible",
				"lane change path is unsafe and no abort path is feasible, hold last path")
			return true
		}
		m.abortPath = &AbortPath{Path: *ap, Token: NewApprovalToken()}
	}
	m.subState = SubAbort
	return true
}

// plan 已获批后的周期规划
// 算法说明：
// 1. 提交路径有效性复查失败时标记失效，本周期无输出
// 2. 近车道末端且低速的强制继续场景插入停车点
// 3. Cancel回退原参考路径；Abort在新审批通过后切换到中止路径
func (m *Module) plan() Output {
	out := Output{}
	path := clonePath(m.status.Path.Path)
	if !m.generator.IsValidPath(path, m.status.CurrentLanes, m.status.TargetLanes) {
		log.Warn("committed lane change path is no longer valid")
		m.status.IsValidPath = false
		return out
	}
	m.status.IsValidPath = true

	if m.abortCondition && m.isNearEndOfLane() && m.isCurrentSpeedLow() {
		m.insertStopPoint(&path)
	}
	direction := m.status.Path.Direction
	switch m.subState {
	case SubCancel:
		path = clonePath(m.data.ReferencePath)
		direction = -1
	case SubAbort:
		m.resetPathIfAbort()
		if m.abortApproved && m.abortPath != nil {
			path = clonePath(m.abortPath.Path.Path)
			direction = m.abortPath.Path.Direction
		} else if !m.prevOutputPath.Empty() {
			// 新审批未通过前继续输出旧路径
			path = clonePath(m.prevOutputPath)
		}
	}

	out.Path = &path
	out.TurnSignal = turnSignalFor(direction)
	out.SteeringIntent = m.steeringIntent(path, direction)
	m.prevOutputPath = path
	return out
}

// resetPathIfAbort 中止路径的审批流转
// 算法说明：首次进入时作废前向变道的注册并用新令牌注册中止路径；
// 此后每周期根据审批快照更新批准标志
func (m *Module) resetPathIfAbort() {
	if m.abortPath == nil {
		log.Panic("abort sub-state without abort path")
		return
	}
	if !m.abortApprovalRequested {
		m.gateway.Invalidate(m.token)
		m.registerCandidate(m.abortPath.Token, m.abortPath.Path)
		m.abortApprovalRequested = true
		m.abortApproved = false
		log.Info("abort path registered, waiting for fresh approval")
		return
	}
	if m.activatedSnapshot {
		if !m.abortApproved {
			log.Info("abort path approved")
		}
		m.abortApproved = true
	} else {
		m.abortApproved = false
	}
}

// planWaitingApproval 等待审批期间的周期规划
// 算法说明：输出上周期已获批路径（无则用上游参考路径），在最近目标物前
// 插入减速点；重新解析机动几何并把最新候选注册到审批网关供外部审查；
// 候选变道方向发生变化时作废旧令牌并换发新令牌
func (m *Module) planWaitingApproval() Output {
	out := Output{}
	prev := m.prevOutputPath
	if prev.Empty() {
		prev = m.data.ReferencePath
	}
	path := clonePath(prev)
	if targets := m.avoidance.TargetObjects; len(targets) > 0 {
		m.insertDecelPoint(&path, targets[0].Longitudinal)
	}
	out.Path = &path
	m.prevOutputPath = path

	m.updateLaneChangeStatus()
	if m.status.IsValidPath {
		if m.hasRegistered && m.registeredDirection != m.status.Path.Direction {
			m.gateway.Invalidate(m.token)
			m.token = NewApprovalToken()
			log.Info("candidate direction changed, approval token reissued")
		}
		candidate := m.planCandidate()
		out.Candidate = &candidate
		out.TurnSignal = turnSignalFor(m.status.Path.Direction)
		out.SteeringIntent = m.steeringIntent(m.status.Path.Path, m.status.Path.Direction)
		m.registerCandidate(m.token, m.status.Path)
		m.hasRegistered = true
		m.registeredDirection = m.status.Path.Direction
	}
	m.abortApprovalRequested = false
	m.abortApproved = false
	return out
}

// planCandidate 构造供外部审查的候选输出
func (m *Module) planCandidate() CandidateOutput {
	c := m.status.Path
	lengths := calcPathLengths(c.Path)
	start := calcSignedArcLength(c.Path, lengths, m.data.EgoPose.XYZ, c.ShiftLine.Start.XYZ)
	finish := calcSignedArcLength(c.Path, lengths, m.data.EgoPose.XYZ, c.ShiftLine.End.XYZ)
	// 横向位移取横移终点相对起点位姿的偏差，左正
	shift := -calcLateralDeviation(c.ShiftLine.Start, c.ShiftLine.End.XYZ)
	return CandidateOutput{
		Path:                       c.Path,
		LateralShift:               shift,
		StartDistanceToPathChange:  start,
		FinishDistanceToPathChange: finish,
	}
}

func (m *Module) registerCandidate(token string, c CandidatePath) {
	lengths := calcPathLengths(c.Path)
	m.gateway.Register(PendingCandidate{
		Token:          token,
		Path:           c.Path,
		StartDistance:  calcSignedArcLength(c.Path, lengths, m.data.EgoPose.XYZ, c.ShiftLine.Start.XYZ),
		FinishDistance: calcSignedArcLength(c.Path, lengths, m.data.EgoPose.XYZ, c.ShiftLine.End.XYZ),
	})
}

// hasFinishedManeuver 判断变道是否完成
// 说明：本车在目标车道序列上行驶的弧长超过机动长度（准备段+横移段）加完成判定缓冲
func (m *Module) hasFinishedManeuver() bool {
	if len(m.status.TargetLanes) == 0 {
		return false
	}
	p := m.ctx.RuntimeConfig().P
	arc := newLaneArc(m.status.TargetLanes)
	travelled := arc.project(m.data.EgoPose.XYZ) - m.status.StartDistance
	return travelled > m.status.Path.PrepareLength+m.status.Path.ChangeLength+p.LaneChangeFinishJudgeBuffer
}

// isEgoWithinOriginalLane 判断本车footprint是否仍在原车道包络内
func (m *Module) isEgoWithinOriginalLane() bool {
	return m.isEgoWithinLanes(m.status.CurrentLanes)
}

func (m *Module) isEgoWithinTargetLane() bool {
	return m.isEgoWithinLanes(m.status.TargetLanes)
}

func (m *Module) isEgoWithinLanes(lanes []entity.ILane) bool {
	if len(lanes) == 0 {
		return false
	}
	p := m.ctx.RuntimeConfig().P
	v := m.ctx.RuntimeConfig().V
	polygons := lo.Map(lanes, func(l entity.ILane, _ int) []geometry.Point {
		return l.BoundaryPolygon(p.DrivableAreaLeftBoundOffset, p.DrivableAreaRightBoundOffset)
	})
	footprint := VehicleFootprint(m.data.EgoPose, v.Length, v.Width)
	return lo.EveryBy(footprint, func(pt geometry.Point) bool {
		return pointInAnyPolygon(polygons, pt)
	})
}

// isNearEndOfLane 判断当前车道序列剩余长度是否已不足以再做一次机动
func (m *Module) isNearEndOfLane() bool {
	if len(m.status.CurrentLanes) == 0 {
		return false
	}
	arc := newLaneArc(m.status.CurrentLanes)
	remaining := arc.remaining(arc.project(m.data.EgoPose.XYZ))
	return remaining < m.maneuverFinishDistance()
}

func (m *Module) isCurrentSpeedLow() bool {
	return m.data.EgoTwist.V < lowSpeedThreshold
}

// insertStopPoint 在当前车道末端前插入停车点
// 说明：按最大减速度的一半做舒适减速的速度包络
func (m *Module) insertStopPoint(path *Path) {
	if len(m.status.CurrentLanes) == 0 || path.Empty() {
		return
	}
	p := m.ctx.RuntimeConfig().P
	arc := newLaneArc(m.status.CurrentLanes)
	stopS := arc.remaining(arc.project(m.data.EgoPose.XYZ)) - p.LaneChangeFinishJudgeBuffer
	m.limitSpeedTowardStop(path, stopS)
}

// insertDecelPoint 在目标物前插入减速点
func (m *Module) insertDecelPoint(path *Path, objectLongitudinal float64) {
	p := m.ctx.RuntimeConfig().P
	stopS := objectLongitudinal - p.ExecuteObjectLongitudinalMargin
	m.limitSpeedTowardStop(path, stopS)
}

// limitSpeedTowardStop 将路径点速度限制为到停车点的减速包络
// 参数：stopS-停车点相对本车的弧长
func (m *Module) limitSpeedTowardStop(path *Path, stopS float64) {
	v := m.ctx.RuntimeConfig().V
	decel := v.MaxDeceleration / 2
	if decel <= 0 {
		decel = 1.0
	}
	lengths := calcPathLengths(*path)
	egoBase := lengths[findNearestIndex(*path, m.data.EgoPose.XYZ)]
	for i := range path.Points {
		remaining := stopS - (lengths[i] - egoBase)
		if remaining <= 0 {
			path.Points[i].V = 0
			continue
		}
		vLimit := math.Sqrt(2 * decel * remaining)
		if path.Points[i].V > vLimit {
			path.Points[i].V = vLimit
		}
	}
}

// steeringIntent 构造转向意图记录
func (m *Module) steeringIntent(path Path, direction int) *SteeringIntent {
	if direction != entity.LEFT && direction != entity.RIGHT {
		return nil
	}
	sl := m.status.Path.ShiftLine
	if m.subState == SubAbort && m.abortApproved && m.abortPath != nil {
		sl = m.abortPath.Path.ShiftLine
	}
	lengths := calcPathLengths(path)
	start := calcSignedArcLength(path, lengths, m.data.EgoPose.XYZ, sl.Start.XYZ)
	finish := calcSignedArcLength(path, lengths, m.data.EgoPose.XYZ, sl.End.XYZ)
	phase := SteeringApproaching
	if start <= 0 {
		phase = SteeringTurning
	}
	return &SteeringIntent{
		Start:          sl.Start,
		End:            sl.End,
		StartDistance:  start,
		FinishDistance: finish,
		Direction:      direction,
		Phase:          phase,
	}
}

func turnSignalFor(direction int) TurnSignal {
	switch direction {
	case entity.LEFT:
		return TurnSignalLeft
	case entity.RIGHT:
		return TurnSignalRight
	default:
		return TurnSignalNone
	}
}

func clonePath(p Path) Path {
	return Path{Points: append([]PathPoint{}, p.Points...)}
}

// warnThrottled 限流告警，同一键在最小间隔内只告警一次
func (m *Module) warnThrottled(key, msg string) {
	now := m.ctx.Clock().T
	if last, ok := m.lastWarn[key]; ok && now-last < warnThrottleInterval {
		return
	}
	m.lastWarn[key] = now
	log.Warn(msg)
}

package planner_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/planner"
)

// startRunning 把模块推进到已获批执行状态
// 说明：第一周期注册候选并等待审批，批准后第二周期进入执行
func startRunning(t *testing.T, ctx *testContext, m *planner.Module,
	gw *planner.ManualGateway, data *planner.PlanningData) planner.Output {
	out := m.Run(data)
	require.Equal(t, planner.StateWaitingApproval, out.State)
	require.NotNil(t, out.Candidate)
	for _, token := range gw.Pending() {
		gw.Approve(token)
	}
	ctx.clk.Tick()
	out = m.Run(data)
	require.Equal(t, planner.StateRunning, out.State)
	require.NotNil(t, out.Path)
	return out
}

func TestExecutionNotRequestedBelowMargin(t *testing.T) {
	// Scenario A：目标物纵向距离3米 < 触发裕度5米，不触发
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 53, -0.5, 0)))
	assert.False(t, out.Active)
	assert.Nil(t, out.Path)
	assert.Nil(t, out.Candidate)
}

func TestExecutionNotRequestedBelowObjectNum(t *testing.T) {
	p := defaultPlannerConfig()
	p.ExecuteObjectNum = 2
	ctx := newTestContext(p)
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0)))
	assert.False(t, out.Active)
	// 触发数量不足时不解析目标车道，也不生成候选
	assert.Empty(t, out.Debug.ValidPaths)
}

func TestRunWithoutObjectsAndZeroTriggerCount(t *testing.T) {
	// execute_object_num为0时按1处理，无目标物的周期不触发也不越界
	p := defaultPlannerConfig()
	p.ExecuteObjectNum = 0
	ctx := newTestContext(p)
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	out := m.Run(planningData(ctx, 50, 0, 10))
	assert.False(t, out.Active)
	assert.Nil(t, out.Path)
	assert.Nil(t, out.Candidate)
	assert.Empty(t, out.Debug.TargetObjects)
}

func TestExecutionNotRequestedWhenCannotFinishBeforeObject(t *testing.T) {
	p := defaultPlannerConfig()
	p.ExecuteOnlyWhenLaneChangeFinishBeforeObject = true
	ctx := newTestContext(p)
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	// 变道完成点（准备20米+横移40米+缓冲2米）远在目标物（约38米）之后
	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0)))
	assert.False(t, out.Active)
}

func TestApprovalFlowAndLaneChangeOutput(t *testing.T) {
	// Scenario B：前方停止车辆，左侧有相邻车道，批准后输出变道路径
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))

	// 等待审批周期：输出沿用参考路径（带减速点），候选单独发布
	out := m.Run(data)
	require.Equal(t, planner.StateWaitingApproval, out.State)
	require.True(t, out.Active)
	require.NotNil(t, out.Candidate)
	assert.Positive(t, out.Candidate.LateralShift) // 左移为正
	assert.Equal(t, planner.TurnSignalLeft, out.TurnSignal)
	require.NotNil(t, out.Path)
	// 未批准前不提交变道路径，输出仍在本车道上
	for _, pt := range out.Path.Points {
		assert.InDelta(t, 0, pt.XYZ.Y, 0.1)
	}
	// 减速点：目标物前的路径点速度被压低至0
	last := out.Path.Points[len(out.Path.Points)-1]
	assert.Zero(t, last.V)

	// 批准后进入执行，输出变道路径
	for _, token := range gw.Pending() {
		gw.Approve(token)
	}
	ctx.clk.Tick()
	out = m.Run(data)
	require.Equal(t, planner.StateRunning, out.State)
	assert.Equal(t, planner.SubNormal, out.SubState)
	require.NotNil(t, out.Path)
	assert.Equal(t, planner.TurnSignalLeft, out.TurnSignal)
	require.NotNil(t, out.SteeringIntent)
	assert.Equal(t, planner.SteeringApproaching, out.SteeringIntent.Phase)
	// 路径终点应落在目标车道中心线上
	end := out.Path.Points[len(out.Path.Points)-1]
	assert.InDelta(t, 3.5, end.XYZ.Y, 0.1)
	assert.Contains(t, lo.Map(out.Path.Points, func(pt planner.PathPoint, _ int) int32 { return pt.LaneID }), int32(101))
}

func TestTokenReissuedOnDirectionChange(t *testing.T) {
	// 等待审批期间候选变道方向翻转时，旧令牌作废并换发新令牌
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0)))
	require.Equal(t, planner.StateWaitingApproval, out.State)
	require.Equal(t, planner.TurnSignalLeft, out.TurnSignal)
	pending := gw.Pending()
	require.Len(t, pending, 1)
	oldToken := pending[0]

	// 更近的偏左目标物出现，变道方向翻转为右
	ctx.clk.Tick()
	out = m.Run(planningData(ctx, 50, 0, 10, car(2, 80, 0.5, 0)))
	require.Equal(t, planner.StateWaitingApproval, out.State)
	assert.Equal(t, planner.TurnSignalRight, out.TurnSignal)
	pending = gw.Pending()
	require.Len(t, pending, 1)
	assert.NotEqual(t, oldToken, pending[0])
}

func TestCommittedPathStable(t *testing.T) {
	// 提交路径在持续安全时跨周期保持不变
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))

	out := startRunning(t, ctx, m, gw, data)
	first := *out.Path
	for i := 0; i < 3; i++ {
		ctx.clk.Tick()
		out = m.Run(data)
		require.Equal(t, planner.StateRunning, out.State)
		require.Equal(t, planner.SubNormal, out.SubState)
		require.NotNil(t, out.Path)
		require.Equal(t, len(first.Points), len(out.Path.Points))
		assert.Equal(t, first.Points[0].XYZ, out.Path.Points[0].XYZ)
		assert.Equal(t, first.Points[len(first.Points)-1].XYZ,
			out.Path.Points[len(out.Path.Points)-1].XYZ)
	}
}

func TestCancelWithinOriginalLane(t *testing.T) {
	// Scenario C：执行中路径变得不安全且本车仍在原车道内，取消并回退参考路径
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))
	startRunning(t, ctx, m, gw, data)

	// 目标车道后方快车逼近，提交路径不再安全
	overtaker := car(2, 45, 3.5, 12)
	ctx.clk.Tick()
	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0), overtaker))
	assert.Equal(t, planner.StateRunning, out.State)
	assert.Equal(t, planner.SubCancel, out.SubState)
	require.NotNil(t, out.Path)
	// 回退到原车道参考路径
	for _, pt := range out.Path.Points {
		assert.InDelta(t, 0, pt.XYZ.Y, 0.1)
	}
	assert.Equal(t, planner.TurnSignalNone, out.TurnSignal)
}

func TestAbortWithFreshApproval(t *testing.T) {
	// Scenario D：本车已离开原车道时不安全，计算中止路径并要求新审批
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))
	out := startRunning(t, ctx, m, gw, data)
	committed := *out.Path

	// 本车已横移到目标车道一侧，快车逼近
	unsafe := planningData(ctx, 50, 3.0, 10, car(1, 90, -0.5, 0), car(2, 45, 3.5, 12))
	ctx.clk.Tick()
	out = m.Run(unsafe)
	assert.Equal(t, planner.StateRunning, out.State)
	assert.Equal(t, planner.SubAbort, out.SubState)
	require.NotNil(t, out.Path)
	// 新审批未通过前继续输出旧路径
	assert.Equal(t, committed.Points[0].XYZ, out.Path.Points[0].XYZ)
	// 中止路径以独立令牌注册
	require.NotEmpty(t, gw.Pending())

	// 批准中止路径后输出切换为返回原车道的路径
	for _, token := range gw.Pending() {
		gw.Approve(token)
	}
	ctx.clk.Tick()
	out = m.Run(unsafe)
	assert.Equal(t, planner.StateRunning, out.State)
	assert.Equal(t, planner.SubAbort, out.SubState)
	require.NotNil(t, out.Path)
	// 中止路径从本车当前位置出发并收敛回原车道中心线
	assert.InDelta(t, 3.0, out.Path.Points[0].XYZ.Y, 0.2)
	end := out.Path.Points[len(out.Path.Points)-1]
	assert.InDelta(t, 0, end.XYZ.Y, 0.2)

	// 本车返回原车道后本次机动结束
	ctx.clk.Tick()
	out = m.Run(planningData(ctx, 55, 0, 10, car(1, 90, -0.5, 0), car(2, 60, 3.5, 12)))
	assert.Equal(t, planner.StateSucceeded, out.State)
}

func TestStopWhenAbortInfeasible(t *testing.T) {
	// Scenario E：中止路径不可行（车道剩余长度不足），进入Stop并保持上次路径
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))
	out := startRunning(t, ctx, m, gw, data)
	committed := *out.Path

	// 本车被推进到车道末端附近，且已离开原车道
	unsafe := planningData(ctx, 485, 3.0, 10, car(2, 490, 3.5, 12))
	ctx.clk.Tick()
	out = m.Run(unsafe)
	assert.Equal(t, planner.StateRunning, out.State)
	assert.Equal(t, planner.SubStop, out.SubState)
	require.NotNil(t, out.Path)
	assert.Equal(t, committed.Points[0].XYZ, out.Path.Points[0].XYZ)
}

func TestNeverAbortWhenDisabled(t *testing.T) {
	// enable_abort_lane_change=false时子状态只会是Cancel或Stop
	p := defaultPlannerConfig()
	p.EnableAbortLaneChange = false
	p.EnableCancelLaneChange = false
	ctx := newTestContext(p)
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)
	data := planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0))
	startRunning(t, ctx, m, gw, data)

	unsafe := planningData(ctx, 50, 3.0, 10, car(1, 90, -0.5, 0), car(2, 45, 3.5, 12))
	for i := 0; i < 5; i++ {
		ctx.clk.Tick()
		out := m.Run(unsafe)
		assert.NotEqual(t, planner.SubAbort, out.SubState)
		assert.Equal(t, planner.SubStop, out.SubState)
	}
}

func TestSelectionLastIfSafeElseFirst(t *testing.T) {
	ctx := newTestContext(defaultPlannerConfig())
	generator := planner.NewCandidatePathGenerator(ctx)
	evaluator := planner.NewSafetyEvaluator(ctx)
	data := planningData(ctx, 50, 0, 10)
	egoPose := data.EgoPose

	currentLanes := planner.NewCurrentLaneProvider(ctx).CurrentLanes(data)
	require.NotEmpty(t, currentLanes)
	targetLanes := planner.NewCurrentLaneProvider(ctx).CurrentLanes(
		planningData(ctx, 50, 3.5, 10))
	require.NotEmpty(t, targetLanes)

	paths := generator.GetLaneChangePaths(currentLanes, targetLanes, egoPose, data.EgoTwist, 0)
	require.NotEmpty(t, paths)

	// 无障碍物：选中最后（最激进）候选
	selected, foundValid, foundSafe, valid := generator.SelectLaneChangePath(paths,
		currentLanes, targetLanes, nil, egoPose, data.EgoTwist, evaluator, nil)
	require.True(t, foundValid)
	require.True(t, foundSafe)
	assert.Equal(t, valid[len(valid)-1].ChangeLength, selected.ChangeLength)
	assert.Equal(t, valid[len(valid)-1].Acceleration, selected.Acceleration)

	// 目标车道快车逼近使所有候选不安全：退选第一条（最保守），标志置false
	blocker := planner.ObjectData{Object: car(9, 45, 3.5, 12), Longitudinal: -5}
	selected, foundValid, foundSafe, valid = generator.SelectLaneChangePath(paths,
		currentLanes, targetLanes, []planner.ObjectData{blocker},
		egoPose, data.EgoTwist, evaluator, nil)
	require.True(t, foundValid)
	assert.False(t, foundSafe)
	assert.Equal(t, valid[0].ChangeLength, selected.ChangeLength)
	assert.Equal(t, valid[0].Acceleration, selected.Acceleration)
}

func TestSafetyCheckDistanceBound(t *testing.T) {
	// 纵向距离超出check_distance的物体不参与安全评估
	p := defaultPlannerConfig()
	p.CheckDistance = 3
	ctx := newTestContext(p)
	generator := planner.NewCandidatePathGenerator(ctx)
	evaluator := planner.NewSafetyEvaluator(ctx)
	data := planningData(ctx, 50, 0, 10)
	egoPose := data.EgoPose

	currentLanes := planner.NewCurrentLaneProvider(ctx).CurrentLanes(data)
	targetLanes := planner.NewCurrentLaneProvider(ctx).CurrentLanes(
		planningData(ctx, 50, 3.5, 10))
	paths := generator.GetLaneChangePaths(currentLanes, targetLanes, egoPose, data.EgoTwist, 0)
	require.NotEmpty(t, paths)

	// 同一快车在探测距离外（|-5| > 3）时被跳过，所有候选判定安全
	blocker := planner.ObjectData{Object: car(9, 45, 3.5, 12), Longitudinal: -5}
	selected, foundValid, foundSafe, valid := generator.SelectLaneChangePath(paths,
		currentLanes, targetLanes, []planner.ObjectData{blocker},
		egoPose, data.EgoTwist, evaluator, nil)
	require.True(t, foundValid)
	assert.True(t, foundSafe)
	assert.Equal(t, valid[len(valid)-1].Acceleration, selected.Acceleration)
}

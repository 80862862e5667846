package planner_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/planner"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/randengine"
)

// classify 用给定的本车状态与物体执行一次目标物分类
func classify(ctx *testContext, c *planner.ObjectClassifier,
	x, y, v float64, objects ...planner.TrackedObject) *planner.AvoidancePlanningData {
	pd := planningData(ctx, x, y, v, objects...)
	data := &planner.AvoidancePlanningData{
		ReferencePose: pd.EgoPose,
		ReferencePath: pd.ReferencePath,
		CurrentLanes:  planner.NewCurrentLaneProvider(ctx).CurrentLanes(pd),
	}
	c.Classify(data, pd.Objects)
	return data
}

func TestClassifyExclusionReasons(t *testing.T) {
	ctx := newTestContext(defaultPlannerConfig())
	c := planner.NewObjectClassifier(ctx)

	pedestrian := car(1, 80, -0.5, 0)
	pedestrian.Label = "pedestrian"
	outOfCorridor := car(2, 80, 10, 0)
	moving := car(3, 100, -0.5, 8)
	passable := car(4, 110, -2.3, 0)
	blocking := car(5, 90, -0.5, 0)

	data := classify(ctx, c, 50, 0, 10, pedestrian, outOfCorridor, moving, passable, blocking)

	require.Len(t, data.TargetObjects, 1)
	assert.Equal(t, int32(5), data.TargetObjects[0].Object.ID)
	assert.True(t, data.TargetObjects[0].AvoidRequired)

	reasons := lo.SliceToMap(data.OtherObjects, func(o planner.ObjectData) (int32, string) {
		return o.Object.ID, o.Reason
	})
	assert.Equal(t, "NotTargetObjectType", reasons[1])
	assert.Equal(t, "OutOfTargetArea", reasons[2])
	assert.Equal(t, "MovingObject", reasons[3])
	assert.Equal(t, "EnoughLateralMargin", reasons[4])
}

func TestTargetObjectGeometry(t *testing.T) {
	ctx := newTestContext(defaultPlannerConfig())
	c := planner.NewObjectClassifier(ctx)

	data := classify(ctx, c, 50, 0, 10, car(1, 90, -0.5, 0))
	require.Len(t, data.TargetObjects, 1)
	o := data.TargetObjects[0]
	// 纵向距离取包络最近footprint点（车长4.5，中心在+40米）
	assert.InDelta(t, 40-4.5/2, o.Longitudinal, 0.5)
	// 偏右物体：横向偏差为正
	assert.True(t, o.IsOnRight())
	assert.InDelta(t, 0.5, o.Lateral, 0.1)
	// 悬出量取包络上最接近中心线的点（左边缘y=0.4，在中心线左侧为负）
	assert.InDelta(t, -0.4, o.OverhangDist, 0.1)
	assert.NotEmpty(t, o.Envelope)
}

func TestTargetsSortedByLongitudinal(t *testing.T) {
	// 性质：任意物体集合下，目标物始终按纵向距离非降序排列
	ctx := newTestContext(defaultPlannerConfig())
	c := planner.NewObjectClassifier(ctx)
	engine := randengine.New(43)

	objects := make([]planner.TrackedObject, 0, 30)
	for i := 0; i < 30; i++ {
		x := 60 + engine.Float64()*300
		objects = append(objects, car(int32(i+1), x, -0.5, 0))
	}
	data := classify(ctx, c, 50, 0, 10, objects...)
	require.NotEmpty(t, data.TargetObjects)
	for i := 1; i < len(data.TargetObjects); i++ {
		assert.LessOrEqual(t, data.TargetObjects[i-1].Longitudinal, data.TargetObjects[i].Longitudinal)
	}
}

func TestCompensateDetectionLost(t *testing.T) {
	ctx := newTestContext(defaultPlannerConfig())
	c := planner.NewObjectClassifier(ctx)

	data := classify(ctx, c, 50, 0, 10, car(1, 90, -0.5, 0))
	require.Len(t, data.TargetObjects, 1)

	// 检测短暂丢失：时限内由注册表补偿
	ctx.clk.Tick()
	data = classify(ctx, c, 50, 0, 10)
	require.Len(t, data.TargetObjects, 1)
	assert.Equal(t, int32(1), data.TargetObjects[0].Object.ID)

	// 超过时限后注册项被清理，不再补偿
	for i := 0; i < 5; i++ {
		ctx.clk.Tick()
		data = classify(ctx, c, 50, 0, 10)
	}
	assert.Empty(t, data.TargetObjects)
}

func TestDirectionFromFrontObjectSide(t *testing.T) {
	// 偏右目标物触发左变道，偏左目标物触发右变道
	ctx := newTestContext(defaultPlannerConfig())
	gw := planner.NewManualGateway(false)
	m := planner.NewModule(ctx, gw)

	out := m.Run(planningData(ctx, 50, 0, 10, car(1, 90, -0.5, 0)))
	require.NotNil(t, out.Candidate)
	assert.Equal(t, planner.TurnSignalLeft, out.TurnSignal)
	require.NotNil(t, out.SteeringIntent)
	assert.Equal(t, entity.LEFT, out.SteeringIntent.Direction)

	ctx = newTestContext(defaultPlannerConfig())
	m = planner.NewModule(ctx, planner.NewManualGateway(false))
	out = m.Run(planningData(ctx, 50, 0, 10, car(1, 90, 0.5, 0)))
	require.NotNil(t, out.Candidate)
	assert.Equal(t, planner.TurnSignalRight, out.TurnSignal)
	require.NotNil(t, out.SteeringIntent)
	assert.Equal(t, entity.RIGHT, out.SteeringIntent.Direction)
}

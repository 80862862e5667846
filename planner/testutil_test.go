package planner_test

import (
	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/clock"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/lane"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/road"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/planner"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/config"
)

// testContext 测试用任务上下文
// 说明：三车道直线地图，lane 100为中间本车道（y=0），
// lane 101为左侧相邻车道（y=3.5），lane 102为右侧相邻车道（y=-3.5）
type testContext struct {
	clk         *clock.Clock
	laneManager entity.ILaneManager
	roadManager entity.IRoadManager
	rc          *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                  { return c.clk }
func (c *testContext) LaneManager() entity.ILaneManager     { return c.laneManager }
func (c *testContext) RoadManager() entity.IRoadManager     { return c.roadManager }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func defaultPlannerConfig() config.Planner {
	return config.Planner{
		ExecuteObjectNum:                1,
		ExecuteObjectLongitudinalMargin: 5,
		DetectionAreaLeftExpandDist:     1,
		DetectionAreaRightExpandDist:    1,
		LateralPassableSafetyBuffer:     0.3,
		// 速度低于停止阈值一个周期即判定为停止，简化测试场景搭建
		ThresholdTimeObjectIsMoving: 0.1,
		PrepareDuration:             2,
		MinimumLaneChangingLength:   10,
		LaneChangeFinishJudgeBuffer: 2,
		EnableCancelLaneChange:      true,
		EnableAbortLaneChange:       true,
	}
}

func newTestContext(p config.Planner) *testContext {
	c := config.Config{
		Control: config.Control{Step: config.ControlStep{Start: 0, Total: 1000, Interval: 0.5}},
		Vehicle: config.Vehicle{
			Width:              1.8,
			Length:             4.5,
			MaxDeceleration:    5,
			ForwardPathLength:  150,
			BackwardPathLength: 20,
		},
		Planner: p,
	}
	ctx := &testContext{
		rc:  config.NewRuntimeConfig(c),
		clk: clock.New(c.Control.Step),
	}
	lm := lane.NewManager(ctx)
	rm := road.NewManager(ctx)
	ctx.laneManager = lm
	ctx.roadManager = rm
	lm.Init(threeLaneMap())
	rm.Init([]*mapv2.Road{{Id: 1, Name: "test road", LaneIds: []int32{101, 100, 102}}}, lm)
	return ctx
}

// threeLaneMap 500米直线三车道，沿+X方向
func threeLaneMap() []*mapv2.Lane {
	line := func(y float64) *mapv2.Polyline {
		return &mapv2.Polyline{Nodes: []*geov2.XYPosition{
			{X: 0, Y: y}, {X: 250, Y: y}, {X: 500, Y: y},
		}}
	}
	return []*mapv2.Lane{
		{
			Id:           100,
			Type:         mapv2.LaneType_LANE_TYPE_DRIVING,
			MaxSpeed:     16.7,
			Width:        3.5,
			CenterLine:   line(0),
			LeftLaneIds:  []int32{101},
			RightLaneIds: []int32{102},
		},
		{
			Id:           101,
			Type:         mapv2.LaneType_LANE_TYPE_DRIVING,
			MaxSpeed:     16.7,
			Width:        3.5,
			CenterLine:   line(3.5),
			RightLaneIds: []int32{100},
		},
		{
			Id:          102,
			Type:        mapv2.LaneType_LANE_TYPE_DRIVING,
			MaxSpeed:    16.7,
			Width:       3.5,
			CenterLine:  line(-3.5),
			LeftLaneIds: []int32{100},
		},
	}
}

// car 构造车辆物体，footprint按轿车尺寸展开
func car(id int32, x, y, v float64) planner.TrackedObject {
	pose := planner.Pose{XYZ: geometry.Point{X: x, Y: y}}
	return planner.TrackedObject{
		ID:        id,
		Label:     "car",
		Pose:      pose,
		V:         v,
		Footprint: planner.VehicleFootprint(pose, 4.5, 1.8),
	}
}

// planningData 构造本车位于(x, y)、速度v的规划输入
func planningData(ctx entity.ITaskContext, x, y, v float64, objects ...planner.TrackedObject) *planner.PlanningData {
	pose := planner.Pose{XYZ: geometry.Point{X: x, Y: y}}
	return &planner.PlanningData{
		EgoPose:       pose,
		EgoTwist:      planner.Twist{V: v},
		Objects:       objects,
		ReferencePath: planner.BuildReferencePath(ctx, pose),
	}
}

package task

import (
	"flag"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/planner"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/input"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
	// 感知噪声标准差（米），0表示原样回放场景帧
	perceptionNoiseStd = flag.Float64("perception.noise_std", 0, "感知位置噪声标准差（米）")
	// 感知丢失概率，0表示不丢失
	perceptionDropProb = flag.Float64("perception.drop_prob", 0, "单物体单周期的感知丢失概率")
)

// 场景物体footprint的缺省尺寸（米）
const (
	defaultObjectWidth  = 1.8
	defaultObjectLength = 4.5
)

// Run 执行规划主循环
// 功能：逐周期回放场景感知帧，驱动决策模块运行到结束步
// 算法说明：每个周期取对应感知帧（不足时复用最后一帧）构造规划输入，
// 执行一次决策周期并输出心跳日志，然后推进时钟
func (ctx *Context) Run() {
	log.Infof("job %s start, %d steps", ctx.job, ctx.clock.END_STEP-ctx.clock.START_STEP)
	for !ctx.clock.Done() {
		frame := ctx.frameAt(ctx.clock.InternalStep - ctx.clock.START_STEP)
		data := ctx.buildPlanningData(frame)
		out := ctx.module.Run(data)

		if (ctx.clock.InternalStep-ctx.clock.START_STEP)%int32(*heartBeatInterval) == 0 {
			log.Infof("STEP: %d(%s) state=%s sub=%s active=%v targets=%d",
				ctx.clock.InternalStep, ctx.clock, out.State, out.SubState,
				out.Active, len(out.Debug.TargetObjects))
		}
		ctx.clock.Tick()
	}
	log.Infof("job %s finished at %s, final state=%s",
		ctx.job, ctx.clock, ctx.module.State())
}

// frameAt 获取指定周期的感知帧
func (ctx *Context) frameAt(i int32) input.ScenarioFrame {
	frames := ctx.scenario.Frames
	if int(i) >= len(frames) {
		return frames[len(frames)-1]
	}
	return frames[i]
}

// buildPlanningData 将场景感知帧转换为规划输入
// 说明：物体footprint按给定尺寸（缺省轿车尺寸）围绕位姿展开，
// 上游参考路径沿本车最近行车道中心线构造；
// perception.noise_std大于0时对物体位置叠加高斯噪声，
// perception.drop_prob大于0时按该概率随机丢弃物体，用于检测抖动与丢失回放
func (ctx *Context) buildPlanningData(frame input.ScenarioFrame) *planner.PlanningData {
	egoPose := planner.Pose{
		XYZ: geometry.Point{X: frame.Ego.X, Y: frame.Ego.Y},
		Yaw: frame.Ego.Yaw,
	}
	return &planner.PlanningData{
		EgoPose:  egoPose,
		EgoTwist: planner.Twist{V: frame.Ego.V, W: frame.Ego.W},
		Objects: lo.FilterMap(frame.Objects, func(o input.ScenarioObject, _ int) (planner.TrackedObject, bool) {
			if prob := *perceptionDropProb; prob > 0 && ctx.engine.PTrue(prob) {
				return planner.TrackedObject{}, false
			}
			if std := *perceptionNoiseStd; std > 0 {
				o.X += ctx.engine.NormFloat64() * std
				o.Y += ctx.engine.NormFloat64() * std
			}
			return toTrackedObject(o), true
		}),
		ReferencePath: planner.BuildReferencePath(ctx, egoPose),
	}
}

func toTrackedObject(o input.ScenarioObject) planner.TrackedObject {
	width, length := o.Width, o.Length
	if width <= 0 {
		width = defaultObjectWidth
	}
	if length <= 0 {
		length = defaultObjectLength
	}
	pose := planner.Pose{XYZ: geometry.Point{X: o.X, Y: o.Y}, Yaw: o.Yaw}
	return planner.TrackedObject{
		ID:        o.ID,
		Label:     o.Label,
		Pose:      pose,
		V:         o.V,
		Footprint: planner.VehicleFootprint(pose, length, width),
		Predicted: lo.Map(o.Predicted, func(t input.ScenarioTrajectory, _ int) planner.PredictedTrajectory {
			return planner.PredictedTrajectory{
				TimeStep:   t.TimeStep,
				Confidence: t.Confidence,
				Points: lo.Map(t.Points, func(p input.ScenarioPose, _ int) planner.Pose {
					return planner.Pose{XYZ: geometry.Point{X: p.X, Y: p.Y}, Yaw: p.Yaw}
				}),
			}
		}),
	}
}

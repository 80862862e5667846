package planner

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// 安全评估失败原因
const (
	unsafeReasonLateralIncursion = "LateralIncursion" // 横向净距不足
	unsafeReasonTimeMargin       = "TimeMarginShort"  // 纵向时间裕度不足
)

// SafetyEvaluator 候选路径安全评估器
// 功能：对候选路径做前向时域的碰撞检查，逐物体记录判定依据
// 说明：调试信息作为值写入调用方传入的map，不持有共享状态
type SafetyEvaluator struct {
	ctx entity.ITaskContext
}

func NewSafetyEvaluator(ctx entity.ITaskContext) *SafetyEvaluator {
	return &SafetyEvaluator{ctx: ctx}
}

// IsLaneChangePathSafe 检查候选路径在预测时域内是否安全
// 参数：objects-需要检查的物体，debug-逐物体调试信息（可为nil）
// 返回：时域内所有采样时刻均满足横向净距或纵向时间裕度时为true
// 算法说明：
// 1. 纵向距离超出探测距离的物体不参与评估
// 2. 按候选路径的加速度外推本车沿路径的弧长位置
// 3. 对每个物体取置信度最高的预测轨迹插值出各时刻位姿，投影到候选路径上
// 4. 横向净距大于(半车宽+横向裕度)则该时刻无冲突；
// 否则要求纵向间距大于相对速度×时间裕度+车长
func (e *SafetyEvaluator) IsLaneChangePathSafe(candidate CandidatePath, objects []ObjectData,
	egoPose Pose, egoTwist Twist, debug map[int32]ObjectDebug) bool {
	p := e.ctx.RuntimeConfig().P
	vehicle := e.ctx.RuntimeConfig().V
	path := candidate.Path
	if path.Empty() {
		return false
	}
	lengths := calcPathLengths(path)
	egoS0 := lengths[findNearestIndex(path, egoPose.XYZ)]

	safe := true
	for _, o := range objects {
		if mathutil.Abs(o.Longitudinal) > p.CheckDistance {
			continue
		}
		od := ObjectDebug{
			ObjectID:        o.Object.ID,
			IsFront:         o.Longitudinal > 0,
			RelativeToEgo:   o.Longitudinal,
			AllowLaneChange: true,
			Velocity:        o.Object.V,
		}
		for t := 0.0; t <= p.SafetyCheckTimeHorizon; t += p.SafetyCheckTimeResolution {
			egoV := math.Max(egoTwist.V+candidate.Acceleration*t, 0)
			egoS := egoS0 + egoTwist.V*t + 0.5*candidate.Acceleration*t*t
			if egoS < egoS0 {
				egoS = egoS0
			}
			objPose := predictedPoseAt(o.Object, t)
			i := findNearestIndex(path, objPose.XYZ)
			objS := lengths[i]
			objLat := calcLateralDeviation(path.Points[i].Pose, objPose.XYZ)

			lateralClearance := mathutil.Abs(objLat) - (vehicle.Width/2 + p.SafetyCheckLateralMargin)
			if lateralClearance > 0 {
				continue
			}
			gap := mathutil.Abs(objS - egoS)
			required := mathutil.Abs(egoV-o.Object.V)*p.SafetyCheckTimeMargin + vehicle.Length
			if gap > required {
				continue
			}
			od.AllowLaneChange = false
			if gap <= vehicle.Length {
				od.FailedReason = unsafeReasonLateralIncursion
			} else {
				od.FailedReason = unsafeReasonTimeMargin
			}
			od.FailedReason = fmt.Sprintf("%s@t=%.1fs", od.FailedReason, t)
			safe = false
			break
		}
		if debug != nil {
			debug[o.Object.ID] = od
		}
	}
	return safe
}

// IsApprovedPathSafe 检查已提交路径当前是否仍然安全
// 说明：提交后的复查与候选评估共用同一套时域检查
func (e *SafetyEvaluator) IsApprovedPathSafe(status ManeuverStatus, objects []ObjectData,
	egoPose Pose, egoTwist Twist, debug map[int32]ObjectDebug) bool {
	return e.IsLaneChangePathSafe(status.Path, objects, egoPose, egoTwist, debug)
}

// predictedPoseAt 取物体在t时刻的预测位姿
// 算法说明：选置信度最高的预测轨迹做线性插值；无预测轨迹时按当前航向匀速外推；
// 超出轨迹末端时保持在末端位姿
func predictedPoseAt(obj TrackedObject, t float64) Pose {
	var best *PredictedTrajectory
	for i := range obj.Predicted {
		if best == nil || obj.Predicted[i].Confidence > best.Confidence {
			best = &obj.Predicted[i]
		}
	}
	if best == nil || len(best.Points) == 0 || best.TimeStep <= 0 {
		d := obj.V * t
		return Pose{
			XYZ: geometry.Point{
				X: obj.Pose.XYZ.X + d*math.Cos(obj.Pose.Yaw),
				Y: obj.Pose.XYZ.Y + d*math.Sin(obj.Pose.Yaw),
				Z: obj.Pose.XYZ.Z,
			},
			Yaw: obj.Pose.Yaw,
		}
	}
	i := int(t / best.TimeStep)
	if i >= len(best.Points)-1 {
		return best.Points[len(best.Points)-1]
	}
	k := (t - float64(i)*best.TimeStep) / best.TimeStep
	a, b := best.Points[i], best.Points[i+1]
	return Pose{
		XYZ: geometry.Blend(a.XYZ, b.XYZ, k),
		Yaw: a.Yaw + normalizeRadian(b.Yaw-a.Yaw)*k,
	}
}

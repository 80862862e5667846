package planner

import (
	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// objectRegistry 目标物注册表
// 功能：跨周期缓存目标物的包络多边形、低速累计时长与最后检测时间，
// 在短暂检测丢失时补偿目标物，避免机动状态抖动
// 说明：注册表由分类器独占持有，外部只能读到导出的快照
type objectRegistry struct {
	ctx entity.ITaskContext

	data     map[int32]ObjectData // 最近一次导出的目标物数据
	stopTime map[int32]float64    // 低速累计时长（秒）
}

func newObjectRegistry(ctx entity.ITaskContext) *objectRegistry {
	return &objectRegistry{
		ctx:      ctx,
		data:     make(map[int32]ObjectData),
		stopTime: make(map[int32]float64),
	}
}

// updateStopTime 更新物体的低速累计时长
// 算法说明：速度低于停止阈值时累加本周期时长，否则清零
// 返回：更新后的累计时长（秒）
func (r *objectRegistry) updateStopTime(id int32, v float64) float64 {
	p := r.ctx.RuntimeConfig().P
	if v < p.ThresholdSpeedObjectIsStopped {
		r.stopTime[id] += r.ctx.Clock().DT
	} else {
		r.stopTime[id] = 0
	}
	return r.stopTime[id]
}

// mergeEnvelope 合并物体包络
// 功能：将本周期footprint的有向包围盒与已注册包络合并，得到单调扩张的包络多边形
// 参数：id-物体ID，closestPose-物体在参考路径上的最近位姿，footprint-本周期footprint
// 算法说明：
// 1. 以最近路径位姿朝向为轴计算footprint的有向包围盒
// 2. 若已注册包络完全覆盖该包围盒，沿用注册包络，保持跨周期稳定
// 3. 否则取两者顶点并集的有向包围盒作为新包络
func (r *objectRegistry) mergeEnvelope(id int32, closestPose Pose, footprint []geometry.Point) []geometry.Point {
	box := poseAlignedBox(closestPose, footprint)
	registered, ok := r.data[id]
	if !ok || len(registered.Envelope) < 3 {
		return box
	}
	covered := lo.EveryBy(box, func(p geometry.Point) bool {
		return pointInPolygon(registered.Envelope, p)
	})
	if covered {
		return registered.Envelope
	}
	merged := append(append([]geometry.Point{}, registered.Envelope...), box...)
	return poseAlignedBox(closestPose, merged)
}

// update 用本周期的目标物刷新注册表
func (r *objectRegistry) update(targets []ObjectData) {
	for _, o := range targets {
		r.data[o.Object.ID] = o
	}
}

// compensateDetectionLost 补偿检测丢失的目标物
// 功能：将注册表中仍在时限内、但本周期既不在目标物也不在非目标物中的物体追加为目标物
// 参数：targets-本周期目标物（被原地追加），others-本周期非目标物
// 返回：补偿后的目标物列表
func (r *objectRegistry) compensateDetectionLost(targets []ObjectData, others []ObjectData) []ObjectData {
	now := r.ctx.Clock().T
	threshold := r.ctx.RuntimeConfig().P.ObjectLastSeenThreshold
	seen := make(map[int32]struct{}, len(targets)+len(others))
	for _, o := range targets {
		seen[o.Object.ID] = struct{}{}
	}
	for _, o := range others {
		seen[o.Object.ID] = struct{}{}
	}
	for id, o := range r.data {
		if _, ok := seen[id]; ok {
			continue
		}
		if now-o.LastSeen > threshold {
			continue
		}
		log.Debugf("compensate lost object %d, last seen at %.1fs", id, o.LastSeen)
		targets = append(targets, o)
	}
	return targets
}

// prune 清理超过时限的注册项
func (r *objectRegistry) prune() {
	now := r.ctx.Clock().T
	threshold := r.ctx.RuntimeConfig().P.ObjectLastSeenThreshold
	for id, o := range r.data {
		if now-o.LastSeen > threshold {
			delete(r.data, id)
			delete(r.stopTime, id)
		}
	}
}

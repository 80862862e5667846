package planner

import (
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// 目标物排除原因
const (
	reasonOutOfTargetArea     = "OutOfTargetArea"     // 不在探测走廊内
	reasonNotTargetType       = "NotTargetObjectType" // 非关注的物体类型
	reasonMovingObject        = "MovingObject"        // 仍在移动，未达停止判定
	reasonEnoughLateralMargin = "EnoughLateralMargin" // 横向可通过，无需避让
)

// 关注的物体类型
var targetLabels = map[string]struct{}{
	"car": {}, "truck": {}, "bus": {}, "trailer": {}, "motorcycle": {},
}

// ObjectClassifier 目标物分类器
// 功能：把感知跟踪物体划分为需要避让的目标物与带排除原因的非目标物，
// 并维护跨周期注册表以抵抗检测抖动
type ObjectClassifier struct {
	ctx entity.ITaskContext

	registry *objectRegistry
}

func NewObjectClassifier(ctx entity.ITaskContext) *ObjectClassifier {
	return &ObjectClassifier{
		ctx:      ctx,
		registry: newObjectRegistry(ctx),
	}
}

// Classify 对本周期的物体做目标物分类
// 功能：填充data.TargetObjects与data.OtherObjects
// 参数：data-本周期规划数据（需已填充参考路径与当前车道），objects-感知跟踪物体
// 算法说明：
// 1. 以当前车道边界多边形（按配置左右扩展）为探测走廊划分物体
// 2. 走廊内的物体计算包络、纵横向距离与悬出量，按可通过性判定是否需要避让
// 3. 用注册表补偿短暂检测丢失的目标物，并按纵向距离升序排序
func (c *ObjectClassifier) Classify(data *AvoidancePlanningData, objects []TrackedObject) {
	p := c.ctx.RuntimeConfig().P
	v := c.ctx.RuntimeConfig().V
	now := c.ctx.Clock().T

	corridor := lo.Map(data.CurrentLanes, func(l entity.ILane, _ int) []geometry.Point {
		return l.BoundaryPolygon(p.DetectionAreaLeftExpandDist, p.DetectionAreaRightExpandDist)
	})
	pathLengths := calcPathLengths(data.ReferencePath)

	targets := make([]ObjectData, 0, len(objects))
	others := make([]ObjectData, 0, len(objects))
	for _, obj := range objects {
		o := ObjectData{Object: obj, LastSeen: now}
		// 粗纵向距离先按物体位置计算，目标物随后会用包络足迹点覆盖
		o.Longitudinal = calcSignedArcLength(data.ReferencePath, pathLengths,
			data.ReferencePose.XYZ, obj.Pose.XYZ)
		if _, ok := targetLabels[obj.Label]; !ok {
			o.Reason = reasonNotTargetType
			others = append(others, o)
			continue
		}
		if !c.isWithinCorridor(corridor, obj) {
			o.Reason = reasonOutOfTargetArea
			others = append(others, o)
			continue
		}
		o.StopTime = c.registry.updateStopTime(obj.ID, obj.V)
		if !o.IsStopped(p.ThresholdTimeObjectIsMoving) {
			o.Reason = reasonMovingObject
			others = append(others, o)
			continue
		}
		c.fillObjectData(data, &o)
		margin := v.Width/2 + p.LateralPassableSafetyBuffer
		o.AvoidRequired = (o.IsOnRight() && mathutil.Abs(o.OverhangDist) < margin) ||
			(!o.IsOnRight() && o.OverhangDist > -margin)
		if !o.AvoidRequired {
			o.Reason = reasonEnoughLateralMargin
			others = append(others, o)
			continue
		}
		targets = append(targets, o)
	}

	c.registry.update(targets)
	targets = c.registry.compensateDetectionLost(targets, others)
	c.registry.prune()

	// 目标物按本车到物体的纵向距离升序排序
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Longitudinal < targets[j].Longitudinal
	})
	data.TargetObjects = targets
	data.OtherObjects = others
}

// isWithinCorridor 判断物体是否位于探测走廊内
// 说明：物体位置或footprint任一顶点落入任一车道边界多边形即视为在走廊内
func (c *ObjectClassifier) isWithinCorridor(corridor [][]geometry.Point, obj TrackedObject) bool {
	if pointInAnyPolygon(corridor, obj.Pose.XYZ) {
		return true
	}
	return lo.SomeBy(obj.Footprint, func(p geometry.Point) bool {
		return pointInAnyPolygon(corridor, p)
	})
}

// fillObjectData 填充物体的几何量
// 算法说明：
// 1. 取物体在参考路径上的最近位姿，与注册包络合并得到本周期包络
// 2. 纵向距离取包络各顶点沿路径弧长的最小值（最近footprint点）
// 3. 悬出量取包络各顶点横向偏差中绝对值最小者（右正）
func (c *ObjectClassifier) fillObjectData(data *AvoidancePlanningData, o *ObjectData) {
	path := data.ReferencePath
	lengths := calcPathLengths(path)
	closest := path.Points[findNearestIndex(path, o.Object.Pose.XYZ)]

	o.Envelope = c.registry.mergeEnvelope(o.Object.ID, closest.Pose, o.Object.Footprint)
	o.Centroid = geometry.GetPolygonCentroid2D(o.Envelope)
	o.Lateral = calcLateralDeviation(closest.Pose, o.Object.Pose.XYZ)

	o.Longitudinal = mathutil.INF
	minAbsLateral := mathutil.INF
	for _, p := range o.Envelope {
		lon := calcSignedArcLength(path, lengths, data.ReferencePose.XYZ, p)
		if lon < o.Longitudinal {
			o.Longitudinal = lon
		}
		envelopeClosest := path.Points[findNearestIndex(path, p)]
		lat := calcLateralDeviation(envelopeClosest.Pose, p)
		if mathutil.Abs(lat) < minAbsLateral {
			minAbsLateral = mathutil.Abs(lat)
			o.OverhangDist = lat
			o.OverhangPos = p
		}
	}
}

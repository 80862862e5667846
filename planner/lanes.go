package planner

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// 变道目标车道序列的前向探索长度（米）
const laneChangeLaneLength = 200.0

// CurrentLaneProvider 当前车道序列解析策略
// 说明：两种实现可互换，由配置current_lane_from_reference_path选择
type CurrentLaneProvider interface {
	// CurrentLanes 解析本车当前所在的车道序列（沿行进方向排列）
	CurrentLanes(data *PlanningData) []entity.ILane
}

// NewCurrentLaneProvider 根据配置创建当前车道解析策略
func NewCurrentLaneProvider(ctx entity.ITaskContext) CurrentLaneProvider {
	if ctx.RuntimeConfig().P.CurrentLaneFromReferencePath {
		return &ReferencePathLaneProvider{ctx: ctx}
	}
	return &EgoPositionLaneProvider{ctx: ctx}
}

// EgoPositionLaneProvider 以本车位置解析当前车道
// 算法说明：取距离本车最近的行车道，沿前驱/后继扩展为覆盖前后路径长度的序列
type EgoPositionLaneProvider struct {
	ctx entity.ITaskContext
}

func (p *EgoPositionLaneProvider) CurrentLanes(data *PlanningData) []entity.ILane {
	closest := p.ctx.LaneManager().GetClosestDrivingLane(data.EgoPose.XYZ)
	if closest == nil {
		log.Warn("no driving lane near ego position")
		return nil
	}
	v := p.ctx.RuntimeConfig().V
	s := closest.ProjectToLane(data.EgoPose.XYZ)
	return laneSequence(closest, s, v.BackwardPathLength, v.ForwardPathLength)
}

// ReferencePathLaneProvider 以上游参考路径携带的车道ID解析当前车道
// 说明：参考路径未覆盖车道ID时退化为空序列，由调用方处理
type ReferencePathLaneProvider struct {
	ctx entity.ITaskContext
}

func (p *ReferencePathLaneProvider) CurrentLanes(data *PlanningData) []entity.ILane {
	ids := lo.Uniq(lo.FilterMap(data.ReferencePath.Points, func(pt PathPoint, _ int) (int32, bool) {
		return pt.LaneID, pt.LaneID > 0
	}))
	return lo.FilterMap(ids, func(id int32, _ int) (entity.ILane, bool) {
		l, err := p.ctx.LaneManager().GetOrError(id)
		if err != nil {
			log.Warnf("reference path with unknown lane id %d", id)
			return nil, false
		}
		return l, true
	})
}

// laneSequence 从给定车道的s坐标出发，沿前驱与后继扩展车道序列
// 参数：backward/forward-需要覆盖的后向/前向弧长（米）
// 说明：前驱或后继不唯一时停止扩展（路由决策不在本模块职责内）
func laneSequence(start entity.ILane, s, backward, forward float64) []entity.ILane {
	seq := []entity.ILane{start}
	rest := backward - s
	for cur := start; rest > 0; {
		prev, err := cur.UniquePredecessor()
		if err != nil {
			break
		}
		seq = append([]entity.ILane{prev}, seq...)
		rest -= prev.Length()
		cur = prev
	}
	rest = forward - (start.Length() - s)
	for cur := start; rest > 0; {
		next, err := cur.UniqueSuccessor()
		if err != nil {
			break
		}
		seq = append(seq, next)
		rest -= next.Length()
		cur = next
	}
	return seq
}

// getLaneChangeLanes 解析变道目标车道序列
// 功能：在变道准备段结束处取当前车道的侧方邻接车道，并扩展为目标车道序列
// 参数：currentLanes-当前车道序列，side-变道方向（entity.LEFT/RIGHT）
// 返回：目标车道序列，无邻接车道时返回nil
func getLaneChangeLanes(ctx entity.ITaskContext, currentLanes []entity.ILane,
	egoPose Pose, egoTwist Twist, side int) []entity.ILane {
	if len(currentLanes) == 0 {
		return nil
	}
	p := ctx.RuntimeConfig().P
	prepareLength := math.Max(egoTwist.V*p.PrepareDuration, p.MinimumLaneChangingLength)

	arc := newLaneArc(currentLanes)
	egoS := arc.project(egoPose.XYZ)
	atPrepare := arc.laneAt(egoS + prepareLength)
	if atPrepare == nil {
		return nil
	}
	neighbor := atPrepare.NeighborLane(side)
	if neighbor == nil {
		return nil
	}
	backward := ctx.RuntimeConfig().V.BackwardPathLength
	// 同道路内按弧长比例投影，跨道路时退化为几何投影
	egoLane, egoLaneS := arc.locate(egoS)
	var s float64
	if egoLane != nil && egoLane.ParentRoad() == neighbor.ParentRoad() {
		s = neighbor.ProjectFromLane(egoLane, egoLaneS)
	} else {
		s = neighbor.ProjectToLane(egoPose.XYZ)
	}
	return laneSequence(neighbor, s, backward, laneChangeLaneLength)
}

// BuildReferencePath 沿本车最近行车道的中心线构造参考路径
// 功能：作为上游参考路径的简易来源，供场景回放驱动使用；
// 路径点速度取所在车道限速
func BuildReferencePath(ctx entity.ITaskContext, egoPose Pose) Path {
	closest := ctx.LaneManager().GetClosestDrivingLane(egoPose.XYZ)
	if closest == nil {
		return Path{}
	}
	v := ctx.RuntimeConfig().V
	s := closest.ProjectToLane(egoPose.XYZ)
	lanes := laneSequence(closest, s, v.BackwardPathLength, v.ForwardPathLength)
	arc := newLaneArc(lanes)
	egoS := arc.project(egoPose.XYZ)
	from := math.Max(egoS-v.BackwardPathLength, 0)
	to := math.Min(egoS+v.ForwardPathLength, arc.total)
	return centerlinePath(arc, from, to,
		ctx.RuntimeConfig().P.ResampleIntervalForPlanning, closest.MaxV())
}

// laneArc 车道序列的弧长坐标系
// 功能：把首尾相接的车道序列视为一条连续弧线，支持投影、取点、取向
type laneArc struct {
	lanes   []entity.ILane
	offsets []float64 // 各车道起点在序列上的累计弧长
	total   float64
}

func newLaneArc(lanes []entity.ILane) *laneArc {
	a := &laneArc{lanes: lanes, offsets: make([]float64, len(lanes))}
	for i, l := range lanes {
		a.offsets[i] = a.total
		a.total += l.Length()
	}
	return a
}

// project 将坐标投影到序列上，返回序列弧长坐标
// 说明：取各车道投影点中距离最近者
func (a *laneArc) project(pos geometry.Point) float64 {
	best, minDistance := 0.0, mathutil.INF
	for i, l := range a.lanes {
		s := l.ProjectToLane(pos)
		p := l.GetPositionByS(s)
		d := math.Hypot(p.X-pos.X, p.Y-pos.Y)
		if d < minDistance {
			minDistance = d
			best = a.offsets[i] + s
		}
	}
	return best
}

// locate 将序列弧长坐标换算为(车道, 车道内s)
func (a *laneArc) locate(s float64) (entity.ILane, float64) {
	if len(a.lanes) == 0 {
		return nil, 0
	}
	s = lo.Clamp(s, 0, a.total)
	for i, l := range a.lanes {
		if s <= a.offsets[i]+l.Length() || i == len(a.lanes)-1 {
			return l, s - a.offsets[i]
		}
	}
	return nil, 0
}

// laneAt 获取序列弧长坐标处的车道，超出范围时截断到端点
func (a *laneArc) laneAt(s float64) entity.ILane {
	l, _ := a.locate(s)
	return l
}

// position 获取序列弧长坐标处的坐标
func (a *laneArc) position(s float64) geometry.Point {
	l, laneS := a.locate(s)
	if l == nil {
		return geometry.Point{}
	}
	return l.GetPositionByS(laneS)
}

// direction 获取序列弧长坐标处的切向角度
func (a *laneArc) direction(s float64) float64 {
	l, laneS := a.locate(s)
	if l == nil {
		return 0
	}
	return l.GetDirectionByS(laneS).Direction
}

// remaining 获取序列弧长坐标到序列末端的剩余弧长
func (a *laneArc) remaining(s float64) float64 {
	return math.Max(a.total-s, 0)
}

// centerlinePath 沿车道序列的中心线构造路径
// 参数：fromS/toS-序列弧长起止，interval-采样间隔，v-路径点期望速度
func centerlinePath(arc *laneArc, fromS, toS, interval, v float64) Path {
	path := Path{}
	if arc == nil || len(arc.lanes) == 0 || toS <= fromS {
		return path
	}
	fromS = lo.Clamp(fromS, 0, arc.total)
	toS = lo.Clamp(toS, 0, arc.total)
	for s := fromS; s < toS; s += interval {
		path.Points = append(path.Points, pathPointAt(arc, s, v))
	}
	path.Points = append(path.Points, pathPointAt(arc, toS, v))
	return path
}

func pathPointAt(arc *laneArc, s, v float64) PathPoint {
	l, _ := arc.locate(s)
	return PathPoint{
		Pose:   Pose{XYZ: arc.position(s), Yaw: arc.direction(s)},
		LaneID: l.ID(),
		V:      v,
	}
}

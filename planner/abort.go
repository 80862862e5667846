package planner

import (
	"math"

	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// AbortPathPlanner 中止路径规划器
// 功能：在变道中途不安全时，计算从当前位姿返回原车道中心线的路径
type AbortPathPlanner struct {
	ctx entity.ITaskContext
}

func NewAbortPathPlanner(ctx entity.ITaskContext) *AbortPathPlanner {
	return &AbortPathPlanner{ctx: ctx}
}

// GetAbortPath 计算中止路径
// 参数：currentLanes-原车道序列，committed-已提交的变道路径
// 返回：返回原车道的路径，不可行时返回nil
// 算法说明：
// 1. 返回段长度取max(当前速度×准备时长, 最小变道长度)
// 2. 可行性检查：原车道序列剩余长度须容纳返回段加完成判定缓冲，
// 且按最大减速度的停车距离不超过剩余长度
// 3. 路径从本车当前横向偏移平滑收敛到原车道中心线，随后沿中心线延伸
func (a *AbortPathPlanner) GetAbortPath(currentLanes []entity.ILane,
	committed CandidatePath, egoPose Pose, egoTwist Twist) *CandidatePath {
	if len(currentLanes) == 0 {
		return nil
	}
	p := a.ctx.RuntimeConfig().P
	vehicle := a.ctx.RuntimeConfig().V

	arc := newLaneArc(currentLanes)
	egoS := arc.project(egoPose.XYZ)
	remaining := arc.remaining(egoS)
	returnLength := math.Max(egoTwist.V*p.PrepareDuration, p.MinimumLaneChangingLength)
	if remaining < returnLength+p.LaneChangeFinishJudgeBuffer {
		log.Debugf("abort path infeasible: %.1fm remaining, %.1fm required", remaining, returnLength)
		return nil
	}
	if vehicle.MaxDeceleration > 0 {
		stoppingDistance := egoTwist.V * egoTwist.V / (2 * vehicle.MaxDeceleration)
		if stoppingDistance > remaining {
			log.Debugf("abort path infeasible: stopping distance %.1fm exceeds lane end", stoppingDistance)
			return nil
		}
	}

	centerPose := Pose{XYZ: arc.position(egoS), Yaw: arc.direction(egoS)}
	egoLat := calcLateralDeviation(centerPose, egoPose.XYZ)

	interval := p.ResampleIntervalForPlanning
	path := Path{}
	appendOffsetPoint := func(s, offset float64) {
		l, laneS := arc.locate(s)
		path.Points = append(path.Points, PathPoint{
			Pose:   Pose{XYZ: l.GetOffsetPositionByS(laneS, offset)},
			LaneID: l.ID(),
			V:      egoTwist.V,
		})
	}
	// 返回段：横向偏移平滑收敛到0
	for d := 0.0; d <= returnLength; d += interval {
		t := d / returnLength
		ratio := t * t * (3 - 2*t)
		appendOffsetPoint(egoS+d, egoLat*(1-ratio))
	}
	// 延伸段：沿原车道中心线
	end := math.Min(egoS+vehicle.ForwardPathLength, arc.total)
	for s := egoS + returnLength + interval; s <= end; s += interval {
		appendOffsetPoint(s, 0)
	}
	if len(path.Points) < 2 {
		return nil
	}
	fillYawFromPositions(&path)
	lengths := calcPathLengths(path)

	iEnd := lo.Clamp(int(returnLength/interval), 0, len(path.Points)-1)
	return &CandidatePath{
		Path:          path,
		ShiftLine:     ShiftLine{Start: path.Points[0].Pose, End: path.Points[iEnd].Pose},
		Length:        lengths[len(lengths)-1],
		PrepareLength: 0,
		ChangeLength:  returnLength,
		Direction:     opposite(committed.Direction),
		TargetLaneIDs: lo.Map(currentLanes, func(l entity.ILane, _ int) int32 { return l.ID() }),
	}
}

func opposite(side int) int {
	if side == entity.LEFT {
		return entity.RIGHT
	}
	return entity.LEFT
}

package planner

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// 横移段的标称时长（秒）
const laneChangingDuration = 4.0

// 横移比例低于该值时路径点仍记在原车道上
const shiftInOldLaneRatio = 0.5

// CandidatePathGenerator 候选变道路径生成器
// 功能：在当前车道序列与目标车道序列之间枚举几何可行的变道路径，
// 并按最保守（最强减速、最短准备段）到最激进（不减速、最长视界）排序
type CandidatePathGenerator struct {
	ctx entity.ITaskContext
}

func NewCandidatePathGenerator(ctx entity.ITaskContext) *CandidatePathGenerator {
	return &CandidatePathGenerator{ctx: ctx}
}

// GetLaneChangePaths 枚举候选变道路径
// 参数：direction-变道方向（entity.LEFT/RIGHT）
// 算法说明：
// 1. 在[-max_deceleration, 0]上采样纵向加速度，每个采样值确定一组准备段/横移段长度
// 2. 准备段沿当前车道中心线，横移段用平滑插值在两条车道序列间过渡，
// 其后沿目标车道中心线延伸到前向路径长度
// 3. 序列剩余长度装不下横移段的采样值被跳过（几何不可行）
// 返回：候选路径列表，加速度绝对值大者在前
func (g *CandidatePathGenerator) GetLaneChangePaths(currentLanes, targetLanes []entity.ILane,
	egoPose Pose, egoTwist Twist, direction int) []CandidatePath {
	if len(currentLanes) == 0 || len(targetLanes) == 0 {
		return nil
	}
	p := g.ctx.RuntimeConfig().P
	v := g.ctx.RuntimeConfig().V

	curArc := newLaneArc(currentLanes)
	tgtArc := newLaneArc(targetLanes)
	egoS := curArc.project(egoPose.XYZ)
	tgtEgoS := tgtArc.project(egoPose.XYZ)
	targetIDs := lo.Map(targetLanes, func(l entity.ILane, _ int) int32 { return l.ID() })

	n := p.LaneChangeSampleNum
	paths := make([]CandidatePath, 0, n)
	for k := 0; k < n; k++ {
		acc := -v.MaxDeceleration * float64(n-1-k) / float64(n)
		tp := p.PrepareDuration
		prepare := math.Max(egoTwist.V*tp+0.5*acc*tp*tp, 0)
		vShift := math.Max(egoTwist.V+acc*tp, 0)
		change := math.Max(vShift*laneChangingDuration, p.MinimumLaneChangingLength)

		// 横移段必须同时落在两条序列的剩余长度内
		if curArc.remaining(egoS+prepare) < change || tgtArc.remaining(tgtEgoS+prepare) < change {
			continue
		}
		path := g.buildPath(curArc, tgtArc, egoS, tgtEgoS, prepare, change, egoTwist.V, vShift)
		if path.Path.Empty() {
			continue
		}
		path.Acceleration = acc
		path.Direction = direction
		path.TargetLaneIDs = targetIDs
		paths = append(paths, path)
	}
	return paths
}

// buildPath 构造单条候选路径
func (g *CandidatePathGenerator) buildPath(curArc, tgtArc *laneArc,
	egoS, tgtEgoS, prepare, change, v0, vShift float64) CandidatePath {
	p := g.ctx.RuntimeConfig().P
	vehicle := g.ctx.RuntimeConfig().V
	interval := p.ResampleIntervalForPlanning

	path := Path{}
	// 准备段：沿当前车道中心线，速度线性过渡到横移段速度
	for d := 0.0; d < prepare; d += interval {
		pt := pathPointAt(curArc, egoS+d, v0+(vShift-v0)*d/math.Max(prepare, interval))
		path.Points = append(path.Points, pt)
	}
	// 横移段：当前车道与目标车道位置间平滑插值
	var shiftStart, shiftEnd Pose
	for d := 0.0; d <= change; d += interval {
		t := d / change
		ratio := t * t * (3 - 2*t)
		posCur := curArc.position(egoS + prepare + d)
		posTgt := tgtArc.position(tgtEgoS + prepare + d)
		pos := geometry.Blend(posCur, posTgt, ratio)
		var laneID int32
		if ratio < shiftInOldLaneRatio {
			laneID = curArc.laneAt(egoS + prepare + d).ID()
		} else {
			laneID = tgtArc.laneAt(tgtEgoS + prepare + d).ID()
		}
		path.Points = append(path.Points, PathPoint{
			Pose:   Pose{XYZ: pos},
			LaneID: laneID,
			V:      vShift,
		})
	}
	// 延伸段：沿目标车道中心线到前向路径长度
	after := tgtEgoS + prepare + change
	forward := math.Max(vehicle.ForwardPathLength-prepare-change, 0)
	end := math.Min(after+forward, tgtArc.total)
	for d := after + interval; d <= end; d += interval {
		path.Points = append(path.Points, pathPointAt(tgtArc, d, vShift))
	}
	if len(path.Points) < 2 {
		return CandidatePath{}
	}
	fillYawFromPositions(&path)

	iStart := int(prepare / interval)
	iEnd := lo.Clamp(iStart+int(change/interval), 0, len(path.Points)-1)
	shiftStart = path.Points[lo.Clamp(iStart, 0, len(path.Points)-1)].Pose
	shiftEnd = path.Points[iEnd].Pose
	lengths := calcPathLengths(path)
	return CandidatePath{
		Path:          path,
		ShiftLine:     ShiftLine{Start: shiftStart, End: shiftEnd},
		Length:        lengths[len(lengths)-1],
		PrepareLength: prepare,
		ChangeLength:  change,
	}
}

// fillYawFromPositions 用相邻点坐标差补全路径点航向角
func fillYawFromPositions(path *Path) {
	for i := 0; i < len(path.Points)-1; i++ {
		cur, next := path.Points[i].XYZ, path.Points[i+1].XYZ
		path.Points[i].Yaw = math.Atan2(next.Y-cur.Y, next.X-cur.X)
	}
	if n := len(path.Points); n >= 2 {
		path.Points[n-1].Yaw = path.Points[n-2].Yaw
	}
}

// IsValidPath 检查路径有效性
// 算法说明：
// 1. 所有路径点必须落在当前车道与目标车道（按可行驶区域配置扩展）的边界多边形并集内
// 2. 相邻路径点的航向角差必须小于π/2（路径不自折）
func (g *CandidatePathGenerator) IsValidPath(path Path, currentLanes, targetLanes []entity.ILane) bool {
	if path.Empty() {
		return false
	}
	p := g.ctx.RuntimeConfig().P
	drivable := make([][]geometry.Point, 0, len(currentLanes)+len(targetLanes))
	for _, l := range append(append([]entity.ILane{}, currentLanes...), targetLanes...) {
		drivable = append(drivable, l.BoundaryPolygon(p.DrivableAreaLeftBoundOffset, p.DrivableAreaRightBoundOffset))
	}
	for _, pt := range path.Points {
		if !pointInAnyPolygon(drivable, pt.XYZ) {
			log.Debugf("path point (%.1f, %.1f) out of drivable lanes", pt.XYZ.X, pt.XYZ.Y)
			return false
		}
	}
	for i := 1; i < len(path.Points); i++ {
		diff := normalizeRadian(path.Points[i].Yaw - path.Points[i-1].Yaw)
		if math.Abs(diff) > math.Pi/2 {
			log.Debug("path with sharp relative angle")
			return false
		}
	}
	return true
}

// SelectLaneChangePath 从候选集中选择提交路径
// 功能：先过滤有效候选，再按安全性选择
// 返回：选中路径与(foundValid, foundSafe)标志
// 算法说明：安全时选择有效候选中最靠后（最激进）的安全者；
// 全部不安全时退而选择第一条（最保守）作为降级候选，标志置false
func (g *CandidatePathGenerator) SelectLaneChangePath(paths []CandidatePath,
	currentLanes, targetLanes []entity.ILane, objects []ObjectData,
	egoPose Pose, egoTwist Twist, evaluator *SafetyEvaluator,
	debug map[int32]ObjectDebug) (CandidatePath, bool, bool, []CandidatePath) {
	valid := lo.Filter(paths, func(c CandidatePath, _ int) bool {
		return g.IsValidPath(c.Path, currentLanes, targetLanes)
	})
	if len(valid) == 0 {
		return CandidatePath{}, false, false, nil
	}
	for i := len(valid) - 1; i >= 0; i-- {
		if evaluator.IsLaneChangePathSafe(valid[i], objects, egoPose, egoTwist, debug) {
			return valid[i], true, true, valid
		}
	}
	return valid[0], true, false, valid
}

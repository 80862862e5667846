package lane

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// Lane 车道实体
// 功能：表示地图中的车道，包含几何信息、相邻关系与拓扑连接，
// 为行为规划器提供弧长、投影、边界多边形等几何查询能力
type Lane struct {
	ctx entity.ITaskContext

	id int32

	// 初始化临时变量

	initPredecessors []*mapv2.LaneConnection
	initSuccessors   []*mapv2.LaneConnection
	initLeftLaneIDs  []int32
	initRightLaneIDs []int32

	typ               mapv2.LaneType               // 车道类型
	maxV              float64                      // 车道限速
	parentRoad        entity.IRoad                 // 所在道路
	predecessors      map[int32]entity.Connection  // 前驱车道映射表
	successors        map[int32]entity.Connection  // 后继车道映射表
	uniquePredecessor entity.ILane                 // 唯一前驱
	uniqueSuccessor   entity.ILane                 // 唯一后继
	sideLanes         [2][]entity.ILane            // 左/右侧车道（按距离从近到远排序）
	lineLengths       []float64                    // 中心线折线点对应的的长度列表
	length            float64                      // 以中心线的长度为车道长度
	width             float64                      // 车道宽度
	lineDirections    []geometry.PolylineDirection // 中心线折线段每一段的方向（atan2）
	line              []geometry.Point             // 转成Point的中心线折线
}

// newLane 创建并初始化一个新的Lane实例
// 功能：根据基础数据创建Lane对象，初始化几何信息
// 参数：ctx-任务上下文，base-基础Lane数据
// 返回：初始化完成的Lane实例
func newLane(ctx entity.ITaskContext, base *mapv2.Lane) *Lane {
	l := &Lane{
		ctx:              ctx,
		id:               base.Id,
		initPredecessors: base.Predecessors,
		initSuccessors:   base.Successors,
		initLeftLaneIDs:  base.LeftLaneIds,
		initRightLaneIDs: base.RightLaneIds,
		typ:              base.Type,
		maxV:             base.MaxSpeed,
		predecessors:     make(map[int32]entity.Connection),
		successors:       make(map[int32]entity.Connection),
		sideLanes:        [2][]entity.ILane{},
		lineLengths:      make([]float64, 0),
		lineDirections:   make([]geometry.PolylineDirection, 0),
		line:             make([]geometry.Point, 0),
		width:            base.Width,
	}
	l.line = lo.Map(base.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
		return geometry.NewPointFromPb(node)
	})
	l.lineLengths = geometry.GetPolylineLengths2D(l.line)
	l.length = l.lineLengths[len(l.lineLengths)-1]
	l.lineDirections = geometry.GetPolylineDirections(l.line)
	if l.typ != mapv2.LaneType_LANE_TYPE_DRIVING && l.typ != mapv2.LaneType_LANE_TYPE_WALKING {
		log.Panicf("bad type %v for lane %d", l.typ, l.id)
	}
	return l
}

// initWithManager 在管理器初始化后建立Lane的连接关系
// 功能：根据初始化数据建立前驱、后继、侧车道等连接关系
// 参数：laneManager-车道管理器
// 说明：建立车道间的拓扑关系，为车道序列提取与相邻车道查询提供基础
func (l *Lane) initWithManager(laneManager entity.ILaneManager) {
	for _, conn := range l.initPredecessors {
		lane := laneManager.Get(conn.Id)
		l.predecessors[conn.Id] = entity.Connection{Lane: lane, Type: conn.Type}
	}
	if len(l.predecessors) == 1 {
		for _, conn := range l.predecessors {
			l.uniquePredecessor = conn.Lane
			break
		}
	}
	for _, conn := range l.initSuccessors {
		lane := laneManager.Get(conn.Id)
		l.successors[conn.Id] = entity.Connection{Lane: lane, Type: conn.Type}
	}
	if len(l.successors) == 1 {
		for _, conn := range l.successors {
			l.uniqueSuccessor = conn.Lane
			break
		}
	}
	for _, id := range l.initLeftLaneIDs {
		l.sideLanes[entity.LEFT] = append(l.sideLanes[entity.LEFT], laneManager.Get(id))
	}
	for _, id := range l.initRightLaneIDs {
		l.sideLanes[entity.RIGHT] = append(l.sideLanes[entity.RIGHT], laneManager.Get(id))
	}
	// 清理初始化临时变量
	l.initPredecessors = nil
	l.initSuccessors = nil
	l.initLeftLaneIDs = nil
	l.initRightLaneIDs = nil
}

// 设置lane所在road的指针
func (l *Lane) SetParentRoadWhenInit(parent entity.IRoad) {
	l.parentRoad = parent
}

func (l *Lane) String() string {
	if l == nil {
		return "Lane nil"
	}
	return fmt.Sprintf("Lane %d", l.id)
}

// getter

func (l *Lane) ID() int32 {
	return l.id
}

func (l *Lane) Length() float64 {
	return l.length
}

func (l *Lane) Width() float64 {
	return l.width
}

func (l *Lane) Type() mapv2.LaneType {
	return l.typ
}

func (l *Lane) MaxV() float64 {
	return l.maxV
}

// 查询唯一前驱，不存在或不唯一时返回error
func (l *Lane) UniquePredecessor() (entity.ILane, error) {
	if l.uniquePredecessor == nil {
		return nil, fmt.Errorf("lane %d has no unique predecessor", l.id)
	}
	return l.uniquePredecessor, nil
}

// 查询唯一后继，不存在或不唯一时返回error
func (l *Lane) UniqueSuccessor() (entity.ILane, error) {
	if l.uniqueSuccessor == nil {
		return nil, fmt.Errorf("lane %d has no unique successor", l.id)
	}
	return l.uniqueSuccessor, nil
}

// 获取左侧的Lane（最近的一条）
func (l *Lane) LeftLane() entity.ILane {
	if len(l.sideLanes[entity.LEFT]) == 0 {
		return nil
	}
	return l.sideLanes[entity.LEFT][0]
}

// 获取右侧的Lane（最近的一条）
func (l *Lane) RightLane() entity.ILane {
	if len(l.sideLanes[entity.RIGHT]) == 0 {
		return nil
	}
	return l.sideLanes[entity.RIGHT][0]
}

// 根据side获取左(side=0)/右(side=1)侧的Lane
func (l *Lane) NeighborLane(side int) entity.ILane {
	switch side {
	case entity.LEFT:
		return l.LeftLane()
	case entity.RIGHT:
		return l.RightLane()
	default:
		log.Panicf("bad side %d for lane %d", side, l.id)
		return nil
	}
}

func (l *Lane) CenterLine() []geometry.Point {
	return l.line
}

func (l *Lane) ParentRoad() entity.IRoad {
	return l.parentRoad
}

// 对同一道路内的车道按比例"投影"
func (l *Lane) ProjectFromLane(other entity.ILane, otherS float64) float64 {
	if l.ParentRoad() != other.ParentRoad() {
		log.Panic("project from lane in different road")
		return 0
	}
	return lo.Clamp(otherS/other.Length()*l.length, 0, l.length)
}

// 根据本车道s坐标计算切向角度
func (l *Lane) GetDirectionByS(s float64) (direction geometry.PolylineDirection) {
	if s < l.lineLengths[0] || s > l.lineLengths[len(l.lineLengths)-1] {
		log.Debugf("get direction with s %v out of range{%v,%v}",
			s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
		s = lo.Clamp(s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
	}
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		direction = l.lineDirections[0]
	} else {
		direction = l.lineDirections[i-1]
	}
	return
}

// 将当前车道s坐标转换为xy(z)坐标
func (l *Lane) GetPositionByS(s float64) (pos geometry.Point) {
	if s < l.lineLengths[0] || s > l.lineLengths[len(l.lineLengths)-1] {
		log.Debugf("get position with s %v out of range{%v,%v}",
			s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
		s = lo.Clamp(s, l.lineLengths[0], l.lineLengths[len(l.lineLengths)-1])
	}
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		pos = l.line[0]
	} else {
		sHigh, sLow := l.lineLengths[i], l.lineLengths[i-1]
		k := (s - sLow) / (sHigh - sLow)
		if k < 0 || k > 1 {
			log.Panicf("lane: GetPositionByS(), bad k %v due to pos %v. sHigh=%f, sLow=%f, s=%f", k, pos, sHigh, sLow, s)
		}
		pos = geometry.Blend(l.line[i-1], l.line[i], k)
	}
	return
}

// 将当前车道s坐标，沿行进方向法向平移offset后的坐标转换为xy坐标（offset向右为正）
func (l *Lane) GetOffsetPositionByS(s, offset float64) (pos geometry.Point) {
	originalPos := l.GetPositionByS(s)
	direction := l.GetDirectionByS(s)
	unitNormal := geometry.Point{X: math.Cos(direction.Direction - math.Pi/2), Y: math.Sin(direction.Direction - math.Pi/2)}
	return geometry.Point{X: originalPos.X + unitNormal.X*offset, Y: originalPos.Y + unitNormal.Y*offset, Z: originalPos.Z}
}

// 将xyz坐标投影到车道折线上，计算出对应的s坐标
func (l *Lane) ProjectToLane(pos geometry.Point) float64 {
	s := geometry.GetClosestPolylineSToPoint2D(l.line, l.lineLengths, pos)
	return lo.Clamp(s, 0, l.length)
}

// BoundaryPolygon 计算车道的边界多边形
// 功能：将中心线分别向左右平移(width/2+扩展量)，首尾相接围成闭合多边形
// 参数：leftExpand-左边界扩展量（米），rightExpand-右边界扩展量（米）
// 返回：逆时针方向的闭合多边形顶点序列（首尾不重复）
// 说明：左边界沿行进方向顺序排列，右边界反向排列
func (l *Lane) BoundaryPolygon(leftExpand, rightExpand float64) []geometry.Point {
	leftOffset := -(l.width/2 + leftExpand)
	rightOffset := l.width/2 + rightExpand
	polygon := make([]geometry.Point, 0, 2*len(l.lineLengths))
	for _, s := range l.lineLengths {
		polygon = append(polygon, l.GetOffsetPositionByS(s, leftOffset))
	}
	for i := len(l.lineLengths) - 1; i >= 0; i-- {
		polygon = append(polygon, l.GetOffsetPositionByS(l.lineLengths[i], rightOffset))
	}
	return polygon
}

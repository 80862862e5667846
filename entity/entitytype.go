package entity

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// 方位常量
const (
	LEFT  = 0 // 左侧
	RIGHT = 1 // 右侧
)

// Lane连接关系
type Connection struct {
	Lane ILane                    // 连接到的Lane
	Type mapv2.LaneConnectionType // 连接类型
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	// 初始化

	SetParentRoadWhenInit(parent IRoad) // 设置lane所在road的指针

	// Print

	String() string

	// getter

	ID() int32            // 获取Lane ID
	Length() float64      // 获取Lane长度
	Width() float64       // 获取Lane宽度
	Type() mapv2.LaneType // 获取Lane类型
	MaxV() float64        // 获取车道限速

	ProjectFromLane(l ILane, s float64) float64 // 对同一道路内的车道按比例"投影"

	// 查询唯一前驱，不存在或不唯一时返回error
	UniquePredecessor() (ILane, error)
	// 查询唯一后继，不存在或不唯一时返回error
	UniqueSuccessor() (ILane, error)
	LeftLane() ILane                                       // 获取左侧的Lane
	RightLane() ILane                                      // 获取右侧的Lane
	NeighborLane(side int) ILane                           // 根据side获取左(side=0)/右(side=1)侧的Lane
	CenterLine() []geometry.Point                          // 获取Lane的中心线
	GetPositionByS(s float64) geometry.Point               // 将当前车道s坐标转换为xy坐标
	GetOffsetPositionByS(s, offset float64) geometry.Point // 将当前车道s坐标，沿行进方向平移offset后的坐标转换为xy坐标
	GetDirectionByS(s float64) geometry.PolylineDirection  // 根据本车道s坐标计算切向角度
	ProjectToLane(pos geometry.Point) float64              // 将xy坐标投影到车道上，返回s坐标

	// 边界多边形：中心线分别向左右平移(width/2+左右扩展量)后围成的闭合多边形，
	// 用于目标物分类的探测走廊与本车是否仍在原车道的判定
	BoundaryPolygon(leftExpand, rightExpand float64) []geometry.Point

	// 所在道路

	ParentRoad() IRoad // 获取Lane所在的Road
}

// entity/road/road.go的依赖倒置
type IRoad interface {
	String() string

	ID() int32    // 获取Road ID
	Name() string // 获取Road名称
}

package entity

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(pbs []*mapv2.Lane) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	// 查找距离给定坐标最近的行车道，没有任何行车道时返回nil
	GetClosestDrivingLane(pos geometry.Point) ILane
}

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(pbs []*mapv2.Road, laneManager ILaneManager) // 初始化

	// 输入Road ID，查找Road，如果不存在则panic
	Get(id int32) IRoad
	// 输入Road ID，查找Road，如果不存在则返回error
	GetOrError(id int32) (IRoad, error)
}

package road

import (
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// RoadManager Road管理器
// 功能：管理所有Road实体，提供创建、查找、初始化等功能
type RoadManager struct {
	ctx entity.ITaskContext

	data  map[int32]*Road
	roads []*Road
}

// NewManager 创建Road管理器实例
func NewManager(ctx entity.ITaskContext) *RoadManager {
	return &RoadManager{
		ctx:   ctx,
		data:  make(map[int32]*Road),
		roads: make([]*Road, 0),
	}
}

// Init 初始化所有Road
// 功能：根据protobuf数据初始化所有Road对象，建立ID映射关系
// 参数：pbs-Road的protobuf数据列表，laneManager-车道管理器
func (m *RoadManager) Init(pbs []*mapv2.Road, laneManager entity.ILaneManager) {
	m.roads = lo.Map(pbs, func(pb *mapv2.Road, _ int) *Road {
		return newRoad(m.ctx, pb, laneManager)
	})
	m.data = lo.SliceToMap(m.roads, func(r *Road) (int32, *Road) {
		return r.id, r
	})
}

// Get 根据ID获取Road实例，如果不存在则panic
func (m *RoadManager) Get(id int32) entity.IRoad {
	if road, ok := m.data[id]; !ok {
		log.Panicf("no id %d in road data", id)
		return nil
	} else {
		return road
	}
}

// GetOrError 根据ID获取Road实例，如果不存在则返回error
func (m *RoadManager) GetOrError(id int32) (entity.IRoad, error) {
	if road, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in road data", id)
	} else {
		return road, nil
	}
}

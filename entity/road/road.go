package road

import (
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
)

// Road 道路实体
// 功能：表示地图中的道路，聚合车道并作为同道路判定的锚点
type Road struct {
	ctx entity.ITaskContext

	id   int32
	name string
}

// newRoad 创建并初始化一个新的Road实例
// 功能：根据基础数据创建Road对象，校验车道类型并把自身写入所属车道
// 参数：ctx-任务上下文，base-基础Road数据，laneManager-车道管理器
// 返回：初始化完成的Road实例
func newRoad(ctx entity.ITaskContext, base *mapv2.Road, laneManager entity.ILaneManager) *Road {
	r := &Road{
		ctx:  ctx,
		id:   base.Id,
		name: base.Name,
	}
	for _, laneID := range base.LaneIds {
		lane := laneManager.Get(laneID)
		switch lane.Type() {
		case mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneType_LANE_TYPE_WALKING:
		default:
			log.Panicf("Unknown lane type: %d", lane.Type())
		}
		lane.SetParentRoadWhenInit(r)
	}
	return r
}

// ID 获取Road的唯一标识符
func (r *Road) ID() int32 {
	if r == nil {
		return -1
	}
	return r.id
}

func (r *Road) String() string {
	return fmt.Sprintf("Road %d", r.id)
}

// Name 获取Road的名称
func (r *Road) Name() string {
	return r.name
}

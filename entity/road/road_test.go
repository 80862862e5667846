package road_test

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/lane"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/road"
)

func TestRoadInit(t *testing.T) {
	line := func(y float64) *mapv2.Polyline {
		return &mapv2.Polyline{Nodes: []*geov2.XYPosition{
			{X: 0, Y: y}, {X: 100, Y: y},
		}}
	}
	lm := lane.NewManager(nil)
	lm.Init([]*mapv2.Lane{
		{Id: 1, Type: mapv2.LaneType_LANE_TYPE_DRIVING, MaxSpeed: 16.7, Width: 3.5, CenterLine: line(0)},
		{Id: 2, Type: mapv2.LaneType_LANE_TYPE_DRIVING, MaxSpeed: 16.7, Width: 3.5, CenterLine: line(3.5)},
	})
	rm := road.NewManager(nil)
	rm.Init([]*mapv2.Road{{Id: 7, Name: "east avenue", LaneIds: []int32{2, 1}}}, lm)

	r, err := rm.GetOrError(7)
	require.NoError(t, err)
	assert.Equal(t, int32(7), r.ID())
	assert.Equal(t, "east avenue", r.Name())
	assert.Equal(t, "Road 7", r.String())

	// 车道初始化后持有所在道路的指针
	assert.Equal(t, r, lm.Get(1).ParentRoad())
	assert.Equal(t, r, lm.Get(2).ParentRoad())

	_, err = rm.GetOrError(99)
	assert.Error(t, err)
}

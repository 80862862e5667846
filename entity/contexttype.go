package entity

import (
	"github.com/tsinghua-fib-lab/behavior-planner-oss/clock"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	RoadManager() IRoadManager
	RuntimeConfig() *config.RuntimeConfig
}

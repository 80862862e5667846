package input

import (
	"os"

	"gopkg.in/yaml.v2"
)

// ScenarioPose 场景文件中的位姿
type ScenarioPose struct {
	X   float64 `yaml:"x"`
	Y   float64 `yaml:"y"`
	Yaw float64 `yaml:"yaw"`
}

// ScenarioTrajectory 场景文件中的物体预测轨迹
type ScenarioTrajectory struct {
	TimeStep   float64        `yaml:"time_step"`  // 相邻预测点的时间间隔（秒）
	Confidence float64        `yaml:"confidence"` // 置信度
	Points     []ScenarioPose `yaml:"points"`
}

// ScenarioObject 场景文件中的感知跟踪物体
type ScenarioObject struct {
	ID        int32                `yaml:"id"`
	Label     string               `yaml:"label"` // 分类标签（car/truck/bus等）
	X         float64              `yaml:"x"`
	Y         float64              `yaml:"y"`
	Yaw       float64              `yaml:"yaw"`
	V         float64              `yaml:"v"`
	Width     float64              `yaml:"width,omitempty"`  // footprint宽度（米），缺省1.8
	Length    float64              `yaml:"length,omitempty"` // footprint长度（米），缺省4.5
	Predicted []ScenarioTrajectory `yaml:"predicted,omitempty"`
}

// ScenarioEgo 场景文件中的本车状态
type ScenarioEgo struct {
	X   float64 `yaml:"x"`
	Y   float64 `yaml:"y"`
	Yaw float64 `yaml:"yaw"`
	V   float64 `yaml:"v"`
	W   float64 `yaml:"w,omitempty"`
}

// ScenarioFrame 单个规划周期的感知帧
type ScenarioFrame struct {
	Ego     ScenarioEgo      `yaml:"ego"`
	Objects []ScenarioObject `yaml:"objects,omitempty"`
}

// Scenario 逐周期回放的感知场景
// 说明：帧数少于规划周期数时，多出的周期复用最后一帧
type Scenario struct {
	Name   string          `yaml:"name"`
	Frames []ScenarioFrame `yaml:"frames"`
}

// loadScenario 从YAML文件加载场景，失败则panic
func loadScenario(path string) *Scenario {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Panicf("failed to read scenario file: %v", err)
	}
	s := &Scenario{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		log.Panicf("failed to parse scenario file: %v", err)
	}
	if len(s.Frames) == 0 {
		log.Panic("scenario has no frames")
	}
	return s
}

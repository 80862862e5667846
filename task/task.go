package task

import (
	"github.com/tsinghua-fib-lab/behavior-planner-oss/clock"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/lane"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/entity/road"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/planner"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/config"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/input"
	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/randengine"
)

const (
	SelfName = "behavior-planner" // 本程序在规划任务中的名字
)

// Context 规划任务上下文
// 功能：包含一次规划任务的所有变量和状态，替代全局变量
// 说明：管理时钟、地图实体管理器、配置、场景与决策模块
type Context struct {
	// 任务名
	job string
	// 缓存文件夹
	cacheDir string

	// 时钟
	clock *clock.Clock

	// Lane管理器
	laneManager entity.ILaneManager
	// Road管理器
	roadManager entity.IRoadManager

	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 场景感知帧
	scenario *input.Scenario

	// 避障变道决策模块
	module *planner.Module
	// 审批网关
	gateway *planner.ManualGateway
	// 随机数引擎（感知噪声与丢失回放）
	engine *randengine.Engine
}

// NewContext 创建规划任务上下文
// 功能：加载输入数据并初始化所有组件
// 参数：job-任务名，cacheDir-输入缓存目录，c-配置，autoApprove-审批网关是否自动批准
// 返回：初始化完成的任务上下文
// 算法说明：
// 1. 构建运行时配置与时钟
// 2. 加载地图与场景数据
// 3. 初始化Lane/Road管理器并建立实体连接关系
// 4. 创建审批网关与决策模块
func NewContext(job, cacheDir string, c config.Config, autoApprove bool) *Context {
	ctx := &Context{
		job:      job,
		cacheDir: cacheDir,
	}
	ctx.runtimeConfig = config.NewRuntimeConfig(c)
	ctx.clock = clock.New(c.Control.Step)

	in := input.Init(c, cacheDir)
	ctx.scenario = in.Scenario

	ctx.laneManager = lane.NewManager(ctx)
	ctx.roadManager = road.NewManager(ctx)
	ctx.laneManager.Init(in.Map.Lanes)
	ctx.roadManager.Init(in.Map.Roads, ctx.laneManager)

	ctx.gateway = planner.NewManualGateway(autoApprove)
	ctx.module = planner.NewModule(ctx, ctx.gateway)
	ctx.engine = randengine.New(uint64(c.Control.Step.Start))
	return ctx
}

// entity.ITaskContext实现

func (ctx *Context) Clock() *clock.Clock                  { return ctx.clock }
func (ctx *Context) LaneManager() entity.ILaneManager     { return ctx.laneManager }
func (ctx *Context) RoadManager() entity.IRoadManager     { return ctx.roadManager }
func (ctx *Context) RuntimeConfig() *config.RuntimeConfig { return ctx.runtimeConfig }

// Module 获取决策模块
func (ctx *Context) Module() *planner.Module { return ctx.module }

// Gateway 获取审批网关
func (ctx *Context) Gateway() *planner.ManualGateway { return ctx.gateway }

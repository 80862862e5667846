package planner

import (
	"sync"

	"github.com/google/uuid"
)

// PendingCandidate 注册到审批网关的待批候选
type PendingCandidate struct {
	Token          string  // 审批令牌
	Path           Path    // 候选路径
	StartDistance  float64 // 本车到横移开始的弧长（米）
	FinishDistance float64 // 本车到横移结束的弧长（米）
}

// IApprovalGateway 外部审批网关
// 功能：模块在提交路径前必须经由网关获得批准；
// 前向变道与中止路径使用各自独立的令牌
// 说明：实现可以来自人工确认界面，也可以是自动批准策略；
// 模块每周期只读取一次批准状态作为本周期快照
type IApprovalGateway interface {
	// Register 注册或刷新一个待批候选，同一令牌重复注册为刷新
	Register(candidate PendingCandidate)
	// Invalidate 作废令牌，其批准状态被清除
	Invalidate(token string)
	// IsActivated 查询令牌是否已被批准
	IsActivated(token string) bool
}

// NewApprovalToken 生成新的审批令牌
func NewApprovalToken() string {
	return uuid.NewString()
}

// ManualGateway 审批网关的内存实现
// 功能：候选注册后等待Approve显式批准；autoApprove开启时注册即批准
// 说明：带互斥锁，允许审批方与规划周期不在同一goroutine
type ManualGateway struct {
	mtx sync.Mutex

	autoApprove bool
	pending     map[string]PendingCandidate
	activated   map[string]bool
}

func NewManualGateway(autoApprove bool) *ManualGateway {
	return &ManualGateway{
		autoApprove: autoApprove,
		pending:     make(map[string]PendingCandidate),
		activated:   make(map[string]bool),
	}
}

func (g *ManualGateway) Register(candidate PendingCandidate) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.pending[candidate.Token] = candidate
	if g.autoApprove {
		g.activated[candidate.Token] = true
	}
}

func (g *ManualGateway) Invalidate(token string) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	delete(g.pending, token)
	delete(g.activated, token)
}

func (g *ManualGateway) IsActivated(token string) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.activated[token]
}

// Approve 批准指定令牌的候选
func (g *ManualGateway) Approve(token string) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if _, ok := g.pending[token]; ok {
		g.activated[token] = true
	}
}

// Pending 列出当前待批候选的令牌
func (g *ManualGateway) Pending() []string {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	tokens := make([]string, 0, len(g.pending))
	for token := range g.pending {
		tokens = append(tokens, token)
	}
	return tokens
}

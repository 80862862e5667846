// 随机数引擎，包装了golang.org/x/exp/rand
package randengine

import (
	"flag"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "随机数种子偏移量")
)

// Engine 随机数引擎
// 功能：为感知噪声与检测丢失回放提供可复现的随机数序列
// 说明：相同种子产生相同序列，种子偏移量允许在不修改配置的情况下整体平移序列
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 参数：seed-随机数种子
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrue 以概率p返回true
// 参数：p-返回true的概率（0.0到1.0之间）
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

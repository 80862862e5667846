package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tsinghua-fib-lab/behavior-planner-oss/utils/randengine"
)

func TestDeterministicSequence(t *testing.T) {
	a, b := randengine.New(7), randengine.New(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestPTrueBounds(t *testing.T) {
	e := randengine.New(1)
	for i := 0; i < 100; i++ {
		assert.False(t, e.PTrue(0))
		assert.True(t, e.PTrue(1))
	}
}

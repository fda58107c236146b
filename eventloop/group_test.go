package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRoundRobin(t *testing.T) {
	g := NewGroup("worker", 3)
	defer g.ShutdownGracefully(0, time.Second)

	first := g.Next()
	second := g.Next()
	third := g.Next()
	fourth := g.Next()
	assert.NotEqual(t, first.Name(), second.Name())
	assert.NotEqual(t, second.Name(), third.Name())
	assert.Equal(t, first.Name(), fourth.Name())
}

func TestGroupShutdownWaitsForAll(t *testing.T) {
	g := NewGroup("worker", 4)
	term := g.ShutdownGracefully(0, time.Second)
	require.NoError(t, term.Await())
}

package pid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/sysmsg"
)

func TestPID_Lifecycle(t *testing.T) {
	p := NewPID(mailbox.NewFutureMailbox())
	ctx, cancel := context.WithCancel(context.Background())
	p.SetCancel(cancel)

	running, _ := p.Status()
	assert.True(t, running)
	assert.NotEmpty(t, p.ID())

	require.True(t, p.RequestStop(sysmsg.ShutdownReason("test")))
	assert.False(t, p.RequestStop(sysmsg.Reason{Type: sysmsg.Kill}), "only the first stop request counts")
	assert.Error(t, ctx.Err())

	reason, ok := p.StopRequested()
	require.True(t, ok)
	assert.Equal(t, sysmsg.Shutdown, reason.Type)

	_, ok = p.Terminate(reason)
	require.True(t, ok)
	_, ok = p.Terminate(sysmsg.NormalReason())
	assert.False(t, ok)

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	running, final := p.Status()
	assert.False(t, running)
	assert.Equal(t, reason, final)
	assert.False(t, p.RequestStop(sysmsg.ShutdownReason("late")))
}

func TestPID_Links(t *testing.T) {
	a := NewPID(mailbox.NewFutureMailbox())
	b := NewPID(mailbox.NewFutureMailbox())
	c := NewPID(mailbox.NewFutureMailbox())

	require.True(t, a.Link(b))
	require.True(t, a.Link(c))
	assert.True(t, a.Linked(b))
	a.Unlink(c)
	assert.False(t, a.Linked(c))

	links, ok := a.Terminate(sysmsg.NormalReason())
	require.True(t, ok)
	require.Len(t, links, 1)
	assert.Equal(t, b.ID(), links[0].ID())

	assert.False(t, a.Link(c), "terminated processes cannot be linked")
}

func TestPID_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewPID(mailbox.NewFutureMailbox()).ID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

package app

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/observability"
)

func statusEvent(taskID string, n int) agentports.Event {
	return agentports.Event{Type: agentports.EventStatus, TaskID: taskID, Content: fmt.Sprintf("status %d", n), Step: n}
}

func drain(sub *Subscription) []agentports.Event {
	var out []agentports.Event
	for event := range sub.C {
		out = append(out, event)
	}
	return out
}

func TestBroadcasterDeliversInOrderAndClosesOnTerminal(t *testing.T) {
	b := NewEventBroadcaster()
	b.Open("t1")
	sub := b.Subscribe("t1")

	for i := 1; i <= 3; i++ {
		b.OnEvent(statusEvent("t1", i))
	}
	b.OnEvent(agentports.Event{Type: agentports.EventFinalAnswer, TaskID: "t1", Content: "done"})
	b.OnEvent(statusEvent("t1", 99))

	events := drain(sub)
	require.Len(t, events, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i+1, events[i].Step)
	}
	assert.Equal(t, agentports.EventFinalAnswer, events[3].Type)
	assert.Equal(t, 0, b.SubscriberCount("t1"))
}

func TestBroadcasterDropsForSlowSubscriberButKeepsTerminal(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewEventBroadcaster(
		WithSubscriberBuffer(2),
		WithBroadcasterMetrics(observability.MustNewMetrics(reg)),
	)
	b.Open("t1")
	slow := b.Subscribe("t1")

	for i := 1; i <= 5; i++ {
		b.OnEvent(statusEvent("t1", i))
	}
	b.OnEvent(agentports.Event{Type: agentports.EventError, TaskID: "t1", Content: "boom"})

	events := drain(slow)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Step, "oldest buffered event is evicted for the terminal event")
	assert.Equal(t, agentports.EventError, events[1].Type)

	assert.Len(t, b.History("t1"), 6)
}

func TestBroadcasterReplaysHistoryToLateSubscribers(t *testing.T) {
	b := NewEventBroadcaster(WithSubscriberBuffer(1))
	b.OnEvent(statusEvent("t1", 1))
	b.OnEvent(statusEvent("t1", 2))

	live := b.Subscribe("t1")
	b.OnEvent(agentports.Event{Type: agentports.EventFinalAnswer, TaskID: "t1"})
	assert.Len(t, drain(live), 3)

	late := b.Subscribe("t1")
	events := drain(late)
	require.Len(t, events, 3)
	assert.Equal(t, agentports.EventFinalAnswer, events[2].Type)
}

func TestBroadcasterIsolatesTasksAndHandlesClose(t *testing.T) {
	b := NewEventBroadcaster()
	a := b.Subscribe("a")
	other := b.Subscribe("b")

	b.OnEvent(statusEvent("a", 1))
	other.Close()
	other.Close()
	b.OnEvent(statusEvent("b", 1))

	assert.Empty(t, drain(other))
	b.Forget("a")
	assert.Len(t, drain(a), 1)
	assert.Nil(t, b.History("a"))
}

func TestBroadcasterBoundsHistory(t *testing.T) {
	b := NewEventBroadcaster(WithMaxHistory(3))
	for i := 1; i <= 10; i++ {
		b.OnEvent(statusEvent("t1", i))
	}
	history := b.History("t1")
	require.Len(t, history, 3)
	assert.Equal(t, 8, history[0].Step)
}

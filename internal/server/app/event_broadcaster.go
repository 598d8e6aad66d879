package app

import (
	"sync"

	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/observability"
	"agentloop/internal/shared/logging"
)

const (
	defaultSubscriberBuffer = 100
	defaultMaxHistory       = 1000
)

// EventBroadcaster implements ports.EventListener and fans task events out to
// subscribers. Each subscriber has a bounded buffer; when it is full a
// non-terminal event is dropped for that subscriber only, and a terminal event
// evicts the oldest buffered event so it is always delivered. Publishing
// never blocks.
type EventBroadcaster struct {
	mu         sync.Mutex
	streams    map[string]*taskStream
	bufferSize int
	maxHistory int
	metrics    *observability.Metrics
	logger     logging.Logger
}

type taskStream struct {
	subscribers map[*Subscription]struct{}
	history     []agentports.Event
	finished    bool
}

// Subscription is one consumer of a task's events. C is closed after the
// terminal event or when the subscription is closed.
type Subscription struct {
	C      <-chan agentports.Event
	ch     chan agentports.Event
	taskID string
	owner  *EventBroadcaster
	once   sync.Once
}

// BroadcasterOption customizes an EventBroadcaster.
type BroadcasterOption func(*EventBroadcaster)

// WithSubscriberBuffer sets the per-subscriber buffer size.
func WithSubscriberBuffer(size int) BroadcasterOption {
	return func(b *EventBroadcaster) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithMaxHistory bounds the per-task replay history.
func WithMaxHistory(n int) BroadcasterOption {
	return func(b *EventBroadcaster) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// WithBroadcasterMetrics records dropped events.
func WithBroadcasterMetrics(m *observability.Metrics) BroadcasterOption {
	return func(b *EventBroadcaster) { b.metrics = m }
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(opts ...BroadcasterOption) *EventBroadcaster {
	b := &EventBroadcaster{
		streams:    make(map[string]*taskStream),
		bufferSize: defaultSubscriberBuffer,
		maxHistory: defaultMaxHistory,
		logger:     logging.NewComponentLogger("EventBroadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open registers a task so subscribers can attach before its first event.
func (b *EventBroadcaster) Open(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream(taskID)
}

func (b *EventBroadcaster) stream(taskID string) *taskStream {
	s, ok := b.streams[taskID]
	if !ok {
		s = &taskStream{subscribers: make(map[*Subscription]struct{})}
		b.streams[taskID] = s
	}
	return s
}

// OnEvent implements ports.EventListener.
func (b *EventBroadcaster) OnEvent(event agentports.Event) {
	if event.TaskID == "" {
		b.logger.Warn("Dropping %s event without task id", event.Type)
		return
	}
	terminal := event.Type.IsTerminal()

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(event.TaskID)
	if s.finished {
		b.logger.Warn("Dropping %s event after terminal event for task %s", event.Type, event.TaskID)
		return
	}
	s.history = append(s.history, event)
	if len(s.history) > b.maxHistory {
		s.history = append(s.history[:0], s.history[len(s.history)-b.maxHistory:]...)
	}

	for sub := range s.subscribers {
		b.deliver(sub, event, terminal)
	}

	if terminal {
		s.finished = true
		for sub := range s.subscribers {
			sub.closeChannel()
		}
		s.subscribers = make(map[*Subscription]struct{})
	}
}

func (b *EventBroadcaster) deliver(sub *Subscription, event agentports.Event, terminal bool) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	if !terminal {
		b.metrics.EventDropped()
		b.logger.Debug("Subscriber buffer full for task %s; dropped %s event", sub.taskID, event.Type)
		return
	}
	// Make room for the terminal event by discarding the oldest buffered one.
	select {
	case <-sub.ch:
		b.metrics.EventDropped()
	default:
	}
	select {
	case sub.ch <- event:
	default:
		b.logger.Warn("Failed to deliver terminal event for task %s", sub.taskID)
	}
}

// Subscribe attaches a consumer to a task. Buffered history is replayed
// first; for a finished task the channel is closed after the replay.
func (b *EventBroadcaster) Subscribe(taskID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(taskID)
	ch := make(chan agentports.Event, b.bufferSize+len(s.history))
	for _, event := range s.history {
		ch <- event
	}
	sub := &Subscription{C: ch, ch: ch, taskID: taskID, owner: b}
	if s.finished {
		sub.closeChannel()
		return sub
	}
	s.subscribers[sub] = struct{}{}
	return sub
}

// History returns a copy of the buffered events of a task.
func (b *EventBroadcaster) History(taskID string) []agentports.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[taskID]
	if !ok {
		return nil
	}
	return append([]agentports.Event(nil), s.history...)
}

// SubscriberCount reports the live subscribers of a task.
func (b *EventBroadcaster) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[taskID]; ok {
		return len(s.subscribers)
	}
	return 0
}

// Forget drops a task's history and closes any remaining subscribers.
func (b *EventBroadcaster) Forget(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[taskID]
	if !ok {
		return
	}
	for sub := range s.subscribers {
		sub.closeChannel()
	}
	delete(b.streams, taskID)
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	b := s.owner
	b.mu.Lock()
	defer b.mu.Unlock()
	if stream, ok := b.streams[s.taskID]; ok {
		delete(stream.subscribers, s)
	}
	s.closeChannel()
}

// closeChannel must be called with the broadcaster lock held.
func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}

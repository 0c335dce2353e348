// Package bus provides the event queue that carries worker results back to
// the single consumer loop. Many goroutines publish; exactly one consumer
// polls. Events are immutable values — once published they are never
// mutated.
package bus

import (
	"sync"

	"github.com/batalabs/chatd/internal/domain"
)

// Surface identifies which completion surface an event belongs to.
type Surface int

const (
	SurfaceChat Surface = iota
	SurfaceAgent
)

// String returns "chat" or "agent".
func (s Surface) String() string {
	if s == SurfaceAgent {
		return "agent"
	}
	return "chat"
}

// EventKind identifies the type of a bus event.
type EventKind int

const (
	EventModelsLoaded EventKind = iota
	EventModelsError
	EventCompletionReply
	EventCompletionError
	EventAgentReply
	EventAgentError
	EventProcessResult
)

// Event is a single item on the queue. Only the fields relevant to the
// Kind are populated.
type Event struct {
	Kind EventKind

	// Model listing events
	Provider       string
	Models         []string
	PreferredModel string

	// Completion events
	Surface        Surface
	ConversationID string
	Message        domain.Message
	Err            error

	// Process runner events
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Queue is a mutex-guarded FIFO. Publish never blocks and never drops;
// TryNext returns immediately whether or not an event is available.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Publish appends an event to the tail of the queue.
func (q *Queue) Publish(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// TryNext pops the head of the queue. The second return is false when the
// queue is empty.
func (q *Queue) TryNext() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// Drain removes and returns all queued events in order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

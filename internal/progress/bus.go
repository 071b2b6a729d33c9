package progress

import (
	"sync"
	"time"

	"speech-desk/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeSegment  EventType = "segment"
	EventTypeFinished EventType = "finished"
	EventTypeFailed   EventType = "failed"
	EventTypeAborted  EventType = "aborted"
	EventTypeNotice   EventType = "notice"
	EventTypeTiming   EventType = "timing"
)

// terminal reports whether an event type ends a job's event stream.
func (t EventType) terminal() bool {
	return t == EventTypeFinished || t == EventTypeFailed || t == EventTypeAborted
}

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64              `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	JobID     string             `json:"jobId"`
	Type      EventType          `json:"type"`
	Status    domain.JobStatus   `json:"status,omitempty"`
	Percent   int                `json:"percent,omitempty"`
	Segment   *domain.Segment    `json:"segment,omitempty"`
	Result    *domain.Transcript `json:"result,omitempty"`
	Failure   *domain.JobError   `json:"failure,omitempty"`
	Message   string             `json:"message,omitempty"`
	ElapsedMS int64              `json:"elapsedMs,omitempty"`
}

// Bus stores recent events, fans them out to subscribers, and enforces the
// per-job delivery contract: progress percentages are monotonically
// non-decreasing (the engine emits occasional out-of-order values, which are
// dropped here) and exactly one terminal event is delivered per job id.
type Bus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	lastPercent map[string]int
	closed      map[string]bool
	subs        map[int64]*Subscription
	nextSubID   int64
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		lastPercent: make(map[string]int),
		closed:      make(map[string]bool),
		subs:        make(map[int64]*Subscription),
	}
}

// Publish appends one event, assigns sequence and timestamp, and notifies
// subscribers. It returns the published event and false when the event was
// discarded by the jitter filter or arrived after the job's terminal event.
func (b *Bus) Publish(event Event) (Event, bool) {
	b.mu.Lock()

	if event.JobID != "" && b.closed[event.JobID] {
		b.mu.Unlock()
		return Event{}, false
	}
	if event.Type == EventTypeProgress {
		if last, ok := b.lastPercent[event.JobID]; ok && event.Percent < last {
			b.mu.Unlock()
			return Event{}, false
		}
		b.lastPercent[event.JobID] = event.Percent
	}
	if event.Type.terminal() && event.JobID != "" {
		b.closed[event.JobID] = true
		delete(b.lastPercent, event.JobID)
	}

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	if len(b.closed) > b.maxEvents || len(b.lastPercent) > b.maxEvents {
		b.dropStaleJobState()
	}

	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.jobID == "" || sub.jobID == event.JobID {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default: // at-most-once delivery, slow consumers lose events
		}
	}

	return event, true
}

// dropStaleJobState prunes per-job bookkeeping for jobs whose events
// have rotated out of the bounded log, keeping the maps from growing
// with every job a long desktop session ever ran. Callers hold b.mu.
func (b *Bus) dropStaleJobState() {
	live := make(map[string]struct{}, len(b.events))
	for _, event := range b.events {
		live[event.JobID] = struct{}{}
	}
	for id := range b.closed {
		if _, ok := live[id]; !ok {
			delete(b.closed, id)
		}
	}
	for id := range b.lastPercent {
		if _, ok := live[id]; !ok {
			delete(b.lastPercent, id)
		}
	}
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscription is a scoped event feed. Close must be called when the owning
// job or component finishes to release the bus slot.
type Subscription struct {
	bus   *Bus
	id    int64
	jobID string
	ch    chan Event
	once  sync.Once
}

// Subscribe registers a buffered event feed. An empty jobID receives events
// for all jobs.
func (b *Bus) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &Subscription{
		bus:   b,
		id:    b.nextSubID,
		jobID: jobID,
		ch:    make(chan Event, 64),
	}
	b.subs[sub.id] = sub
	return sub
}

// Events returns the subscription's receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

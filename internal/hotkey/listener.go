// Package hotkey binds dictation to a global key chord: press to start
// recording, release to transcribe.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType distinguishes chord press from release.
type EventType int

const (
	EventPressed EventType = iota
	EventReleased
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener watches one global key chord and emits press/release events.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a listener for the given chord. Keys are lowercase
// names as understood by the hook library (e.g. ["ctrl", "shift", "d"]).
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel receiving chord events. It is closed when
// Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening. It blocks until Stop is called; run it in a
// goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(_ hook.Event) {
		select {
		case l.ch <- Event{Type: EventPressed}:
		default: // don't block the hook thread
		}
	})
	hook.Register(hook.KeyUp, l.keys, func(_ hook.Event) {
		select {
		case l.ch <- Event{Type: EventReleased}:
		default:
		}
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the listener. Safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

package server

import (
	"sync"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// feed fans recorded runs out to every event-stream listener.
type feed struct {
	mu        sync.RWMutex
	listeners map[chan *core.Run]struct{}
}

func newFeed() *feed {
	return &feed{listeners: make(map[chan *core.Run]struct{})}
}

// subscribe returns a channel receiving recorded runs and a function that
// removes and closes it.
func (f *feed) subscribe() (<-chan *core.Run, func()) {
	ch := make(chan *core.Run, 8)
	f.mu.Lock()
	f.listeners[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// publish hands run to every listener. A listener whose buffer is full misses
// the run; the stream carries a snapshot of recent runs with every event.
func (f *feed) publish(run *core.Run) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.listeners {
		select {
		case ch <- run:
		default:
		}
	}
}

func (f *feed) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

package store

import (
	"sync"

	"github.com/google/uuid"
)

// Change describes a mutation of the underlying session storage. Origin
// identifies the store handle that performed the write so a listener can
// skip its own mutations.
type Change struct {
	Origin  string
	Profile []byte // raw persisted profile record; nil when cleared
	Cleared bool
}

// Notifier fans out storage changes to every subscriber. It is the
// in-process equivalent of the browser storage-change event: independent
// session controllers sharing one storage substrate reconcile through it.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]chan Change
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan Change)}
}

// Subscribe registers a listener and returns its ID together with a
// receive channel. The channel is buffered; a subscriber that stops
// draining loses events rather than blocking writers.
func (n *Notifier) Subscribe() (string, <-chan Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Change, 16)
	n.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the listener and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ch, ok := n.subs[id]; ok {
		close(ch)
		delete(n.subs, id)
	}
}

// Publish delivers the change to all subscribers without blocking.
func (n *Notifier) Publish(c Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

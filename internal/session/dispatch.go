package session

import (
	"sync"

	"github.com/srg/envsense/internal/device"
	"github.com/srg/envsense/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// notifyQueue keeps the newest undelivered value of every characteristic.
// A value only ever replaces an older value of the same characteristic, so every
// characteristic's latest value reaches the dispatcher.
type notifyQueue struct {
	mu       sync.Mutex
	pending  *orderedmap.OrderedMap[string, Notification] // normalized UUID -> latest value
	replaced int64

	// one slot is enough: a pending wake-up drains everything queued before it
	wake *ringchan.RingChannel[struct{}]
}

func newNotifyQueue() *notifyQueue {
	return &notifyQueue{
		pending: orderedmap.New[string, Notification](),
		wake:    ringchan.New[struct{}](1),
	}
}

// Push stores n as the latest value of its characteristic. Returns false after Close.
func (q *notifyQueue) Push(n Notification) bool {
	key := device.NormalizeUUID(n.UUID)
	q.mu.Lock()
	if _, ok := q.pending.Get(key); ok {
		q.replaced++
	}
	q.pending.Set(key, n)
	q.mu.Unlock()
	return q.wake.Send(struct{}{})
}

func (q *notifyQueue) pop() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pair := q.pending.Oldest()
	if pair == nil {
		return Notification{}, false
	}
	q.pending.Delete(pair.Key)
	return pair.Value, true
}

// run delivers pending values in first-changed order until Close
func (q *notifyQueue) run(deliver func(Notification)) {
	for range q.wake.C() {
		for {
			n, ok := q.pop()
			if !ok {
				break
			}
			deliver(n)
		}
	}
}

// Close stops run after the delivery in progress
func (q *notifyQueue) Close() {
	q.wake.Close()
}

// Replaced counts values superseded before delivery
func (q *notifyQueue) Replaced() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.replaced
}

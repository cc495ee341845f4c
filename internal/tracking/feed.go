package tracking

import (
	"sync"

	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing events rather than blocking
// the recorder.
const subscriberBuffer = 16

// Subscriber receives live tracking events for one prescription
type Subscriber struct {
	prescriptionID types.ID
	events         chan Event
	closeOnce      sync.Once
}

// Events returns the subscriber's receive channel. The channel is closed
// when the subscriber is removed from the feed.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Feed is the process-wide live tracking registry: prescription id to the
// set of connected subscribers. Delivery is at-most-once with no replay; a
// subscriber connecting after an event was published never sees it.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[types.ID]map[*Subscriber]struct{}
}

// NewFeed creates an empty live feed registry
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[types.ID]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber for a prescription. Multiple
// concurrent subscribers per prescription are supported; each must be
// released with Unsubscribe when its connection ends.
func (f *Feed) Subscribe(prescriptionID types.ID) *Subscriber {
	sub := &Subscriber{
		prescriptionID: prescriptionID,
		events:         make(chan Event, subscriberBuffer),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribers[prescriptionID] == nil {
		f.subscribers[prescriptionID] = make(map[*Subscriber]struct{})
	}
	f.subscribers[prescriptionID][sub] = struct{}{}
	metrics.RecordSubscriberConnected()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once.
func (f *Feed) Unsubscribe(sub *Subscriber) {
	f.mu.Lock()
	set, ok := f.subscribers[sub.prescriptionID]
	if ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(f.subscribers, sub.prescriptionID)
			}
			metrics.RecordSubscriberDisconnected()
		} else {
			ok = false
		}
	}
	f.mu.Unlock()

	if ok {
		sub.closeOnce.Do(func() { close(sub.events) })
	}
}

// Publish fans an event out to every live subscriber of its prescription.
// The send never blocks: a full subscriber buffer drops the event for that
// subscriber only.
func (f *Feed) Publish(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subscribers[e.PrescriptionID] {
		select {
		case sub.events <- e:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers for a prescription
func (f *Feed) SubscriberCount(prescriptionID types.ID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[prescriptionID])
}

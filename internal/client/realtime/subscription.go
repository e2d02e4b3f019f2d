package realtime

import "sync"

// Subscription is a scoped handler registration. Close releases it exactly
// once; later calls are no-ops.
type Subscription struct {
	once    sync.Once
	release func()
}

// NewSubscription wraps release. Channel implementations use it to hand out
// subscriptions.
func NewSubscription(release func()) *Subscription {
	return &Subscription{release: release}
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

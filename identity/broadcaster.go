package identity

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-clinic-session/sessions"
)

type notification struct {
	event   Event
	session *sessions.Session
}

// Broadcaster fans session change notifications out to subscribers. Each
// subscriber has its own goroutine and unbounded queue, so notifications
// arrive in emit order and Emit never blocks, even when called from inside a
// subscriber callback.
type Broadcaster struct {
	lock   sync.Mutex
	nextID int
	subs   map[int]*subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscription)}
}

// Subscribe starts delivery of notifications to fn.
func (b *Broadcaster) Subscribe(fn SessionChangeFunc) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		cancel: cancel,
		owner:  b,
	}

	b.lock.Lock()
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	b.lock.Unlock()

	go s.run(ctx, fn)
	return s
}

// Emit queues the notification for every subscriber. Sessions are cloned per
// subscriber.
func (b *Broadcaster) Emit(event Event, session *sessions.Session) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, s := range b.subs {
		s.push(notification{event: event, session: session.Clone()})
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subs)
}

type subscription struct {
	id      int
	lock    sync.Mutex
	pending []notification
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	owner   *Broadcaster
	once    sync.Once
}

func (s *subscription) push(n notification) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.pending = append(s.pending, n)
	s.lock.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context, fn SessionChangeFunc) {
	defer close(s.done)
	for {
		s.lock.Lock()
		if s.closed {
			s.lock.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.lock.Unlock()

		for _, n := range batch {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, n.event, n.session)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.lock.Lock()
		delete(s.owner.subs, s.id)
		s.owner.lock.Unlock()

		s.lock.Lock()
		s.closed = true
		s.pending = nil
		s.lock.Unlock()

		s.cancel()
		<-s.done
	})
}

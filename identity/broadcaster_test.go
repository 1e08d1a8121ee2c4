package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock   sync.Mutex
	events []identity.Event
	ids    []string
}

func (r *recorder) record(_ context.Context, event identity.Event, s *sessions.Session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
	if s != nil {
		r.ids = append(r.ids, s.User.ID)
	} else {
		r.ids = append(r.ids, "")
	}
}

func (r *recorder) snapshot() ([]identity.Event, []string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]identity.Event(nil), r.events...), append([]string(nil), r.ids...)
}

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := identity.NewBroadcaster()
	rec := &recorder{}
	sub := b.Subscribe(rec.record)
	defer sub.Unsubscribe()

	b.Emit(identity.EventSignedIn, &sessions.Session{User: sessions.Identity{ID: "a"}})
	b.Emit(identity.EventTokenRefreshed, &sessions.Session{User: sessions.Identity{ID: "b"}})
	b.Emit(identity.EventSignedOut, nil)

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 3
	}, time.Second, 5*time.Millisecond)

	events, ids := rec.snapshot()
	require.Equal(t, []identity.Event{identity.EventSignedIn, identity.EventTokenRefreshed, identity.EventSignedOut}, events)
	require.Equal(t, []string{"a", "b", ""}, ids)
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := identity.NewBroadcaster()
	rec := &recorder{}
	sub := b.Subscribe(rec.record)
	require.Equal(t, 1, b.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Equal(t, 0, b.Len())

	b.Emit(identity.EventSignedIn, &sessions.Session{})
	time.Sleep(20 * time.Millisecond)

	events, _ := rec.snapshot()
	require.Empty(t, events)
}

func TestBroadcasterEmitFromCallback(t *testing.T) {
	b := identity.NewBroadcaster()
	rec := &recorder{}
	var once sync.Once
	sub := b.Subscribe(func(ctx context.Context, event identity.Event, s *sessions.Session) {
		rec.record(ctx, event, s)
		once.Do(func() { b.Emit(identity.EventTokenRefreshed, s) })
	})
	defer sub.Unsubscribe()

	b.Emit(identity.EventSignedIn, &sessions.Session{User: sessions.Identity{ID: "a"}})

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcasterClonesSessions(t *testing.T) {
	b := identity.NewBroadcaster()
	got := make(chan *sessions.Session, 1)
	sub := b.Subscribe(func(_ context.Context, _ identity.Event, s *sessions.Session) { got <- s })
	defer sub.Unsubscribe()

	original := &sessions.Session{AccessToken: "tok"}
	b.Emit(identity.EventSignedIn, original)
	original.AccessToken = "mutated"

	select {
	case s := <-got:
		require.Equal(t, "tok", s.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

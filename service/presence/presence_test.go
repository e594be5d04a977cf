package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id, user string
	fail     atomic.Bool
	closed   atomic.Bool

	mu     sync.Mutex
	events []Event
}

func newFake(user, id string) *fakeHandle { return &fakeHandle{id: id, user: user} }

func (f *fakeHandle) ID() string     { return f.id }
func (f *fakeHandle) UserID() string { return f.user }
func (f *fakeHandle) Close()         { f.closed.Store(true) }

func (f *fakeHandle) Push(ev Event) error {
	if f.fail.Load() || f.closed.Load() {
		return ErrHandleClosed
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) received(typ string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeHandle) lastOnline(t *testing.T) []string {
	t.Helper()
	evs := f.received(EventPresenceUpdate)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1].Data.([]string)
}

type countingListener struct {
	mu      sync.Mutex
	changes []string
	pushErr int
}

func (c *countingListener) PresenceChanged(userID string, online bool, _ Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, fmt.Sprintf("%s:%v", userID, online))
}

func (c *countingListener) Pushed(_ string, err error) {
	if err != nil {
		c.mu.Lock()
		c.pushErr++
		c.mu.Unlock()
	}
}

func TestRegistryReplaceAndStaleDeregister(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newFake("a", "c1"), newFake("a", "c2")

	prev, snap, changed := r.Register("a", h1)
	assert.Nil(t, prev)
	assert.True(t, changed)
	assert.EqualValues(t, 1, snap.Version)

	_, _, changed = r.Register("a", h1)
	assert.False(t, changed)

	prev, snap, changed = r.Register("a", h2)
	assert.True(t, changed)
	assert.Same(t, h1, prev)
	assert.Equal(t, []string{"a"}, snap.Online)

	// late disconnect of the superseded handle
	_, changed = r.Deregister("a", h1)
	assert.False(t, changed)
	assert.True(t, r.IsOnline("a"))
	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, h2, got)

	_, changed = r.Deregister("a", h2)
	assert.True(t, changed)
	assert.False(t, r.IsOnline("a"))
	assert.Empty(t, r.OnlineUserIDs())

	_, changed = r.Deregister("nobody", h2)
	assert.False(t, changed)
}

func TestRegistryConcurrentLastWriterWins(t *testing.T) {
	r := NewRegistry()
	const n = 64
	handles := make([]*fakeHandle, n)
	for i := range handles {
		handles[i] = newFake("a", fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *fakeHandle) {
			defer wg.Done()
			r.Register("a", h)
			r.Deregister("a", h)
			r.Register("a", h)
		}(h)
	}
	wg.Wait()

	// every goroutine ended on a register, so exactly one handle is bound
	assert.Equal(t, []string{"a"}, r.OnlineUserIDs())
	assert.Equal(t, 1, r.Len())
}

func TestBroadcastOnEveryChange(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	a, bb := newFake("a", "ca"), newFake("b", "cb")

	b.Connect(a)
	assert.Equal(t, []string{"a"}, a.lastOnline(t))

	b.Connect(bb)
	assert.Equal(t, []string{"a", "b"}, a.lastOnline(t))
	assert.Equal(t, []string{"a", "b"}, bb.lastOnline(t))

	b.Disconnect(bb)
	assert.Equal(t, []string{"a"}, a.lastOnline(t))
	assert.Len(t, bb.received(EventPresenceUpdate), 1)

	// no-op disconnect does not broadcast
	b.Disconnect(bb)
	assert.Len(t, a.received(EventPresenceUpdate), 3)

	versions := a.received(EventPresenceUpdate)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i].Version, versions[i-1].Version)
	}
}

func TestConnectClosesSupersededHandle(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	old, fresh := newFake("a", "c1"), newFake("a", "c2")
	b.Connect(old)
	b.Connect(fresh)
	assert.True(t, old.closed.Load())
	assert.False(t, fresh.closed.Load())

	b.Disconnect(old)
	assert.True(t, b.Registry().IsOnline("a"))
	assert.Equal(t, []string{"a"}, fresh.lastOnline(t))
}

func TestFailedPushDeregisters(t *testing.T) {
	l := &countingListener{}
	b := NewBroadcaster(NewRegistry(), WithListener(l))
	a, dead := newFake("a", "ca"), newFake("d", "cd")
	b.Connect(a)
	b.Connect(dead)
	dead.fail.Store(true)

	b.Connect(newFake("c", "cc"))

	assert.False(t, b.Registry().IsOnline("d"))
	assert.True(t, dead.closed.Load())
	assert.Equal(t, []string{"a", "c"}, a.lastOnline(t))
	assert.Equal(t, 1, l.pushErr)
	assert.Equal(t, []string{"a:true", "d:true", "c:true", "d:false"}, l.changes)
}

func TestPushToOnlyReceiver(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	a, c := newFake("a", "ca"), newFake("c", "cc")
	b.Connect(a)
	b.Connect(c)

	assert.True(t, b.PushTo("a", Event{Type: EventMessageNew, Data: "hi"}))
	assert.Len(t, a.received(EventMessageNew), 1)
	assert.Empty(t, c.received(EventMessageNew))

	assert.False(t, b.PushTo("offline", Event{Type: EventMessageNew}))

	a.fail.Store(true)
	assert.False(t, b.PushTo("a", Event{Type: EventMessageNew}))
	assert.False(t, b.Registry().IsOnline("a"))
}

func TestKick(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	a := newFake("a", "ca")
	b.Connect(a)
	assert.True(t, b.Kick("a", ""))
	assert.True(t, a.closed.Load())
	assert.False(t, b.Registry().IsOnline("a"))
	assert.False(t, b.Kick("a", ""))
}

type sessionHandle struct {
	*fakeHandle
	sid string
}

func (s *sessionHandle) SessionID() string { return s.sid }

func TestKickOnlyMatchingSession(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	h := &sessionHandle{fakeHandle: newFake("a", "ca"), sid: "s1"}
	b.Connect(h)

	assert.False(t, b.Kick("a", "s2"))
	assert.False(t, h.closed.Load())
	assert.True(t, b.Registry().IsOnline("a"))

	assert.True(t, b.Kick("a", "s1"))
	assert.True(t, h.closed.Load())
	assert.False(t, b.Registry().IsOnline("a"))
}

func TestDoubleConnectLeavesOneHandle(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	h1, h2 := newFake("a", "c1"), newFake("a", "c2")

	var wg sync.WaitGroup
	for _, h := range []*fakeHandle{h1, h2} {
		wg.Add(1)
		go func(h *fakeHandle) {
			defer wg.Done()
			b.Connect(h)
		}(h)
	}
	wg.Wait()

	assert.Equal(t, []string{"a"}, b.Registry().OnlineUserIDs())
	live, ok := b.Registry().Lookup("a")
	require.True(t, ok)
	// the loser was closed by the winner's Connect
	assert.NotEqual(t, h1.closed.Load(), h2.closed.Load())
	assert.False(t, live.(*fakeHandle).closed.Load())
}

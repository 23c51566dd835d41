package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesAndReuses(t *testing.T) {
	m := NewManager(30 * time.Minute)

	s1, release := m.Acquire("chat-1")
	s1.ActorID = "ACT-1"
	s1.Flow = FlowRefueling
	release()

	s2, release := m.Acquire("chat-1")
	defer release()
	assert.Same(t, s1, s2)
	assert.Equal(t, FlowRefueling, s2.Flow)
	assert.Equal(t, 1, m.Len())
}

func TestAcquireSerializesPerChat(t *testing.T) {
	m := NewManager(30 * time.Minute)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, release := m.Acquire("chat-1")
			defer release()
			s.Step++ // data race without the per-session lock
		}()
	}
	wg.Wait()

	s, release := m.Acquire("chat-1")
	defer release()
	assert.Equal(t, 50, s.Step)
}

func TestIdleSessionIsReset(t *testing.T) {
	m := NewManager(time.Minute)

	s, release := m.Acquire("chat-1")
	s.ActorID = "ACT-1"
	s.Flow = FlowChecklist
	s.Fields["reading"] = "120"
	s.LastSeen = time.Now().UTC().Add(-2 * time.Minute)
	release()

	s2, release := m.Acquire("chat-1")
	defer release()
	assert.Equal(t, FlowNone, s2.Flow, "expired session starts fresh")
	assert.Empty(t, s2.Fields)
	assert.Equal(t, "ACT-1", s2.ActorID, "identity survives expiry")
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m := NewManager(time.Minute)

	s, release := m.Acquire("stale")
	s.LastSeen = time.Now().UTC().Add(-5 * time.Minute)
	release()
	_, release = m.Acquire("fresh")
	release()

	dropped := m.Sweep(time.Now().UTC())
	require.Equal(t, 1, dropped)
	assert.Equal(t, 1, m.Len())
}

// An Acquire that loses the race with eviction must not proceed on the
// orphaned entry: the session it returns has to be the one the manager maps,
// or two transitions for the same chat id could run concurrently.
func TestAcquireRetriesWhenEntryEvictedUnderfoot(t *testing.T) {
	m := NewManager(30 * time.Minute)

	_, release := m.Acquire("chat-1")
	release()

	v, ok := m.sessions.Load("chat-1")
	require.True(t, ok)
	e1 := v.(*entry)

	// Hold the entry lock, then evict it while a concurrent Acquire is
	// parked on that lock. This is the Sweep interleaving: TryLock, delete,
	// unlock.
	e1.mu.Lock()

	got := make(chan *Session)
	go func() {
		s, rel := m.Acquire("chat-1")
		rel()
		got <- s
	}()

	time.Sleep(50 * time.Millisecond) // let the goroutine park on e1.mu
	m.sessions.Delete("chat-1")
	e1.mu.Unlock()

	var s *Session
	select {
	case s = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after eviction")
	}

	s2, release := m.Acquire("chat-1")
	defer release()
	assert.Same(t, s, s2, "Acquire returned a session the manager no longer maps")
	assert.Equal(t, 1, m.Len())
}

func TestResetKeepsActorClearsData(t *testing.T) {
	s := &Session{ChatID: "c", ActorID: "ACT-1"}
	s.Reset()
	s.Flow = FlowMaintenance
	s.Step = 3
	s.Fields["kind"] = "preventive"
	s.EquipmentID = "EQ-1"

	s.Reset()
	assert.Equal(t, "ACT-1", s.ActorID)
	assert.False(t, s.Active())
	assert.Zero(t, s.Step)
	assert.Empty(t, s.Fields)
	assert.Empty(t, s.EquipmentID)
}

package session

import (
	"context"
	"sync"
	"time"
)

// Manager owns all live sessions. Message handling for one chat id is
// serialized through a per-session mutex: Acquire blocks until any in-flight
// transition for that chat id has finished, so two messages from the same
// user never interleave. Different chat ids proceed independently.
type Manager struct {
	idleTTL  time.Duration
	sessions sync.Map // chat id -> *entry
}

type entry struct {
	mu sync.Mutex
	s  *Session
}

func NewManager(idleTTL time.Duration) *Manager {
	return &Manager{idleTTL: idleTTL}
}

// Acquire returns the session for the chat id with its mutex held, creating
// it on first contact. A session idle past the TTL is silently reset: its
// uncommitted data is gone and the caller sees a fresh Idle session. The
// returned release func must be called when the transition is done.
func (m *Manager) Acquire(chatID string) (*Session, func()) {
	var e *entry
	for {
		v, _ := m.sessions.LoadOrStore(chatID, &entry{})
		e = v.(*entry)
		e.mu.Lock()
		// Sweep may have evicted this entry between LoadOrStore and Lock.
		// Holding the lock of an unmapped entry serializes nothing: a second
		// Acquire would mint a fresh entry with its own mutex, so two
		// transitions for one chat id could run at once. Re-check the
		// mapping under the lock and retry on a stale entry.
		if cur, ok := m.sessions.Load(chatID); ok && cur == v {
			break
		}
		e.mu.Unlock()
	}

	now := time.Now().UTC()
	if e.s == nil || (m.idleTTL > 0 && now.Sub(e.s.LastSeen) > m.idleTTL) {
		s := &Session{ChatID: chatID, CreatedAt: now}
		s.Reset()
		if e.s != nil {
			s.ActorID = e.s.ActorID // identity survives expiry, workflow data does not
		}
		e.s = s
	}
	e.s.LastSeen = now
	return e.s, e.mu.Unlock
}

// Len counts live sessions.
func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep evicts sessions idle past the TTL and returns how many were dropped.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	dropped := 0
	m.sessions.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.mu.TryLock() {
			return true // in use, skip this round
		}
		if e.s != nil && now.Sub(e.s.LastSeen) > m.idleTTL {
			m.sessions.Delete(k)
			dropped++
		}
		e.mu.Unlock()
		return true
	})
	return dropped
}

// Run sweeps on the given interval until the context is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now.UTC())
		}
	}
}

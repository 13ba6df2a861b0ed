package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
)

func TestRegisterInsertsAtFront(t *testing.T) {
	m := NewManager()
	a, _ := newPipeSession(t, 1)
	b, _ := newPipeSession(t, 2)

	assert.Equal(t, 1, m.Register(a))
	assert.Equal(t, 2, m.Register(b))
	assert.Equal(t, []*Session{b, a}, m.Snapshot())

	got, ok := m.Get(1)
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = m.Get(3)
	assert.False(t, ok)
}

func TestUnregisterByIdentity(t *testing.T) {
	m := NewManager()
	a, _ := newPipeSession(t, 1)
	b, _ := newPipeSession(t, 1) // 相同 ID、相同频道，仍是不同会话
	a.ApplySettings(&protocol.Settings{ChannelID: 5})
	b.ApplySettings(&protocol.Settings{ChannelID: 5})
	m.Register(a)
	m.Register(b)

	removed, n := m.Unregister(a)
	assert.True(t, removed)
	assert.Equal(t, 1, n)
	assert.Equal(t, []*Session{b}, m.Snapshot())

	removed, n = m.Unregister(a)
	assert.False(t, removed)
	assert.Equal(t, 1, n)
}

func TestByChannel(t *testing.T) {
	m := NewManager()
	for i, ch := range []protocol.ChannelID{5, 0, 5} {
		s, _ := newPipeSession(t, uint64(i))
		s.ApplySettings(&protocol.Settings{ChannelID: ch})
		m.Register(s)
	}

	assert.Len(t, m.ByChannel(5), 2)
	assert.Empty(t, m.ByChannel(protocol.Unset))
	assert.Empty(t, m.ByChannel(7))
}

func TestRangeStops(t *testing.T) {
	m := NewManager()
	for i := 0; i < 3; i++ {
		s, _ := newPipeSession(t, uint64(i))
		m.Register(s)
	}

	visited := 0
	m.Range(func(*Session) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
	m.Range(nil)
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager()
	const n = 64

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = New(context.Background(), uint64(i), nil, Options{})
		sessions[i].ApplySettings(&protocol.Settings{ChannelID: 1})
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(2)
		go func(s *Session) {
			defer wg.Done()
			m.Register(s)
			removed, _ := m.Unregister(s)
			assert.True(t, removed)
		}(s)
		go func() {
			defer wg.Done()
			_ = m.ByChannel(1)
			_ = m.Count()
		}()
	}
	wg.Wait()

	require.Zero(t, m.Count())
}

package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		clients      []*mockConn
		wantReceived map[string]int
		wantCount    int
	}{
		{
			name: "every client receives, sender included",
			clients: []*mockConn{
				{id: "controller"},
				{id: "display1"},
				{id: "display2"},
			},
			wantReceived: map[string]int{"controller": 1, "display1": 1, "display2": 1},
			wantCount:    3,
		},
		{
			name: "failing client does not block the others",
			clients: []*mockConn{
				{id: "broken", sendErr: errors.New("send buffer full")},
				{id: "display1"},
			},
			wantReceived: map[string]int{"broken": 0, "display1": 1},
			wantCount:    1,
		},
		{
			name:         "no clients",
			clients:      []*mockConn{},
			wantReceived: map[string]int{},
			wantCount:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub()
			for _, c := range tt.clients {
				h.Register(c)
			}

			h.Broadcast([]byte("test message"))

			for _, c := range tt.clients {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.ID()], "client %s", c.ID())
				assert.Equal(t, c.sendErr != nil, c.isClosed(), "client %s closed", c.ID())
			}
			assert.Equal(t, tt.wantCount, h.Count())
		})
	}
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub()
	target := &mockConn{id: "target"}
	other := &mockConn{id: "other"}
	h.Register(target)
	h.Register(other)

	h.SendTo(target, []byte("snapshot"))

	require.Len(t, target.getReceived(), 1)
	assert.Equal(t, "snapshot", string(target.getReceived()[0]))
	assert.Empty(t, other.getReceived())
}

func TestHub_SendToFailure(t *testing.T) {
	h := NewHub()
	broken := &mockConn{id: "broken", sendErr: errors.New("closed")}
	h.Register(broken)

	h.SendTo(broken, []byte("snapshot"))

	assert.True(t, broken.isClosed())
	assert.Equal(t, 0, h.Count())
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	conn := &mockConn{id: "c1"}

	h.Register(conn)
	require.Equal(t, 1, h.Count())

	assert.True(t, h.Unregister(conn))
	assert.False(t, h.Unregister(conn))
	assert.Equal(t, 0, h.Count())
}

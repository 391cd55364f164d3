package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	subjects  []string
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.published = append(p.published, data)
	return nil
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "workshop.events.open", eventSubject("workshop", EventOpen))
	assert.Equal(t, "workshop.events.pause", eventSubject("workshop", EventCountdownPending))
	assert.Equal(t, "bar.commands", commandSubject("bar"))
}

func TestNATSClient_Send(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		publishErr   error
		wantErr      error
		wantSubjects []string
	}{
		{
			name:         "reply subject",
			reply:        "_INBOX.abc",
			wantSubjects: []string{"_INBOX.abc"},
		},
		{
			name:  "fire and forget",
			reply: "",
		},
		{
			name:       "publish failure",
			reply:      "_INBOX.abc",
			publishErr: errors.New("nats: connection closed"),
			wantErr:    errors.New("nats: connection closed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{err: tt.publishErr}
			c := newNATSClient(pub, tt.reply)

			err := c.Send([]byte(`{"event":"status"}`))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr.Error(), err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSubjects, pub.subjects)
			assert.NotEqual(t, c.ID(), newNATSClient(pub, tt.reply).ID())
		})
	}
}

func TestNATSClient_StatusReply(t *testing.T) {
	r := newTestRelay(t, newFakeSceneSource())
	display, _ := r.connect(t, "display")

	pub := &fakePublisher{}
	c := newNATSClient(pub, "_INBOX.status")

	r.Submit(c, []byte(`{"event":"setShutter","data":{"opened":true}}`))
	expectEvent(t, display, EventOpen)

	r.Submit(c, []byte(`{"event":"status"}`))
	// the status reply is sent on the loop before the next message is handled
	r.submit(display, `{"event":"status"}`)
	decodeStatus(t, nextEvent(t, display))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.published, 1)
	assert.Equal(t, []string{"_INBOX.status"}, pub.subjects)
	assert.Contains(t, string(pub.published[0]), `"isShutterOpened":true`)
}

func TestNATSClient_NoReplySubjectNotDropped(t *testing.T) {
	h := NewHub()
	pub := &fakePublisher{}
	c := newNATSClient(pub, "")
	h.Register(c)

	h.SendTo(c, []byte(`{"event":"status"}`))

	assert.Equal(t, 1, h.Count(), "a reply-less command is not a failed send")
	assert.Empty(t, pub.subjects)
}

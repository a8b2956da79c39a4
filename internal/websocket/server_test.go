package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/flightseg/pkg/logger"
)

func TestBroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewServer(logger.NewNop())
	go s.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Broadcast(&Message{
		Type: MessageTypeVerificationCompleted,
		Data: map[string]any{"platform": "HALO", "flight_id": "HALO-20240816a", "warnings": 2},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, MessageTypeVerificationCompleted, got.Type)
	assert.Equal(t, "HALO-20240816a", got.Data["flight_id"])
	assert.Equal(t, 2.0, got.Data["warnings"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterShutdownDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(logger.NewNop())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for range 32 {
		s.Broadcast(&Message{Type: MessageTypeCircleFitCompleted})
	}
}

func TestClientSubscription(t *testing.T) {
	c := &Client{send: make(chan *Message, 1)}
	halo := &Message{Type: MessageTypeVerificationCompleted, Data: map[string]any{"platform": "HALO"}}
	p3 := &Message{Type: MessageTypeVerificationCompleted, Data: map[string]any{"platform": "P3"}}
	untagged := &Message{Type: MessageTypeCircleFitCompleted, Data: map[string]any{}}

	assert.True(t, c.wants(halo))
	assert.True(t, c.wants(p3))

	c.Subscribe([]string{"HALO"})
	assert.True(t, c.wants(halo))
	assert.False(t, c.wants(p3))
	assert.True(t, c.wants(untagged))

	c.Subscribe(nil)
	assert.True(t, c.wants(p3))
}

func TestSendMessageDropsWhenFullOrClosed(t *testing.T) {
	c := &Client{send: make(chan *Message, 1)}
	msg := &Message{Type: MessageTypeCircleFitCompleted}

	assert.True(t, c.SendMessage(msg))
	assert.False(t, c.SendMessage(msg), "channel full")

	c.markClosed()
	assert.False(t, c.SendMessage(msg))
	c.markClosed()
}

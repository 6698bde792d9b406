package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestSession builds a session without a live connection or write pump.
func newTestSession(userID int64) *Session {
	return &Session{
		UserID:   userID,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
}

func mustPacket(t *testing.T, typ string, seq uint64, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(Packet{Seq: seq, Type: typ, Payload: raw})
	require.NoError(t, err)
	return data
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession(1)

	var got string
	r.On("echo", func(ctx context.Context, s *Session, payload json.RawMessage) error {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(payload, &req))
		got = req.Text
		return nil
	})

	r.Dispatch(s, mustPacket(t, "echo", 1, map[string]string{"text": "hello"}))
	assert.Equal(t, "hello", got)
}

func TestDispatch_SeqAntiReplay(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession(1)

	var calls int
	r.On("op", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		calls++
		return nil
	})

	r.Dispatch(s, mustPacket(t, "op", 5, nil))
	r.Dispatch(s, mustPacket(t, "op", 5, nil)) // replay
	r.Dispatch(s, mustPacket(t, "op", 3, nil)) // out of order
	r.Dispatch(s, mustPacket(t, "op", 6, nil))
	assert.Equal(t, 2, calls)

	// Seq 0 opts out of tracking.
	r.Dispatch(s, mustPacket(t, "op", 0, nil))
	r.Dispatch(s, mustPacket(t, "op", 0, nil))
	assert.Equal(t, 4, calls)
}

func TestDispatch_UnknownTypeIgnored(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession(1)
	r.Dispatch(s, mustPacket(t, "nope", 1, nil)) // must not panic
}

func TestDispatch_MalformedIgnored(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession(1)
	r.Dispatch(s, []byte("{not json")) // must not panic
}

func TestDispatch_AssignsTraceID(t *testing.T) {
	r := NewRouter(zap.NewNop())
	s := newTestSession(1)

	var traceID string
	r.On("op", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return nil
	})
	r.Dispatch(s, mustPacket(t, "op", 1, nil))
	assert.Len(t, traceID, 36)
	assert.Equal(t, s.TraceID, traceID)
}

func TestHub_RegisterAndDisplace(t *testing.T) {
	h := NewHub(zap.NewNop())

	s1 := newTestSession(7)
	h.Register(s1)
	assert.True(t, h.IsOnline(7))
	assert.Equal(t, 1, h.Count())

	// A second login for the same user displaces the first session.
	s2 := newTestSession(7)
	h.Register(s2)
	assert.True(t, s1.IsClosed())
	assert.Same(t, s2, h.Get(7))
	assert.Equal(t, 1, h.Count())

	// Unregistering the displaced session must not evict the new one.
	h.Unregister(s1)
	assert.Same(t, s2, h.Get(7))

	h.Unregister(s2)
	assert.False(t, h.IsOnline(7))
	assert.Zero(t, h.Count())
}

func TestHub_CloseUser(t *testing.T) {
	h := NewHub(zap.NewNop())
	s := newTestSession(3)
	h.Register(s)

	h.CloseUser(3)
	assert.True(t, s.IsClosed())

	h.CloseUser(99) // unknown user: no panic
}

func TestSession_SendAfterCloseDropped(t *testing.T) {
	s := newTestSession(1)
	s.Close()
	s.Send(&Packet{Type: "pong"})
	assert.Empty(t, s.SendChan)
}

func TestSession_SendQueues(t *testing.T) {
	s := newTestSession(1)
	s.Send(&Packet{Type: "pong"})
	require.Len(t, s.SendChan, 1)

	var pkt Packet
	require.NoError(t, json.Unmarshal(<-s.SendChan, &pkt))
	assert.Equal(t, "pong", pkt.Type)
}

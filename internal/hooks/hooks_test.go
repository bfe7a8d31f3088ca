package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventGatewayStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventGatewayStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventMessageReceived, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventMessageReceived, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventMessageReceived, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventMessageReceived, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventMessageReceived, map[string]any{
		"chatId": "5511@s.whatsapp.net",
		"sender": "Maria",
	})

	assert.Equal(t, "5511@s.whatsapp.net", gotData["chatId"])
	assert.Equal(t, "Maria", gotData["sender"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventGatewayStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventGatewayStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	// Should not panic; second handler should still run
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	// Should not panic
	m.Emit(context.Background(), EventGatewayStop, nil)
}

func TestManager_EmitAsync(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	release := make(chan struct{})
	for _, name := range []string{"async1", "async2"} {
		m.On(EventAutoReplySent, name, func(_ context.Context, _ Payload) error {
			<-release
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventAutoReplySent, nil)
	assert.Equal(t, int32(0), count.Load(), "EmitAsync does not wait")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_WaitTimesOut(t *testing.T) {
	m := testManager()
	block := make(chan struct{})
	defer close(block)
	m.On(EventGatewayStop, "stuck", func(_ context.Context, _ Payload) error {
		<-block
		return nil
	})

	m.EmitAsync(context.Background(), EventGatewayStop, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_PayloadTimestamp(t *testing.T) {
	m := testManager()
	var got Payload
	m.On(EventSessionStatus, "ts", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	before := time.Now().UnixMilli()
	m.Emit(context.Background(), EventSessionStatus, map[string]any{"status": "ready"})
	assert.GreaterOrEqual(t, got.Timestamp, before)
	assert.Equal(t, "ready", got.Data["status"])
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventGatewayStart))
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventGatewayStart)
	assert.Contains(t, AllEvents, EventMessageReceived)
}

func TestManager_Emit_RecoversPanic(t *testing.T) {
	m := testManager()

	var after bool
	m.On(EventSessionStatus, "panicky", func(_ context.Context, _ Payload) error {
		panic("boom")
	})
	m.On(EventSessionStatus, "after", func(_ context.Context, _ Payload) error {
		after = true
		return nil
	})

	assert.NotPanics(t, func() {
		m.Emit(context.Background(), EventSessionStatus, nil)
	})
	assert.True(t, after)
}

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := CommandHandler(config.HookEntry{Command: "cat > " + out})

	err := h(context.Background(), Payload{Event: EventConfigUpdated, Data: map[string]any{"status": "paused"}})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"config_updated","data":{"status":"paused"}}`, string(data))
}

func TestCommandHandler_EventEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "event.txt")
	h := CommandHandler(config.HookEntry{Command: "printf %s \"$WADESK_HOOK_EVENT\" > " + out})

	require.NoError(t, h(context.Background(), Payload{Event: EventGatewayStart}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, EventGatewayStart, string(data))
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo nope >&2; exit 3"})
	err := h(context.Background(), Payload{Event: EventGatewayStop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})
	start := time.Now()
	err := h(context.Background(), Payload{Event: EventGatewayStop})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRegisterCommands(t *testing.T) {
	m := testManager()
	n := m.RegisterCommands(config.HooksConfig{
		MessageReceived: []config.HookEntry{{Command: "true"}, {Command: "  "}},
		GatewayStart:    []config.HookEntry{{Command: "true"}},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.Count(EventMessageReceived))
	assert.Equal(t, 1, m.Count(EventGatewayStart))
	assert.Equal(t, 0, m.Count(EventMessageSent))
}

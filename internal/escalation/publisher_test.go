package escalation

import (
	"context"
	"encoding/json"
	"testing"

	"eldercare-rules/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeTransport struct {
	messages []published
	err      error
}

func (f *fakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic, qos, retained, payload})
	return nil
}

func TestPublisher_Start(t *testing.T) {
	transport := &fakeTransport{}
	p := NewPublisher(transport, "iot/eldercare", 0, zap.NewNop())

	require.NoError(t, p.Start(context.Background(), "kitchen", 150))
	require.Len(t, transport.messages, 1)

	msg := transport.messages[0]
	assert.Equal(t, "iot/eldercare/kitchen/cmd/prealert", msg.topic)
	assert.Equal(t, byte(0), msg.qos)
	assert.False(t, msg.retained)
	assert.JSONEq(t, `{"action":"start","reason":"INACTIVITY","ttl_sec":150}`, string(msg.payload))
}

func TestPublisher_Stop(t *testing.T) {
	transport := &fakeTransport{}
	p := NewPublisher(transport, "iot/eldercare", 0, zap.NewNop())

	require.NoError(t, p.Stop(context.Background(), "kitchen", models.ReasonManual))
	require.Len(t, transport.messages, 1)

	var cmd map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.messages[0].payload, &cmd))
	assert.Equal(t, "stop", cmd["action"])
	assert.Equal(t, "MANUAL", cmd["reason"])
	_, hasTTL := cmd["ttl_sec"]
	assert.False(t, hasTTL)
}

func TestPublisher_DisconnectedDropsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	transport := &fakeTransport{err: ErrNotConnected}
	p := NewPublisher(transport, "iot/eldercare", 0, zap.New(core))

	err := p.Start(context.Background(), "kitchen", 60)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, transport.messages)
	require.Equal(t, 1, logs.FilterMessage("Dropped escalation command").Len())
}

func TestPublisher_CancelledContext(t *testing.T) {
	transport := &fakeTransport{}
	p := NewPublisher(transport, "iot/eldercare", 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Stop(ctx, "kitchen", models.ReasonInactivity), context.Canceled)
	assert.Empty(t, transport.messages)
}

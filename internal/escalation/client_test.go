package escalation

import (
	"testing"
	"time"

	"eldercare-rules/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient_RequiresBroker(t *testing.T) {
	_, err := NewClient(&config.MQTTConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_UnreachableBrokerFailsFast(t *testing.T) {
	cfg := &config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "eldercare-rules-test",
		ConnectTimeout: 50 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}

	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Disconnect()

	assert.False(t, c.IsConnected())

	// Every publish during the outage returns at once instead of waiting
	// out the publish timeout.
	start := time.Now()
	for i := 0; i < 3; i++ {
		err := c.Publish("iot/eldercare/kitchen/cmd/prealert", 0, false, []byte(`{}`))
		assert.ErrorIs(t, err, ErrNotConnected)
	}
	assert.Less(t, time.Since(start), time.Second)
}

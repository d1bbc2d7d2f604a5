//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/services/publisher"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getAMQPConfig(t *testing.T) models.AMQPConfig {
	t.Helper()

	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}

	return models.AMQPConfig{URL: url, Exchange: "gowol.integration"}
}

func TestPublisher_RoundTrip_Integration(t *testing.T) {
	cfg := getAMQPConfig(t)

	pub, err := publisher.New(testLogger(), cfg)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	// Bind a private queue to observe what the publisher sends.
	conn, err := amqp.Dial(cfg.URL)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, publisher.RoutingKey("#"), cfg.Exchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	err = pub.Notify(context.Background(), models.StatusEvent{
		Phase:  "confirmed_awake",
		Status: "Reachable",
		Target: "192.168.1.50",
		Cycle:  1,
		Time:   time.Now(),
	})
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		assert.Equal(t, "wol.status.confirmed_awake", d.RoutingKey)
		var event publisher.CloudEvent
		require.NoError(t, json.Unmarshal(d.Body, &event))
		assert.Equal(t, publisher.EventType, event.Type)
		assert.Equal(t, "192.168.1.50", event.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("status event not delivered")
	}
}

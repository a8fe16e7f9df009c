package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

func TestNewWithoutServerIsNoop(t *testing.T) {
	n, err := New(config.NotifyConfig{Subject: "scriptorium.runs"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, n)
	assert.NoError(t, n.Notify(t.Context(), RunReport{}))
	n.Close()
}

func TestNewUnreachableServer(t *testing.T) {
	_, err := New(config.NotifyConfig{NATSURL: "nats://127.0.0.1:1", Subject: "s"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTransport))
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := Encode(RunReport{
		RunID:    "r1",
		Type:     "qc",
		Relay:    "wss://relay.test",
		Status:   "succeeded",
		Counters: map[string]int{"missing": 0},
		Started:  at,
		Finished: at.Add(time.Second),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "r1", got["run_id"])
	assert.Equal(t, "qc", got["type"])
	assert.Equal(t, "2024-05-01T12:00:01Z", got["finished"])
	assert.NotContains(t, got, "error")
	assert.NotContains(t, got, "fingerprint")
}

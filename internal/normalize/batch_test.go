package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatch(t *testing.T) {
	body := []byte(`{"scanner":1,"events":[{"a":"AABBCCDDEE01","r":-60,"ts":10},"junk",{"a":"AABBCCDDEE02","r":-70,"ts":11}]}`)

	batch, err := DecodeBatch(body, "fallback")
	require.NoError(t, err)

	assert.Equal(t, "1", batch.ScannerID)
	assert.Len(t, batch.Events, 2, "non-object events are dropped")
	assert.False(t, batch.ReceivedAt.IsZero())
}

func TestDecodeBatchCamelCaseScanner(t *testing.T) {
	batch, err := DecodeBatch([]byte(`{"scannerId":"east","events":[]}`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "east", batch.ScannerID)
	assert.Empty(t, batch.Events)
}

func TestDecodeBatchSingleEvent(t *testing.T) {
	batch, err := DecodeBatch([]byte(`{"mac":"AA:BB:CC:DD:EE:01","rssi":-50}`), "topic-scanner")
	require.NoError(t, err)
	assert.Equal(t, "topic-scanner", batch.ScannerID)
	require.Len(t, batch.Events, 1)
}

func TestDecodeBatchInvalid(t *testing.T) {
	_, err := DecodeBatch([]byte(`not json`), "s")
	assert.Error(t, err)

	_, err = DecodeBatch([]byte(`null`), "s")
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestNormalizeBatch(t *testing.T) {
	received := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	batch, err := DecodeBatch([]byte(`{"scanner_id":"2","events":[{"a":"AABBCCDDEE01","r":-60,"ts":1700000000000001},{"r":-70}]}`), "")
	require.NoError(t, err)
	batch.ReceivedAt = received

	events, rejected := NormalizeBatch(batch)

	assert.Equal(t, 1, rejected)
	require.Len(t, events, 1)
	assert.Equal(t, "2", events[0].Scanner)
	assert.Equal(t, uint64(1700000000000001), events[0].TsEpochUs, "large timestamps keep full precision")
	assert.Equal(t, received, events[0].ReceivedAt)
}

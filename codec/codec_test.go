package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/tiered-cache/types"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode("k", quote{Symbol: "AAPL", Price: 187.5})
	require.NoError(t, err)

	got, err := Decode[quote]("k", data)
	require.NoError(t, err)
	assert.Equal(t, quote{Symbol: "AAPL", Price: 187.5}, got)

	_, err = Encode("k", make(chan int))
	assert.ErrorIs(t, err, types.ErrSerialization)

	_, err = Decode[quote]("k", []byte("{"))
	assert.ErrorIs(t, err, types.ErrSerialization)
}

func TestConvert(t *testing.T) {
	q := quote{Symbol: "MSFT", Price: 410}

	same, err := Convert[quote]("k", q)
	require.NoError(t, err)
	assert.Equal(t, q, same)

	fromRaw, err := Convert[quote]("k", json.RawMessage(`{"symbol":"MSFT","price":410}`))
	require.NoError(t, err)
	assert.Equal(t, q, fromRaw)

	fromMap, err := Convert[quote]("k", map[string]any{"symbol": "MSFT", "price": 410})
	require.NoError(t, err)
	assert.Equal(t, q, fromMap)
}

func TestSize(t *testing.T) {
	assert.EqualValues(t, len("key")+len(`"value"`), EstimateSize("key", "value"))
	assert.EqualValues(t, 5, Size("ab", []byte("123")))

	// Unencodable values still get a positive estimate.
	n := EstimateSize("fn", map[string]any{"cb": func() {}, "n": 1})
	assert.Greater(t, n, int64(2))
}

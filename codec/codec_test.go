package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	type payload struct {
		ID     string    `json:"id"`
		Vector []float32 `json:"vector"`
	}
	in := payload{ID: "song", Vector: []float32{0.25, -1, 3}}

	jsonBytes, err := JSON{}.Marshal(in)
	require.NoError(t, err)

	// go-json must decode what encoding/json wrote, and vice versa, since
	// snapshots may be written and read by different codec defaults.
	var out payload
	require.NoError(t, GoJSON{}.Unmarshal(jsonBytes, &out))
	assert.Equal(t, in, out)

	goJSONBytes, err := GoJSON{}.Marshal(in)
	require.NoError(t, err)

	out = payload{}
	require.NoError(t, JSON{}.Unmarshal(goJSONBytes, &out))
	assert.Equal(t, in, out)
}

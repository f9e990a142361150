package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripKeys(t *testing.T) {
	raw := `{"id_string":"1","updated":5,"content":[{"type":"video","embed_iframe":{"url":"x"},"media":{"url":"m"}}],"trail":[{"blog":{"name":"b","updated":9}}],"a.b":{"updated":1}}`

	out, err := StripKeys([]byte(raw), VolatileKeys...)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id_string":"1","content":[{"type":"video","media":{"url":"m"}}],"trail":[{"blog":{"name":"b"}}],"a.b":{}}`,
		string(out))
}

func TestStripKeysKeepsOrder(t *testing.T) {
	out, err := StripKeys([]byte(`{"z":1,"updated":2,"a":3}`), "updated")
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":3}`, string(out))
}

func TestSameJSON(t *testing.T) {
	assert.True(t, SameJSON([]byte(`{"a":1,"b":[1,2]}`), []byte("{\n  \"b\": [1, 2],\n  \"a\": 1\n}\n")))
	assert.False(t, SameJSON([]byte(`{"a":1}`), []byte(`{"a":2}`)))
	assert.False(t, SameJSON([]byte(`{"a":[1,2]}`), []byte(`{"a":[2,1]}`)))
	assert.False(t, SameJSON([]byte(`{broken`), []byte(`{broken`)))
}

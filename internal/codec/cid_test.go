package codec

import (
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumJSONEquivalentDocumentsShareAddress(t *testing.T) {
	a, _, err := SumJSON([]byte(`{"b": 2, "a": 1}`))
	require.NoError(t, err)
	b, _, err := SumJSON([]byte("{\"a\":1,\n \"b\": 2}"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSumJSONDistinctDocumentsDiffer(t *testing.T) {
	a, _, err := SumJSON([]byte(`{"a": 1}`))
	require.NoError(t, err)
	b, _, err := SumJSON([]byte(`{"a": 2}`))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSumJSONAddressesCanonicalBytes(t *testing.T) {
	c, canonical, err := SumJSON([]byte(`{"b": 2, "a": 1}`))
	require.NoError(t, err)

	assert.Equal(t, `{"a":1,"b":2}`, string(canonical))

	// The returned CID must address the canonical bytes, not the input.
	sum, err := mh.Sum(canonical, mh.SHA2_256, -1)
	require.NoError(t, err)
	assert.Equal(t, cid.NewCidV1(CodecDagJSON, sum), c)
}

func TestSumJSONPrefix(t *testing.T) {
	c, _, err := SumJSON([]byte(`{"a": 1}`))
	require.NoError(t, err)

	prefix := c.Prefix()
	assert.Equal(t, uint64(1), prefix.Version)
	assert.Equal(t, uint64(CodecDagJSON), prefix.Codec)
	assert.Equal(t, uint64(mh.SHA2_256), prefix.MhType)
}

func TestSumJSONInvalidInput(t *testing.T) {
	_, _, err := SumJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestSumRawPrefix(t *testing.T) {
	c, err := SumRaw([]byte("arbitrary bytes"))
	require.NoError(t, err)

	prefix := c.Prefix()
	assert.Equal(t, uint64(1), prefix.Version)
	assert.Equal(t, uint64(CodecRaw), prefix.Codec)
	assert.Equal(t, uint64(mh.SHA2_256), prefix.MhType)
}

func TestSumRawDeterministic(t *testing.T) {
	a, err := SumRaw([]byte("same"))
	require.NoError(t, err)
	b, err := SumRaw([]byte("same"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestVerify(t *testing.T) {
	data := []byte(`{"a":1}`)
	c, canonical, err := SumJSON(data)
	require.NoError(t, err)

	ok, err := Verify(c, canonical)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(c, []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

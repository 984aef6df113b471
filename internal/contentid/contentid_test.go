package contentid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromDataInline(t *testing.T) {
	id := NewFromData([]byte("apple"))
	assert.True(t, id.IsInline())
	assert.Equal(t, uint64(5), id.DataSize())
	data, ok := id.InlineData()
	require.True(t, ok)
	assert.Equal(t, "apple", string(data))
	assert.True(t, id.Matches([]byte("apple")))
	assert.False(t, id.Matches([]byte("pear")))
}

func TestNewFromDataHashed(t *testing.T) {
	big := strings.Repeat("x", InlineThreshold+1)
	id := NewFromData([]byte(big))
	assert.False(t, id.IsInline())
	assert.Equal(t, uint64(len(big)), id.DataSize())
	assert.True(t, id.Matches([]byte(big)))
	assert.False(t, id.Matches([]byte(big+"y")))
}

func TestParseFormatRoundTrip(t *testing.T) {
	ids := []ID{
		NewFromData([]byte("")),
		NewFromData([]byte("apple")),
		NewFromData([]byte(strings.Repeat("z", 200))),
	}
	for _, id := range ids {
		s := id.String()
		parsed, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseInvalidIdentifier(t *testing.T) {
	_, err := Parse("garbage")
	require.Error(t, err)
}

func TestParseInvalidHashDigest(t *testing.T) {
	_, err := Parse("H:5:zz")
	require.Error(t, err)
}

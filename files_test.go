package main

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := randomCode(roomCodeLen, roomCodeChars)

		require.Len(t, code, roomCodeLen)
		for _, r := range code {
			assert.Contains(t, roomCodeChars, string(r))
		}
	}
}

func TestRandomHex(t *testing.T) {
	id := randomHex(8)

	assert.Len(t, id, 16)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)

	assert.NotEqual(t, randomHex(8), randomHex(8))
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.0 kB", humanReadableSize(1000))
	assert.Equal(t, "1.5 MB", humanReadableSize(1500000))
}

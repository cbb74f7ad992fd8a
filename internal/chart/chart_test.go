package chart

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPiePNG(t *testing.T) {
	encoded, err := PiePNG("Grade Distribution", []string{"A", "B", "C"}, []float64{12, 20, 8})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.Greater(t, len(raw), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])
}

func TestPiePNGRejectsMismatch(t *testing.T) {
	_, err := PiePNG("bad", []string{"A"}, []float64{1, 2})
	assert.Error(t, err)

	_, err = PiePNG("empty", nil, nil)
	assert.Error(t, err)
}

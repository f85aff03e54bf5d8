package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLimits_ConfiguredValuesCarryThrough(t *testing.T) {
	rpm, tpm, rpd := normalizeLimits(100, 20_000, 2_000)
	assert.Equal(t, int64(100), rpm)
	assert.Equal(t, int64(20_000), tpm)
	assert.Equal(t, int64(2_000), rpd)
}

func TestNormalizeLimits_NonPositiveFallsBackToDefaults(t *testing.T) {
	rpm, tpm, rpd := normalizeLimits(0, -1, 0)
	assert.Equal(t, int64(DefaultRPM), rpm)
	assert.Equal(t, int64(DefaultTPM), tpm)
	assert.Equal(t, int64(DefaultRPD), rpd)
}

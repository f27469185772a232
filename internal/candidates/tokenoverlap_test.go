package candidates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenOverlap_Identical(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap("escasez de agua", "escasez de agua"))
}

func TestTokenOverlap_PartialOverlap(t *testing.T) {
	sim := tokenOverlap("escasez de agua", "falta de agua")
	// shared tokens: "de", "agua" out of union {escasez, de, agua, falta}
	assert.InDelta(t, 0.5, sim, 1e-9)
}

func TestTokenOverlap_NoOverlap(t *testing.T) {
	assert.Equal(t, 0.0, tokenOverlap("escasez de agua", "contaminacion del aire"))
}

func TestTokenOverlap_EmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, tokenOverlap("", "agua"))
	assert.Equal(t, 0.0, tokenOverlap("agua", ""))
}

func TestTokenOverlap_CaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap("Escasez De Agua", "escasez de agua"))
}

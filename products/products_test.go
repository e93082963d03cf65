package products

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstore/checkout/types"
)

func TestAmazonValidateIdentifier(t *testing.T) {
	src := AmazonSource{}

	assert.True(t, src.ValidateIdentifier("B01DFKC2SO"))
	assert.True(t, src.ValidateIdentifier("0123456789"))

	assert.False(t, src.ValidateIdentifier("b01dfkc2so"), "lowercase is not a valid code")
	assert.False(t, src.ValidateIdentifier("B01DFKC2S"), "nine characters")
	assert.False(t, src.ValidateIdentifier("B01DFKC2SOX"), "eleven characters")
	assert.False(t, src.ValidateIdentifier("B01DFK-2SO"), "punctuation")
	assert.False(t, src.ValidateIdentifier(""))
}

func TestAmazonExtractIdentifier(t *testing.T) {
	src := AmazonSource{}

	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://example.com/dp/B01DFKC2SO", "B01DFKC2SO", true},
		{"https://www.amazon.com/Some-Product-Name/dp/B0CDEF1234", "B0CDEF1234", true},
		{"https://www.amazon.com/dp/B01DFKC2SO?th=1&psc=1", "B01DFKC2SO", true},
		{"https://www.amazon.com/dp/B01DFKC2SO/", "B01DFKC2SO", true},
		{"https://www.amazon.com/Some-Product/dp/B0CDEF1234/ref=sr_1_1", "B0CDEF1234", true},
		{"https://example.com/no-code-here", "", false},
		{"https://example.com/", "", false},
		{"not a url at all", "", false},
	}

	for _, tt := range tests {
		got, ok := src.ExtractIdentifier(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestAmazonLocatorIdempotent(t *testing.T) {
	src := AmazonSource{}

	fromID, err := src.Locator("B01DFKC2SO")
	require.NoError(t, err)

	fromURL, err := src.Locator("https://example.com/dp/B01DFKC2SO")
	require.NoError(t, err)

	assert.Equal(t, "amazon:B01DFKC2SO", fromID)
	assert.Equal(t, fromID, fromURL)
}

func TestAmazonLocatorRejectsGarbage(t *testing.T) {
	src := AmazonSource{}

	_, err := src.Locator("definitely-not-a-product")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationFailed))
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	_, ok := r.Lookup("amazon")
	assert.True(t, ok)

	locator, err := r.Locator("amazon", "B01DFKC2SO")
	require.NoError(t, err)
	assert.Equal(t, "amazon:B01DFKC2SO", locator)

	_, err = r.Locator("ebay", "B01DFKC2SO")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationFailed))
}

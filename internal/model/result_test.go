package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationKey(t *testing.T) {
	// Formatted and bare CPFs key identically.
	assert.Equal(t, "v8:11111111111", CorrelationKey(ProviderV8, "111.111.111-11"))
	assert.Equal(t, "v8:11111111111", CorrelationKey(ProviderV8, "11111111111"))

	// The same document under different providers never collides.
	assert.NotEqual(t,
		CorrelationKey(ProviderV8, "11111111111"),
		CorrelationKey(ProviderFacta, "11111111111"))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "11111111111", DigitsOnly("111.111.111-11"))
	assert.Equal(t, "", DigitsOnly("abc-"))
	assert.Equal(t, "123", DigitsOnly(" 1 2 3 "))
}

package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromLanguageCode(t *testing.T) {
	tests := map[string]Lang{
		"":      RU,
		"ru":    RU,
		"ru-RU": RU,
		"uk":    RU,
		"en-GB": EN,
		"de":    EN,
	}
	for code, want := range tests {
		assert.Equal(t, want, FromLanguageCode(code), code)
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, EN, Parse(" EN "))
	assert.Equal(t, RU, Parse("fr"))
	assert.True(t, Valid("ru"))
	assert.False(t, Valid("fr"))
}

func TestT(t *testing.T) {
	assert.Equal(t, "привет", T(RU, "привет", "hi"))
	assert.Equal(t, "hi", T(EN, "привет", "hi"))
}

package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := GetLeadID(ctx)
	assert.False(t, ok)
	mt, ok := GetMessageType(ctx)
	assert.False(t, ok)
	assert.Equal(t, MessageTypeUnknown, mt)

	ctx = WithLeadID(ctx, 42)
	ctx = WithLang(ctx, "en")
	ctx = WithMessageType(ctx, MessageTypeText)
	ctx = WithCallbackData(ctx, "lang_ru")

	id, ok := GetLeadID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	lang, ok := GetLang(ctx)
	assert.True(t, ok)
	assert.Equal(t, "en", lang)
	assert.True(t, IsTextMessage(ctx))
	data, _ := GetCallbackData(ctx)
	assert.Equal(t, "lang_ru", data)
}

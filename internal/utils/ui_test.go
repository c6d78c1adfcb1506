package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInlineKeyboard(t *testing.T) {
	kb := BuildInlineKeyboard([]Button{
		{Text: "a", CallbackData: "cb_a"},
		{Text: "b", CallbackData: "cb_b"},
		{Text: "c", URL: "https://example.com", CallbackData: "ignored"},
	}, 2)

	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "cb_b", kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "https://example.com", kb.InlineKeyboard[1][0].URL)
	assert.Empty(t, kb.InlineKeyboard[1][0].CallbackData)
}

func TestBuildInlineKeyboard_DefaultWidth(t *testing.T) {
	kb := BuildInlineKeyboard(make([]Button, 4), 0)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 3)
	assert.Len(t, kb.InlineKeyboard[1], 1)
}

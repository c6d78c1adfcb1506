package contextkeys

import "context"

type messageTypeKey struct{}
type leadIDKey struct{}
type langKey struct{}
type callbackDataKey struct{}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "clickButton"
	// MessageTypeMention is a group message that addresses the bot.
	MessageTypeMention MessageType = "mention"
	MessageTypeMedia   MessageType = "media"
	MessageTypeUnknown MessageType = "unknown"
)

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v, ok := ctx.Value(messageTypeKey{}).(MessageType)
	if !ok {
		return MessageTypeUnknown, false
	}
	return v, true
}

func IsTextMessage(ctx context.Context) bool {
	msgType, ok := GetMessageType(ctx)
	return ok && msgType == MessageTypeText
}

func WithLeadID(ctx context.Context, leadID int64) context.Context {
	return context.WithValue(ctx, leadIDKey{}, leadID)
}

func GetLeadID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(leadIDKey{}).(int64)
	return v, ok && v != 0
}

func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func GetLang(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(langKey{}).(string)
	return v, ok && v != ""
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(callbackDataKey{}).(string)
	return v, ok
}

package domain

import "fmt"

// MediaVariant selects how captured frames travel with a chat request.
// A deployment uses exactly one.
type MediaVariant string

const (
	// VariantImages sends frames as a JSON array of JPEG data URLs.
	VariantImages MediaVariant = "images"
	// VariantVideo sends frames as one motion-JPEG blob in a multipart form.
	VariantVideo MediaVariant = "video"
)

func ParseMediaVariant(s string) (MediaVariant, error) {
	switch MediaVariant(s) {
	case VariantImages, VariantVideo:
		return MediaVariant(s), nil
	case "":
		return VariantImages, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

const ChatTypeChat = "chat"

// Frame is one JPEG-encoded still sampled from the local camera.
type Frame []byte

// ChatRequest is one utterance bound for the chat endpoint.
type ChatRequest struct {
	Text      string
	Type      string
	Interrupt bool
	SessionID SessionID
	Frames    []Frame
}

// NewChatRequest copies frames so the caller may reuse its buffer.
func NewChatRequest(text string, sid SessionID, frames []Frame) ChatRequest {
	var own []Frame
	if len(frames) > 0 {
		own = make([]Frame, len(frames))
		copy(own, frames)
	}
	return ChatRequest{
		Text:      text,
		Type:      ChatTypeChat,
		Interrupt: true,
		SessionID: sid,
		Frames:    own,
	}
}

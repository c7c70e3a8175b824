package core

import (
	"context"

	"github.com/dkeye/AvatarCall/internal/domain"
)

// ChatSender posts one request to the chat endpoint.
type ChatSender interface {
	SendChat(ctx context.Context, req domain.ChatRequest) error
}

// SpeakingQuerier asks whether the avatar is currently talking.
type SpeakingQuerier interface {
	IsSpeaking(ctx context.Context, sid domain.SessionID) (bool, error)
}

// Presenter is the user-facing surface.
type Presenter interface {
	UserMessage(text string)
	SystemMessage(text string)
	ConnectionStatus(s domain.ConnStatus)
}

// Recognition is one speech recognition result.
type Recognition struct {
	Transcript string
	Final      bool
}

// SpeechRecognizer turns held-button speech into text.
type SpeechRecognizer interface {
	// Start begins recognition; onResult receives result batches until Stop.
	Start(ctx context.Context, onResult func([]Recognition)) error
	Stop()
}

package ptt

import (
	"context"
	"sync"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
)

// FeedRecognizer is a SpeechRecognizer whose results are pushed in from
// outside, e.g. by a browser or an external ASR posting to the control API.
type FeedRecognizer struct {
	mu       sync.Mutex
	onResult func([]core.Recognition)
}

func NewFeedRecognizer() *FeedRecognizer { return &FeedRecognizer{} }

func (f *FeedRecognizer) Start(_ context.Context, onResult func([]core.Recognition)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onResult = onResult
	return nil
}

func (f *FeedRecognizer) Stop() {}

// Push delivers one result batch. Results keep flowing after Stop until the
// next Start so the release debounce can still see late ones.
func (f *FeedRecognizer) Push(batch []core.Recognition) error {
	f.mu.Lock()
	fn := f.onResult
	f.mu.Unlock()
	if fn == nil {
		return domain.ErrNotPressed
	}
	fn(batch)
	return nil
}

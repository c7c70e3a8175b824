package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionID(t *testing.T) {
	cases := []struct {
		raw  string
		want SessionID
		err  error
	}{
		{"0", 0, nil},
		{" 12 ", 12, nil},
		{"", 0, ErrSessionIDEmpty},
		{"abc", 0, ErrSessionIDInvalid},
		{"-3", 0, ErrSessionIDInvalid},
		{"2000000", 0, ErrSessionIDInvalid},
	}
	for _, c := range cases {
		got, err := ParseSessionID(c.raw)
		if c.err != nil {
			assert.ErrorIs(t, err, c.err, c.raw)
			continue
		}
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.want, got)
	}
}

func TestCallKind(t *testing.T) {
	k, err := ParseCallKind("video")
	require.NoError(t, err)
	assert.Equal(t, ModeVideoCall, k.Mode())
	assert.Equal(t, ModeVoiceCall, CallVoice.Mode())

	_, err = ParseCallKind("fax")
	assert.ErrorIs(t, err, ErrUnknownCallKind)
}

func TestParseMediaVariant(t *testing.T) {
	v, err := ParseMediaVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantImages, v)

	v, err = ParseMediaVariant("video")
	require.NoError(t, err)
	assert.Equal(t, VariantVideo, v)

	_, err = ParseMediaVariant("gif")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestNewChatRequestCopiesFrames(t *testing.T) {
	frames := []Frame{{1}, {2}}
	req := NewChatRequest("hi", 4, frames)
	frames[0] = Frame{9}

	assert.Equal(t, Frame{1}, req.Frames[0])
	assert.True(t, req.Interrupt)
	assert.Equal(t, ChatTypeChat, req.Type)
	assert.Nil(t, NewChatRequest("x", 1, nil).Frames)
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("denied")
	var err error = &AcquisitionError{Device: "camera", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "acquire camera: denied")

	err = &DispatchError{Status: 502, Err: cause}
	assert.EqualError(t, err, "chat dispatch: status 502: denied")
	assert.ErrorIs(t, &QueryError{Err: cause}, cause)
	assert.ErrorIs(t, &TransportError{Op: "read", Err: cause}, cause)
}

func TestInputModeText(t *testing.T) {
	b, err := ModePushToTalk.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "pushToTalk", string(b))
	assert.Equal(t, "none", ModeIdle.String())
	assert.False(t, ModePushToTalk.IsCall())
}

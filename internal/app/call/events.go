package call

import "github.com/dkeye/AvatarCall/internal/protocol"

// Event advances a session. The set of implementations is closed.
type Event interface {
	event()
}

// MessageReceived carries one decoded transport message.
type MessageReceived struct {
	Msg protocol.Message
}

// ProtocolFault carries an undecodable or unknown inbound frame.
type ProtocolFault struct {
	Err error
}

// TransportClosed reports that the peer closed or the socket failed.
type TransportClosed struct {
	Err error
}

// AudioChunk is one buffer from the audio graph.
type AudioChunk struct {
	Samples []float32
}

// FrameTick asks for one frame sample. Gen identifies the sampling run that
// scheduled it.
type FrameTick struct {
	Gen uint64
}

// ReplyDone reports the end of a reply wait.
type ReplyDone struct {
	Seq     uint64
	Started bool
	Err     error
}

// StopRequested ends the call.
type StopRequested struct {
	Reason string
}

func (MessageReceived) event() {}
func (ProtocolFault) event()   {}
func (TransportClosed) event() {}
func (AudioChunk) event()      {}
func (FrameTick) event()       {}
func (ReplyDone) event()       {}
func (StopRequested) event()   {}

package app

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	EndCall
)

// Policy decides what a call does when the transport cannot keep up with
// outbound audio.
type Policy interface {
	OnBackPressure(consecutiveDrops int) BackpressureAction
}

// SimplePolicy drops frames and ends the call after MaxConsecutiveDrops
// frames in a row were refused. Zero means never end.
type SimplePolicy struct {
	MaxConsecutiveDrops int
}

func (p SimplePolicy) OnBackPressure(consecutiveDrops int) BackpressureAction {
	if p.MaxConsecutiveDrops > 0 && consecutiveDrops >= p.MaxConsecutiveDrops {
		return EndCall
	}
	return DropFrame
}

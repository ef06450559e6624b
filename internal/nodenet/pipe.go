package nodenet

import "math"

const (
	defaultWait        = 10
	defaultExpectation = 1

	stateCountdown = "countdown"
)

// pipeFunc implements script execution over sub/sur hierarchies and por/ret
// sequences. A pipe is active once it is requested through sub and, when it
// has a predecessor, released through por. An active pipe requests its
// children, waits up to wait steps for sur confirmation reaching
// expectation, then reports success or failure to its parent and successor.
func pipeFunc(a *Activation) error {
	wait := a.FloatParam(ParamWait, defaultWait)
	expectation := a.FloatParam(ParamExpectation, defaultExpectation)

	sub := a.Slot(ChannelSub)
	sur := a.Slot(ChannelSur)
	por := a.Slot(ChannelPor)
	gen := a.Slot(ChannelGen)
	cat := a.Slot(ChannelCat)
	exp := a.Slot(ChannelExp)

	requested := sub > 0
	released := !a.SlotLinked(ChannelPor) || por > 0
	active := requested && released

	countdown, seen := a.State(stateCountdown)
	if !active {
		countdown = wait
	} else {
		if !seen {
			countdown = wait
		}
		countdown--
	}
	a.SetState(stateCountdown, countdown)

	a.SetGate(ChannelExp, sur+exp)
	if cat > 0 {
		a.SetGate(ChannelCat, cat)
	}
	if !active {
		return nil
	}

	confirmation := math.Max(-1, math.Min(1, sur+gen))
	timedOut := countdown <= 0 && confirmation < expectation
	failed := timedOut || confirmation < 0
	confirmed := !failed && confirmation >= expectation

	a.SetGate(ChannelSub, sub)
	if timedOut {
		a.SetGate(ChannelGen, -1)
	} else {
		a.SetGate(ChannelGen, confirmation)
	}

	// Only the last element of a sequence reports upwards; earlier ones
	// hand over through por.
	switch {
	case timedOut:
		a.SetGate(ChannelSur, -1)
	case confirmation < 0:
		a.SetGate(ChannelSur, confirmation)
	case confirmed && !a.SlotLinked(ChannelRet):
		a.SetGate(ChannelSur, confirmation)
	}

	var result float64
	switch {
	case confirmed:
		result = 1
	case failed:
		result = -1
	}
	a.SetGate(ChannelPor, result)
	a.SetGate(ChannelRet, result)
	return nil
}

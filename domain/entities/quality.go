package entities

// SignalSample is one raw bidirectional link-quality report from the
// realtime transport. Vendor scale: 0 = unknown, 1 = excellent, 6 = down.
type SignalSample struct {
	Uplink   int `json:"uplink"`
	Downlink int `json:"downlink"`
}

// SignalGauge is the coarser 0-4 scale shown to the user.
// 0 = no signal, 4 = excellent.
type SignalGauge struct {
	Level int `json:"level"`
}

// Worst returns the worse of the two directions. Higher vendor numbers
// are worse, except 0 which means unknown and is treated as best-case.
func (s SignalSample) Worst() int {
	if s.Uplink > s.Downlink {
		return s.Uplink
	}
	return s.Downlink
}

// Connected reports whether the link is up at all. 6 means the network
// is disconnected.
func (s SignalSample) Connected() bool {
	return s.Worst() < 6
}

// ReduceSignal maps a raw vendor sample onto the display gauge.
// The mapping is applied per-sample with no smoothing; the last sample
// wins for display purposes.
func ReduceSignal(s SignalSample) SignalGauge {
	worst := s.Worst()

	var level int
	switch {
	case worst <= 1: // unknown or excellent
		level = 4
	case worst == 2:
		level = 3
	case worst == 3:
		level = 2
	case worst == 4:
		level = 1
	default:
		level = 0
	}

	return SignalGauge{Level: level}
}

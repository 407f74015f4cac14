package envelope

// Trigger fires when a waveform stays above Threshold for more than
// TimeOverThreshold seconds without dropping back to it.
type Trigger struct {
	Threshold         float64
	TimeOverThreshold float64
}

// Evaluate scans the signal and reports whether the trigger fired and at
// what time. The fire time is the sample at which the dwell requirement
// was first exceeded.
func (t *Trigger) Evaluate(sig Signal) (bool, float64) {
	above := false
	var crossedAt float64

	for i, v := range sig.Values {
		if v <= t.Threshold {
			above = false
			continue
		}
		if !above {
			above = true
			crossedAt = sig.Times[i]
		}
		if sig.Times[i]-crossedAt > t.TimeOverThreshold {
			return true, sig.Times[i]
		}
	}
	return false, 0
}

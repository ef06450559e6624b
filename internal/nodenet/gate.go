package nodenet

import (
	"fmt"
	"math"
)

type Spreading string

const (
	// SpreadingIdentity passes the gate activation to every outgoing link.
	SpreadingIdentity Spreading = "identity"
	// SpreadingFanout divides the gate activation by the number of
	// outgoing links of that gate. A gate without links spreads nothing.
	SpreadingFanout Spreading = "fanout"
)

type GateConfig struct {
	Threshold     float64   `json:"threshold"`
	Amplification float64   `json:"amplification"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Spreading     Spreading `json:"spreading"`
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:     -1,
		Amplification: 1,
		Min:           -1,
		Max:           1,
		Spreading:     SpreadingIdentity,
	}
}

func (c GateConfig) Validate() error {
	for name, v := range map[string]float64{
		"threshold":     c.Threshold,
		"amplification": c.Amplification,
		"min":           c.Min,
		"max":           c.Max,
	} {
		if !finite(v) {
			return fmt.Errorf("%w: gate %s must be finite", ErrInvalidConfiguration, name)
		}
	}
	if c.Min > c.Max {
		return fmt.Errorf("%w: gate min %g exceeds max %g", ErrInvalidConfiguration, c.Min, c.Max)
	}
	switch c.Spreading {
	case SpreadingIdentity, SpreadingFanout:
	default:
		return fmt.Errorf("%w: unknown spreading %q", ErrInvalidConfiguration, c.Spreading)
	}
	return nil
}

// apply turns a raw activation into the published gate value: clamping,
// threshold, amplification, then clamping again. The first clamp keeps
// saturated negative input at Min instead of dropping it under the default
// threshold. Non-finite input publishes 0.
func (c GateConfig) apply(value float64) float64 {
	if !finite(value) {
		return 0
	}
	value = c.clamp(value)
	if value < c.Threshold {
		value = 0
	}
	value = c.clamp(value * c.Amplification)
	if !finite(value) {
		return 0
	}
	return value
}

func (c GateConfig) clamp(value float64) float64 {
	if value < c.Min {
		return c.Min
	}
	if value > c.Max {
		return c.Max
	}
	return value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

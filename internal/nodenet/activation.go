package nodenet

import (
	"strconv"
	"strings"
)

// Activation is the frame a NodeFunc works on. Reads see the previous
// committed step; writes are buffered until every node has been evaluated.
type Activation struct {
	uid         string
	name        string
	slots       map[string]float64
	linked      map[string]bool
	params      map[string]string
	state       map[string]float64
	gates       map[string]float64
	targets     map[string]float64
	datasources map[string]float64
	modulators  map[string]float64
}

func (a *Activation) NodeUID() string  { return a.uid }
func (a *Activation) NodeName() string { return a.name }

func (a *Activation) Slot(name string) float64 {
	return a.slots[name]
}

// SlotLinked reports whether the slot has at least one incoming link.
func (a *Activation) SlotLinked(name string) bool {
	return a.linked[name]
}

func (a *Activation) Param(name string) string {
	return a.params[name]
}

// FloatParam parses a numeric parameter, falling back when it is unset or
// malformed.
func (a *Activation) FloatParam(name string, fallback float64) float64 {
	raw := strings.TrimSpace(a.params[name])
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(v) {
		return fallback
	}
	return v
}

func (a *Activation) State(key string) (float64, bool) {
	v, ok := a.state[key]
	return v, ok
}

func (a *Activation) SetState(key string, value float64) {
	a.state[key] = value
}

func (a *Activation) SetGate(name string, value float64) {
	a.gates[name] = value
}

// Datasource reads a world datasource as sampled at the start of the step.
// Unknown keys and nets without a world read 0.
func (a *Activation) Datasource(key string) float64 {
	return a.datasources[key]
}

// SetDatatarget adds value to the datatarget written at commit time.
func (a *Activation) SetDatatarget(key string, value float64) {
	if key == "" {
		return
	}
	a.targets[key] += value
}

func (a *Activation) Modulator(name string) float64 {
	return a.modulators[name]
}

package runner

import (
	"fmt"
	"time"

	"github.com/joschabach/micropsi2-sub002/internal/nodenet"
)

// Condition tells a run loop when to stop on its own. The zero value runs
// until Stop is called.
type Condition struct {
	Steps    int
	Duration time.Duration
	Monitor  *MonitorCondition
}

// MonitorCondition stops the loop once the monitor's value at the current
// step reaches Value from below, or from above when Below is set.
type MonitorCondition struct {
	MonitorUID string
	Value      float64
	Below      bool
}

func (c Condition) IsZero() bool {
	return c.Steps <= 0 && c.Duration <= 0 && c.Monitor == nil
}

func (c Condition) String() string {
	if c.IsZero() {
		return "until stopped"
	}
	out := ""
	add := func(part string) {
		if out != "" {
			out += ", "
		}
		out += part
	}
	if c.Steps > 0 {
		add(fmt.Sprintf("%d steps", c.Steps))
	}
	if c.Duration > 0 {
		add(c.Duration.String())
	}
	if c.Monitor != nil {
		op := ">="
		if c.Monitor.Below {
			op = "<="
		}
		add(fmt.Sprintf("monitor %s %s %g", c.Monitor.MonitorUID, op, c.Monitor.Value))
	}
	return out
}

// met reports whether the loop should stop after a step, and why.
func (c Condition) met(n *nodenet.Net, steps int, elapsed time.Duration) (string, bool, error) {
	if c.Steps > 0 && steps >= c.Steps {
		return fmt.Sprintf("reached %d steps", c.Steps), true, nil
	}
	if c.Duration > 0 && elapsed >= c.Duration {
		return fmt.Sprintf("ran for %s", c.Duration), true, nil
	}
	if c.Monitor != nil {
		step := n.CurrentStep()
		info, err := n.GetMonitorData(c.Monitor.MonitorUID, step, 1)
		if err != nil {
			return "", false, fmt.Errorf("run condition: %w", err)
		}
		value, ok := info.Values[step]
		if !ok {
			return "", false, nil
		}
		if (!c.Monitor.Below && value >= c.Monitor.Value) || (c.Monitor.Below && value <= c.Monitor.Value) {
			return fmt.Sprintf("monitor %s reached %g", info.Name, value), true, nil
		}
	}
	return "", false, nil
}

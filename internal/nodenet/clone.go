package nodenet

import (
	"github.com/google/uuid"
)

// Clone copies the net into an independent instance. The copy gets a new
// uid unless opts.UID is set, its own copy of the type registry unless
// opts.Registry is set, and keeps custom monitors with their values.
func (n *Net) Clone(opts Options) (*Net, error) {
	n.mu.RLock()
	record := n.exportLocked()
	var custom []*monitor
	for _, uid := range n.sortedMonitorUIDs() {
		m := n.monitors[uid]
		if m.kind != MonitorCustom {
			continue
		}
		copied := *m
		copied.values = make(map[int]float64, len(m.values))
		for step, v := range m.values {
			copied.values[step] = v
		}
		custom = append(custom, &copied)
	}
	if opts.Registry == nil {
		opts.Registry = n.types.Clone()
	}
	if opts.Workers == 0 {
		opts.Workers = n.workers
	}
	if !opts.ValidateSurWeights {
		opts.ValidateSurWeights = n.validateSur
	}
	n.mu.RUnlock()

	if opts.UID == "" {
		opts.UID = uuid.NewString()
	}
	record.Status = nil
	clone, err := Import(record, opts)
	if err != nil {
		return nil, err
	}
	for _, m := range custom {
		clone.monitors[m.uid] = m
	}
	return clone, nil
}

package world

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const StaticWorldName = "static"

// DefaultHistoryLimit bounds the values kept per datatarget.
const DefaultHistoryLimit = 1024

// Static is an in-memory world whose datasources are set by the caller and
// whose datatargets keep the last value written per key.
type Static struct {
	name string

	mu          sync.RWMutex
	datasources map[string]float64
	datatargets map[string]float64
	history     map[string][]float64
	historyMax  int
}

func NewStatic(name string) *Static {
	if name == "" {
		name = StaticWorldName
	}
	return &Static{
		name:        name,
		datasources: make(map[string]float64),
		datatargets: make(map[string]float64),
		history:     make(map[string][]float64),
		historyMax:  DefaultHistoryLimit,
	}
}

// NewStaticFromConfig understands "source.<key>" entries holding initial
// datasource values, "target.<key>" entries declaring datatargets and an
// optional "history" limit.
func NewStaticFromConfig(config map[string]string) (*Static, error) {
	w := NewStatic(config["name"])
	for key, raw := range config {
		switch {
		case strings.HasPrefix(key, "source."):
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("datasource %s: %w", key, err)
			}
			w.SetDatasource(strings.TrimPrefix(key, "source."), value)
		case strings.HasPrefix(key, "target."):
			w.DeclareDatatarget(strings.TrimPrefix(key, "target."))
		case key == "history":
			limit, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("history limit: %w", err)
			}
			w.SetHistoryLimit(limit)
		}
	}
	return w, nil
}

func (w *Static) Name() string {
	return w.name
}

func (w *Static) DatasourceKeys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.datasources)
}

func (w *Static) DatatargetKeys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.datatargets)
}

// GetDatasource returns 0 for unknown keys.
func (w *Static) GetDatasource(key string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.datasources[key]
}

func (w *Static) SetDatasource(key string, value float64) {
	w.mu.Lock()
	w.datasources[key] = value
	w.mu.Unlock()
}

func (w *Static) DeclareDatatarget(key string) {
	w.mu.Lock()
	if _, ok := w.datatargets[key]; !ok {
		w.datatargets[key] = 0
	}
	w.mu.Unlock()
}

// SetHistoryLimit keeps at most limit values per datatarget, dropping the
// oldest first. A limit <= 0 turns history off.
func (w *Static) SetHistoryLimit(limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if limit < 0 {
		limit = 0
	}
	w.historyMax = limit
	for key, values := range w.history {
		w.history[key] = trimHistory(values, limit)
	}
}

func (w *Static) SetDatatarget(key string, value float64) {
	w.mu.Lock()
	w.datatargets[key] = value
	if w.historyMax > 0 {
		w.history[key] = trimHistory(append(w.history[key], value), w.historyMax)
	}
	w.mu.Unlock()
}

func trimHistory(values []float64, limit int) []float64 {
	if limit <= 0 {
		return nil
	}
	if len(values) <= limit {
		return values
	}
	return append([]float64(nil), values[len(values)-limit:]...)
}

func (w *Static) Datatarget(key string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	value, ok := w.datatargets[key]
	return value, ok
}

// DatatargetHistory returns the retained values written to key, oldest first.
func (w *Static) DatatargetHistory(key string) []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]float64(nil), w.history[key]...)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

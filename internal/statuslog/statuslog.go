// Package statuslog keeps a hierarchical, dot-addressed tree of status
// entries that running nets and their runners report progress into.
package statuslog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

type Level int

const (
	LevelDebug   Level = 10
	LevelInfo    Level = 20
	LevelWarning Level = 30
	LevelError   Level = 40
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts the lower-case level names used on the command line.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("unknown status level: %s", name)
	}
}

type State string

const (
	StateActive  State = "active"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateWaiting State = "waiting"
	StateIdle    State = "idle"
)

var ErrInvalidPath = errors.New("invalid status path")

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Entry is a detached copy of one node of the tree. Entries that were only
// created as parents of a deeper path have a zero Level and empty State.
type Entry struct {
	Level    Level            `json:"level"`
	State    State            `json:"state,omitempty"`
	Message  string           `json:"msg,omitempty"`
	Progress *Progress        `json:"progress,omitempty"`
	Children map[string]Entry `json:"children,omitempty"`
}

type entry struct {
	level    Level
	state    State
	message  string
	progress *Progress
	children map[string]*entry
}

type Logger struct {
	mu   sync.RWMutex
	root map[string]*entry
	log  *slog.Logger
}

func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		root: make(map[string]*entry),
		log:  logger.With("component", "statuslog"),
	}
}

func (l *Logger) Debug(path string, state State, message string, progress *Progress) error {
	return l.Log(LevelDebug, path, state, message, progress)
}

func (l *Logger) Info(path string, state State, message string, progress *Progress) error {
	return l.Log(LevelInfo, path, state, message, progress)
}

func (l *Logger) Warning(path string, state State, message string, progress *Progress) error {
	return l.Log(LevelWarning, path, state, message, progress)
}

func (l *Logger) Error(path string, state State, message string, progress *Progress) error {
	return l.Log(LevelError, path, state, message, progress)
}

// Log upserts the entry at path. Children already present below path are
// left untouched.
func (l *Logger) Log(level Level, path string, state State, message string, progress *Progress) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	target := l.walk(segments, true)
	target.level = level
	target.state = state
	target.message = message
	if progress != nil {
		p := *progress
		target.progress = &p
	} else {
		target.progress = nil
	}
	l.mu.Unlock()

	attrs := []any{slog.String("path", path), slog.String("state", string(state))}
	if progress != nil {
		attrs = append(attrs, slog.Int("current", progress.Current), slog.Int("total", progress.Total))
	}
	l.log.Log(context.Background(), slogLevel(level), message, attrs...)
	return nil
}

// Remove deletes the subtree rooted at path and reports whether it existed.
func (l *Logger) Remove(path string) bool {
	segments, err := splitPath(path)
	if err != nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	children := l.root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := children[segment]
		if !ok {
			return false
		}
		children = next.children
	}
	last := segments[len(segments)-1]
	if _, ok := children[last]; !ok {
		return false
	}
	delete(children, last)
	return true
}

func (l *Logger) Get(path string) (Entry, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return Entry{}, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	target := l.walk(segments, false)
	if target == nil {
		return Entry{}, false
	}
	return detach(target), true
}

// Tree returns a copy of the tree holding every entry at or above minLevel,
// together with the ancestors needed to reach them.
func (l *Logger) Tree(minLevel Level) map[string]Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Entry, len(l.root))
	for key, e := range l.root {
		if filtered, ok := filter(e, minLevel); ok {
			out[key] = filtered
		}
	}
	return out
}

// Paths lists the dotted path of every entry in lexical order.
func (l *Logger) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var paths []string
	var visit func(prefix string, children map[string]*entry)
	visit = func(prefix string, children map[string]*entry) {
		for key, child := range children {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			paths = append(paths, path)
			visit(path, child.children)
		}
	}
	visit("", l.root)
	sort.Strings(paths)
	return paths
}

func (l *Logger) Clear() {
	l.mu.Lock()
	l.root = make(map[string]*entry)
	l.mu.Unlock()
}

// Snapshot converts the whole tree into its persistent form.
func (l *Logger) Snapshot() map[string]model.StatusEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.root) == 0 {
		return nil
	}
	out := make(map[string]model.StatusEntry, len(l.root))
	for key, e := range l.root {
		out[key] = toRecord(e)
	}
	return out
}

// Restore replaces the tree with a persisted snapshot.
func (l *Logger) Restore(records map[string]model.StatusEntry) {
	root := make(map[string]*entry, len(records))
	for key, record := range records {
		root[key] = fromRecord(record)
	}
	l.mu.Lock()
	l.root = root
	l.mu.Unlock()
}

func (l *Logger) walk(segments []string, create bool) *entry {
	children := l.root
	var current *entry
	for _, segment := range segments {
		next, ok := children[segment]
		if !ok {
			if !create {
				return nil
			}
			next = &entry{children: make(map[string]*entry)}
			children[segment] = next
		}
		current = next
		children = next.children
	}
	return current
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func detach(e *entry) Entry {
	out := Entry{
		Level:   e.level,
		State:   e.state,
		Message: e.message,
	}
	if e.progress != nil {
		p := *e.progress
		out.Progress = &p
	}
	if len(e.children) > 0 {
		out.Children = make(map[string]Entry, len(e.children))
		for key, child := range e.children {
			out.Children[key] = detach(child)
		}
	}
	return out
}

func filter(e *entry, minLevel Level) (Entry, bool) {
	out := Entry{
		Level:   e.level,
		State:   e.state,
		Message: e.message,
	}
	if e.progress != nil {
		p := *e.progress
		out.Progress = &p
	}
	for key, child := range e.children {
		filtered, ok := filter(child, minLevel)
		if !ok {
			continue
		}
		if out.Children == nil {
			out.Children = make(map[string]Entry)
		}
		out.Children[key] = filtered
	}
	keep := (e.level != 0 && e.level >= minLevel) || len(out.Children) > 0
	return out, keep
}

func toRecord(e *entry) model.StatusEntry {
	record := model.StatusEntry{
		Level:   int(e.level),
		State:   string(e.state),
		Message: e.message,
	}
	if e.progress != nil {
		record.Progress = []int{e.progress.Current, e.progress.Total}
	}
	if len(e.children) > 0 {
		record.Children = make(map[string]model.StatusEntry, len(e.children))
		for key, child := range e.children {
			record.Children[key] = toRecord(child)
		}
	}
	return record
}

func fromRecord(record model.StatusEntry) *entry {
	e := &entry{
		level:    Level(record.Level),
		state:    State(record.State),
		message:  record.Message,
		children: make(map[string]*entry, len(record.Children)),
	}
	if len(record.Progress) == 2 {
		e.progress = &Progress{Current: record.Progress[0], Total: record.Progress[1]}
	}
	for key, child := range record.Children {
		e.children[key] = fromRecord(child)
	}
	return e
}

func slogLevel(level Level) slog.Level {
	switch {
	case level >= LevelError:
		return slog.LevelError
	case level >= LevelWarning:
		return slog.LevelWarn
	case level >= LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

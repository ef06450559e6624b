// Package runner hosts many nets side by side: it owns their run loops,
// applies run conditions, and moves nets in and out of a store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/nodenet"
	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/internal/storage"
	"github.com/joschabach/micropsi2-sub002/internal/world"
)

// StatusPath is where run loops report into each net's status log.
const StatusPath = "runner"

var (
	ErrNetNotFound = errors.New("net not found")
	ErrNetRunning  = errors.New("net is running")
	ErrNoStore     = errors.New("runtime has no store")
)

type Config struct {
	Store storage.Store
	// Workers is the default evaluation parallelism for nets created here.
	Workers int
	// StepInterval pauses a run loop between steps.
	StepInterval time.Duration
	Logger       *slog.Logger
}

type Runtime struct {
	store      storage.Store
	workers    int
	interval   time.Duration
	supervisor *Supervisor
	base       *slog.Logger
	log        *slog.Logger

	mu         sync.RWMutex
	nets       map[string]*nodenet.Net
	conditions map[string]Condition
	lastErrors map[string]error
}

func NewRuntime(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		store:      cfg.Store,
		workers:    cfg.Workers,
		interval:   cfg.StepInterval,
		base:       logger,
		log:        logger.With("component", "runner"),
		nets:       make(map[string]*nodenet.Net),
		conditions: make(map[string]Condition),
		lastErrors: make(map[string]error),
	}
	r.supervisor = NewSupervisor(SupervisorHooks{
		OnTaskExit: func(uid string, err error) {
			r.mu.Lock()
			r.lastErrors[uid] = err
			r.mu.Unlock()
		},
	})
	return r
}

// CreateNet builds an empty net. Workers and Logger default to the
// runtime's settings.
func (r *Runtime) CreateNet(opts nodenet.Options) (*nodenet.Net, error) {
	n := nodenet.New(r.withDefaults(opts))
	if err := r.AddNet(n); err != nil {
		return nil, err
	}
	r.log.Info("net created", "net", n.UID(), "name", n.Name())
	return n, nil
}

// AddNet hands an existing net to the runtime.
func (r *Runtime) AddNet(n *nodenet.Net) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nets[n.UID()]; exists {
		return fmt.Errorf("net already loaded: %s", n.UID())
	}
	r.nets[n.UID()] = n
	return nil
}

// CloneNet instantiates a template: the copy shares nothing with the
// template and gets a fresh uid.
func (r *Runtime) CloneNet(templateUID, name string) (*nodenet.Net, error) {
	template, err := r.Net(templateUID)
	if err != nil {
		return nil, err
	}
	opts := nodenet.Options{Name: name, Logger: r.base}
	if adapter, config := template.WorldAdapter(); adapter != "" {
		w, err := world.Resolve(adapter, config)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", templateUID, err)
		}
		opts.World = w
	}
	clone, err := template.Clone(opts)
	if err != nil {
		return nil, err
	}
	if err := r.AddNet(clone); err != nil {
		return nil, err
	}
	r.log.Info("net cloned", "template", templateUID, "net", clone.UID())
	return clone, nil
}

// DeleteNet stops and forgets the net and removes it from the store.
func (r *Runtime) DeleteNet(ctx context.Context, uid string) error {
	if _, err := r.Net(uid); err != nil {
		return err
	}
	r.supervisor.Stop(uid)
	r.mu.Lock()
	delete(r.nets, uid)
	delete(r.conditions, uid)
	delete(r.lastErrors, uid)
	r.mu.Unlock()
	if r.store != nil {
		if err := r.store.DeleteNet(ctx, uid); err != nil {
			return fmt.Errorf("delete net %s from store: %w", uid, err)
		}
	}
	r.log.Info("net deleted", "net", uid)
	return nil
}

func (r *Runtime) Net(uid string) (*nodenet.Net, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nets[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetNotFound, uid)
	}
	return n, nil
}

// Nets lists the uids of every loaded net.
func (r *Runtime) Nets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uids := make([]string, 0, len(r.nets))
	for uid := range r.nets {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func (r *Runtime) SetRunnerCondition(uid string, c Condition) error {
	if _, err := r.Net(uid); err != nil {
		return err
	}
	r.mu.Lock()
	r.conditions[uid] = c
	r.mu.Unlock()
	return nil
}

func (r *Runtime) RunnerCondition(uid string) (Condition, error) {
	if _, err := r.Net(uid); err != nil {
		return Condition{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conditions[uid], nil
}

// Start launches the run loop of a net in the background with the given
// condition.
func (r *Runtime) Start(uid string, c Condition) error {
	n, err := r.Net(uid)
	if err != nil {
		return err
	}
	if err := r.SetRunnerCondition(uid, c); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.lastErrors, uid)
	r.mu.Unlock()
	if err := r.supervisor.Start(uid, func(ctx context.Context) error {
		return r.loop(ctx, n)
	}); err != nil {
		return fmt.Errorf("%w: %s", ErrNetRunning, uid)
	}
	return nil
}

// Run executes the run loop in the calling goroutine until the condition
// is met, ctx ends, or a step fails.
func (r *Runtime) Run(ctx context.Context, uid string, c Condition) error {
	if err := r.Start(uid, c); err != nil {
		return err
	}
	err := r.supervisor.Wait(ctx, uid)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.supervisor.Stop(uid)
		return nil
	}
	return err
}

// Wait blocks until a started loop has ended and returns its error.
func (r *Runtime) Wait(ctx context.Context, uid string) error {
	if _, err := r.Net(uid); err != nil {
		return err
	}
	return r.supervisor.Wait(ctx, uid)
}

// Stop ends the run loop between two steps.
func (r *Runtime) Stop(uid string) error {
	if _, err := r.Net(uid); err != nil {
		return err
	}
	r.supervisor.Stop(uid)
	return nil
}

func (r *Runtime) IsRunning(uid string) bool {
	return r.supervisor.Running(uid)
}

// LastError returns the error the last run loop of the net ended with.
func (r *Runtime) LastError(uid string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErrors[uid]
}

func (r *Runtime) Loops() []TaskStatus {
	return r.supervisor.Children()
}

func (r *Runtime) Save(ctx context.Context, uid string) error {
	if r.store == nil {
		return ErrNoStore
	}
	n, err := r.Net(uid)
	if err != nil {
		return err
	}
	if err := r.store.SaveNet(ctx, n.Export()); err != nil {
		return fmt.Errorf("save net %s: %w", uid, err)
	}
	r.log.Debug("net saved", "net", uid, "step", n.CurrentStep())
	return nil
}

// Load reads a net from the store, replacing a loaded net with the same
// uid unless it is running. The world is resolved from the record's
// adapter when opts carries none.
func (r *Runtime) Load(ctx context.Context, uid string, opts nodenet.Options) (*nodenet.Net, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.IsRunning(uid) {
		return nil, fmt.Errorf("%w: %s", ErrNetRunning, uid)
	}
	record, ok, err := r.store.GetNet(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load net %s: %w", uid, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetNotFound, uid)
	}
	n, err := r.Import(record, opts)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Import builds a net from a record and registers it, replacing a stopped
// net with the same uid.
func (r *Runtime) Import(record model.NetRecord, opts nodenet.Options) (*nodenet.Net, error) {
	opts = r.withDefaults(opts)
	if opts.World == nil && record.WorldAdapter != "" {
		w, err := world.Resolve(record.WorldAdapter, record.WorldConfig)
		if err != nil {
			return nil, fmt.Errorf("net %s: %w", record.UID, err)
		}
		opts.World = w
	}
	n, err := nodenet.Import(record, opts)
	if err != nil {
		return nil, fmt.Errorf("import net %s: %w", record.UID, err)
	}
	if r.IsRunning(n.UID()) {
		return nil, fmt.Errorf("%w: %s", ErrNetRunning, n.UID())
	}
	r.mu.Lock()
	r.nets[n.UID()] = n
	r.mu.Unlock()
	return n, nil
}

// Close stops every run loop.
func (r *Runtime) Close() error {
	r.supervisor.StopAll()
	return nil
}

func (r *Runtime) withDefaults(opts nodenet.Options) nodenet.Options {
	if opts.Workers == 0 {
		opts.Workers = r.workers
	}
	if opts.Logger == nil {
		opts.Logger = r.base
	}
	return opts
}

func (r *Runtime) condition(uid string) Condition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conditions[uid]
}

func (r *Runtime) loop(ctx context.Context, n *nodenet.Net) error {
	uid := n.UID()
	status := n.StatusLog()
	started := time.Now()
	firstStep := n.CurrentStep()

	runningNets.Inc()
	defer runningNets.Dec()
	_ = status.Info(StatusPath, statuslog.StateActive, "running "+r.condition(uid).String(), nil)
	r.log.Info("run loop started", "net", uid, "step", firstStep)

	for {
		if ctx.Err() != nil {
			r.stopped(n, firstStep)
			return nil
		}
		begin := time.Now()
		if err := n.Step(ctx); err != nil {
			if ctx.Err() != nil {
				r.stopped(n, firstStep)
				return nil
			}
			runFailures.WithLabelValues(uid).Inc()
			_ = status.Error(StatusPath, statuslog.StateFailure, err.Error(), nil)
			r.log.Error("run loop failed", "net", uid, "step", n.CurrentStep()+1, "error", err)
			return err
		}
		stepsTotal.WithLabelValues(uid).Inc()
		stepDuration.Observe(time.Since(begin).Seconds())

		cond := r.condition(uid)
		done := n.CurrentStep() - firstStep
		if cond.Steps > 0 {
			_ = status.Debug(StatusPath, statuslog.StateActive, "running "+cond.String(), &statuslog.Progress{Current: done, Total: cond.Steps})
		}
		reason, finished, err := cond.met(n, done, time.Since(started))
		if err != nil {
			runFailures.WithLabelValues(uid).Inc()
			_ = status.Error(StatusPath, statuslog.StateFailure, err.Error(), nil)
			return err
		}
		if finished {
			_ = status.Info(StatusPath, statuslog.StateSuccess, reason, nil)
			r.log.Info("run loop finished", "net", uid, "step", n.CurrentStep(), "reason", reason)
			return nil
		}

		if r.interval > 0 {
			timer := time.NewTimer(r.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

func (r *Runtime) stopped(n *nodenet.Net, firstStep int) {
	_ = n.StatusLog().Info(StatusPath, statuslog.StateIdle, fmt.Sprintf("stopped after %d steps", n.CurrentStep()-firstStep), nil)
	r.log.Info("run loop stopped", "net", n.UID(), "step", n.CurrentStep())
}

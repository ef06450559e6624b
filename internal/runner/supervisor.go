package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

type SupervisorHooks struct {
	// OnTaskExit runs after a task returned on its own, not after Stop.
	OnTaskExit func(name string, err error)
}

type TaskStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor owns one goroutine per named task. Tasks are not restarted;
// a failing task ends and keeps its last error until started again.
type Supervisor struct {
	hooks SupervisorHooks

	mu       sync.Mutex
	tasks    map[string]*supervisorTask
	finished map[string]*supervisorTask
}

type supervisorTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewSupervisor(hooks SupervisorHooks) *Supervisor {
	return &Supervisor{
		hooks:    hooks,
		tasks:    make(map[string]*supervisorTask),
		finished: make(map[string]*supervisorTask),
	}
}

func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}

	s.mu.Lock()
	if _, exists := s.tasks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", name)
	}
	delete(s.finished, name)
	ctx, cancel := context.WithCancel(context.Background())
	task := &supervisorTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[name] = task
	s.mu.Unlock()

	go s.runTask(name, task, ctx, run)
	return nil
}

func (s *Supervisor) runTask(name string, task *supervisorTask, ctx context.Context, run func(ctx context.Context) error) {
	err := run(ctx)
	if ctx.Err() == nil && s.hooks.OnTaskExit != nil {
		s.hooks.OnTaskExit(name, err)
	}

	s.mu.Lock()
	task.err = err
	if current, ok := s.tasks[name]; ok && current == task {
		s.finished[name] = task
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	task.cancel()
	close(task.done)
}

// Stop cancels the task and waits for it to return.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*supervisorTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

// Wait blocks until the named task has returned and yields its error. It
// returns nil at once for names it never started.
func (s *Supervisor) Wait(ctx context.Context, name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	if !ok {
		task, ok = s.finished[name]
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-task.done:
		return task.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) Children() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks)+len(s.finished))
	for name := range s.tasks {
		out = append(out, TaskStatus{Name: name, Running: true})
	}
	for name, task := range s.finished {
		if _, active := s.tasks[name]; active {
			continue
		}
		out = append(out, TaskStatus{Name: name, LastError: errString(task.err)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

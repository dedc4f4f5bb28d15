// Package taskgraph runs named one-shot tasks in dependency order.
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrAlreadyExecuted = errors.New("taskgraph: task already executed")
	ErrDuplicateTask   = errors.New("taskgraph: task already added")
	ErrCycle           = errors.New("taskgraph: dependency cycle")
	ErrUnknownTask     = errors.New("taskgraph: dependency was never added")
	ErrNilTask         = errors.New("taskgraph: nil task")
)

// Task is a named unit of work that runs at most once.
type Task struct {
	name string
	fn   func(ctx context.Context) error

	mu       sync.Mutex
	executed bool
}

// NewTask wraps fn as a one-shot task.
func NewTask(name string, fn func(ctx context.Context) error) *Task {
	return &Task{name: name, fn: fn}
}

func (t *Task) Name() string {
	return t.name
}

// Executed reports whether Run was ever called.
func (t *Task) Executed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

// Run executes the task. A second call fails with ErrAlreadyExecuted,
// whether or not the first one succeeded.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.executed {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExecuted, t.name)
	}
	t.executed = true
	t.mu.Unlock()

	if t.fn == nil {
		return nil
	}
	return t.fn(ctx)
}

// Graph maps tasks to their direct dependencies.
type Graph struct {
	tasks []*Task
	deps  map[*Task][]*Task
}

func New() *Graph {
	return &Graph{deps: make(map[*Task][]*Task)}
}

// Add registers task with its direct dependencies. Dependencies must be
// added too, before or after, by the time the graph is ordered.
func (g *Graph) Add(task *Task, deps ...*Task) error {
	if task == nil {
		return ErrNilTask
	}
	for i, d := range deps {
		if d == nil {
			return fmt.Errorf("%w: dependency %d of %s", ErrNilTask, i, task.name)
		}
	}
	if _, ok := g.deps[task]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.name)
	}
	g.tasks = append(g.tasks, task)
	g.deps[task] = append([]*Task(nil), deps...)
	return nil
}

// Len is the number of registered tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

const (
	unvisited = iota
	inProgress
	done
)

// Order checks the graph for cycles and returns every task after all of its
// dependencies. Roots are taken in registration order.
func (g *Graph) Order() ([]*Task, error) {
	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	visited := make(map[*Task]bool, len(g.tasks))
	order := make([]*Task, 0, len(g.tasks))
	var visit func(t *Task)
	visit = func(t *Task) {
		if visited[t] {
			return
		}
		visited[t] = true
		for _, d := range g.deps[t] {
			visit(d)
		}
		order = append(order, t)
	}
	for _, t := range g.tasks {
		visit(t)
	}
	return order, nil
}

func (g *Graph) checkCycles() error {
	color := make(map[*Task]int, len(g.tasks))
	var path []*Task
	var walk func(t *Task) error
	walk = func(t *Task) error {
		deps, ok := g.deps[t]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTask, t.name)
		}
		switch color[t] {
		case inProgress:
			return fmt.Errorf("%w: %s", ErrCycle, cyclePath(path, t))
		case done:
			return nil
		}
		color[t] = inProgress
		path = append(path, t)
		for _, d := range deps {
			if err := walk(d); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[t] = done
		return nil
	}
	for _, t := range g.tasks {
		if err := walk(t); err != nil {
			return err
		}
	}
	return nil
}

func cyclePath(path []*Task, back *Task) string {
	names := []string{}
	for i, t := range path {
		if t == back {
			for _, p := range path[i:] {
				names = append(names, p.name)
			}
			break
		}
	}
	return strings.Join(append(names, back.name), " -> ")
}

// Run executes the graph in Order, one task at a time. The first failure
// stops the run; remaining tasks are left unexecuted.
func (g *Graph) Run(ctx context.Context) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, t := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Run(ctx); err != nil {
			return fmt.Errorf("task %s: %w", t.name, err)
		}
	}
	return nil
}

package edit

import (
	"sync"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/metrics"
)

// Command is one undoable unit of work (spec.md §4.8 "every mutating edit
// from the GUI is an undoable command").
type Command interface {
	Execute() domain.CommandStatus
	Undo() domain.CommandStatus
	Name() string
}

// Queue is a linear undo/redo history: a slice of executed commands plus a
// single top-of-stack index. Adding a command after undoing past it
// truncates the redo tail (spec.md §4.8 "Command queue").
//
// Grounded on _examples/original_source/src/editor/GuiCommands.* (a
// CommandQueue owning Command pointers) — the original calls this a FIFO,
// but its add/undo/redo semantics are a standard linear undo stack, which
// is how it is implemented here.
type Queue struct {
	mu       sync.Mutex
	commands []Command
	top      int // number of commands currently applied, 0..len(commands)
}

// NewQueue returns an empty command queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add executes cmd and, on success, pushes it onto the history, discarding
// any commands previously available for redo.
func (q *Queue) Add(cmd Command) domain.CommandStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := cmd.Execute()
	metrics.CommandsExecuted.WithLabelValues(cmd.Name(), status.String()).Inc()
	if status != domain.CommandDone {
		return status
	}
	q.commands = append(q.commands[:q.top], cmd)
	q.top++
	return domain.CommandDone
}

// Undo reverts the most recently applied command, if any.
func (q *Queue) Undo() domain.CommandStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.top == 0 {
		return domain.CommandSkipped
	}
	cmd := q.commands[q.top-1]
	status := cmd.Undo()
	metrics.CommandsExecuted.WithLabelValues(cmd.Name()+" (undo)", status.String()).Inc()
	if status != domain.CommandDone {
		return status
	}
	q.top--
	return domain.CommandDone
}

// Redo re-applies the most recently undone command, if any.
func (q *Queue) Redo() domain.CommandStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.top >= len(q.commands) {
		return domain.CommandSkipped
	}
	cmd := q.commands[q.top]
	status := cmd.Execute()
	metrics.CommandsExecuted.WithLabelValues(cmd.Name()+" (redo)", status.String()).Inc()
	if status != domain.CommandDone {
		return status
	}
	q.top++
	return domain.CommandDone
}

// CanUndo reports whether Undo has a command to act on.
func (q *Queue) CanUndo() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.top > 0
}

// CanRedo reports whether Redo has a command to act on.
func (q *Queue) CanRedo() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.top < len(q.commands)
}

// Clear discards the entire history.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = nil
	q.top = 0
}

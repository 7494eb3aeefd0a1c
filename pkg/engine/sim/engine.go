// Package sim provides a deterministic in-process execution engine used for
// local development and tests. It walks a journey's enabled nodes in order
// and emits step events the way the production engine does, including
// duplicate-free ids, pause/resume, and per-step failure injection.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/protocol"
)

type command int

const (
	commandPause command = iota
	commandResume
	commandStop
	commandRetry
	commandSkip
)

// Config controls simulated behavior.
type Config struct {
	// StepDelay is the simulated duration of each step.
	StepDelay time.Duration
	// FailNodes maps node id to how many times that step fails before succeeding.
	FailNodes map[string]int
}

// Engine implements protocol.ExecutionEngine in-process.
type Engine struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger
	runs   map[string]chan command
}

func NewEngine(config Config, logger *slog.Logger) *Engine {
	return &Engine{
		config: config,
		logger: logger.With("module", "sim_engine"),
		runs:   make(map[string]chan command),
	}
}

func (e *Engine) StartExecution(
	ctx context.Context,
	executionID string,
	journey *models.Workflow,
	callback protocol.EngineEventCallback,
) error {
	e.mu.Lock()

	if _, exists := e.runs[executionID]; exists {
		e.mu.Unlock()

		return fmt.Errorf("execution %s already running", executionID)
	}

	commands := make(chan command, 16)
	e.runs[executionID] = commands
	e.mu.Unlock()

	go e.run(ctx, executionID, journey, callback, commands)

	return nil
}

func (e *Engine) Pause(_ context.Context, executionID string) error {
	return e.send(executionID, commandPause)
}

func (e *Engine) Resume(_ context.Context, executionID string) error {
	return e.send(executionID, commandResume)
}

func (e *Engine) Stop(_ context.Context, executionID string) error {
	return e.send(executionID, commandStop)
}

func (e *Engine) Retry(_ context.Context, executionID string, _ string) error {
	return e.send(executionID, commandRetry)
}

func (e *Engine) Skip(_ context.Context, executionID string, _ string) error {
	return e.send(executionID, commandSkip)
}

func (e *Engine) send(executionID string, cmd command) error {
	e.mu.Lock()
	commands, exists := e.runs[executionID]
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("execution %s not running", executionID)
	}

	commands <- cmd

	return nil
}

func (e *Engine) finish(executionID string) {
	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()
}

func (e *Engine) run(
	ctx context.Context,
	executionID string,
	journey *models.Workflow,
	callback protocol.EngineEventCallback,
	commands chan command,
) {
	defer e.finish(executionID)

	steps := enabledNodes(journey)
	total := len(steps)
	failures := make(map[string]int, len(e.config.FailNodes))

	for id, count := range e.config.FailNodes {
		failures[id] = count
	}

	emit := func(event events.ExecutionEvent) bool {
		if err := callback(ctx, event); err != nil {
			e.logger.WarnContext(ctx, "Event callback failed", "execution_id", executionID, "error", err)
		}

		return true
	}

	for index := 0; index < total; index++ {
		if stopped := e.drainCommands(ctx, executionID, commands, emit); stopped {
			return
		}

		step := stepInfo(steps[index], index, total)

		emit(events.ExecutionEvent{
			ID:          uuid.New().String(),
			Type:        events.StepStartedEvent,
			ExecutionID: executionID,
			Timestamp:   time.Now().UTC(),
			Step:        &step,
			Progress:    progressInfo(index, total),
		})

		if e.config.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.config.StepDelay):
			}
		}

		if failures[step.ID] > 0 {
			failures[step.ID]--

			emit(events.ExecutionEvent{
				ID:          uuid.New().String(),
				Type:        events.StepFailedEvent,
				ExecutionID: executionID,
				Timestamp:   time.Now().UTC(),
				Step:        &step,
				Failure: &events.FailureInfo{
					Message:  fmt.Sprintf("simulated failure in %s", step.Name),
					Code:     "SIM_FAILURE",
					CanRetry: true,
					CanSkip:  true,
					CanDebug: true,
				},
			})

			action, stopped := e.awaitRecovery(ctx, commands)
			if stopped {
				e.emitTerminal(executionID, events.ExecutionFailedEvent, emit)

				return
			}

			if action == commandRetry {
				index-- // re-run the same step

				continue
			}

			// Skip: account for the step and move on.
			emit(events.ExecutionEvent{
				ID:          uuid.New().String(),
				Type:        events.StepSkippedEvent,
				ExecutionID: executionID,
				Timestamp:   time.Now().UTC(),
				Step:        &step,
			})

			continue
		}

		completed := step
		completed.DurationMs = e.config.StepDelay.Milliseconds()

		emit(events.ExecutionEvent{
			ID:          uuid.New().String(),
			Type:        events.StepCompletedEvent,
			ExecutionID: executionID,
			Timestamp:   time.Now().UTC(),
			Step:        &completed,
			Progress:    progressInfo(index+1, total),
			Usage:       usageSample(),
		})
	}

	e.emitTerminal(executionID, events.ExecutionCompletedEvent, emit)
}

// drainCommands processes pending pause/stop commands between steps. A pause
// blocks until resume or stop. Returns true when the run must stop.
func (e *Engine) drainCommands(
	ctx context.Context,
	executionID string,
	commands chan command,
	emit func(events.ExecutionEvent) bool,
) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case cmd := <-commands:
			switch cmd {
			case commandStop:
				emit(events.ExecutionEvent{
					ID:          uuid.New().String(),
					Type:        events.ExecutionFailedEvent,
					ExecutionID: executionID,
					Timestamp:   time.Now().UTC(),
					Failure:     &events.FailureInfo{Message: "stopped by user"},
				})

				return true
			case commandPause:
				emit(events.ExecutionEvent{
					ID:          uuid.New().String(),
					Type:        events.ExecutionPausedEvent,
					ExecutionID: executionID,
					Timestamp:   time.Now().UTC(),
				})

				if stopped := e.awaitResume(ctx, executionID, commands, emit); stopped {
					return true
				}
			default:
				// Resume/retry/skip with nothing pending: ignore.
			}
		default:
			return false
		}
	}
}

func (e *Engine) awaitResume(
	ctx context.Context,
	executionID string,
	commands chan command,
	emit func(events.ExecutionEvent) bool,
) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case cmd := <-commands:
			switch cmd {
			case commandResume:
				emit(events.ExecutionEvent{
					ID:          uuid.New().String(),
					Type:        events.ExecutionResumedEvent,
					ExecutionID: executionID,
					Timestamp:   time.Now().UTC(),
				})

				return false
			case commandStop:
				return true
			default:
			}
		}
	}
}

// awaitRecovery blocks after a step failure until the user retries, skips, or stops.
func (e *Engine) awaitRecovery(ctx context.Context, commands chan command) (command, bool) {
	for {
		select {
		case <-ctx.Done():
			return commandStop, true
		case cmd := <-commands:
			switch cmd {
			case commandRetry, commandSkip:
				return cmd, false
			case commandStop:
				return commandStop, true
			default:
			}
		}
	}
}

func (e *Engine) emitTerminal(
	executionID string,
	eventType events.EngineEventType,
	emit func(events.ExecutionEvent) bool,
) {
	emit(events.ExecutionEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	})
}

func enabledNodes(journey *models.Workflow) []*models.WorkflowNode {
	nodes := make([]*models.WorkflowNode, 0, len(journey.Nodes))

	for _, node := range journey.Nodes {
		if node.Enabled {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

func stepInfo(node *models.WorkflowNode, index, total int) events.StepInfo {
	return events.StepInfo{
		ID:    node.ID,
		Name:  node.Name,
		Index: index,
		Total: total,
	}
}

// usageSample reports the process heap at step completion. The simulator does
// no network I/O, so the network fields stay zero.
func usageSample() *events.UsageInfo {
	var stats runtime.MemStats

	runtime.ReadMemStats(&stats)

	return &events.UsageInfo{MemoryBytes: int64(stats.HeapAlloc)}
}

func progressInfo(done, total int) *events.ProgressInfo {
	if total == 0 {
		return &events.ProgressInfo{Percent: 100}
	}

	return &events.ProgressInfo{
		Percent: float64(done) / float64(total) * 100,
	}
}

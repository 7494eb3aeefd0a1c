package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flowsync-io/flowsync/pkg/eventbus"
	"github.com/flowsync-io/flowsync/pkg/journal"
	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/protocol"
	"github.com/flowsync-io/flowsync/pkg/streamer"
	"github.com/flowsync-io/flowsync/pkg/syncer"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Dependencies are the shared collaborators injected into every session.
// Journal, Publisher and Tracer are optional.
type Dependencies struct {
	Logger      *slog.Logger
	Engine      protocol.ExecutionEngine
	Interpreter protocol.CommandInterpreter
	Journal     journal.Journal
	Publisher   eventbus.EventPublisher
	Tracer      trace.Tracer

	SyncConfig   syncer.Config
	StreamConfig streamer.Config
}

// Registry maps session ids to live sessions. There are no package-level
// globals; every consumer addresses its state through here.
type Registry struct {
	mu       sync.Mutex
	deps     Dependencies
	logger   *slog.Logger
	sessions map[string]*Session
}

func NewRegistry(deps Dependencies) *Registry {
	return &Registry{
		deps:     deps,
		logger:   deps.Logger.With("module", "session_registry"),
		sessions: make(map[string]*Session),
	}
}

// Open creates a new session around the given workflow and enables
// synchronization. It fails if the id is already taken.
func (r *Registry) Open(ctx context.Context, sessionID, workspaceID string, workflow *models.Workflow) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	session := &Session{
		ID:          sessionID,
		WorkspaceID: workspaceID,
		workflow:    workflow,
		machine: syncer.NewMachine(
			sessionID, workflow, r.deps.SyncConfig,
			r.deps.Logger, r.deps.Journal, r.deps.Publisher,
		),
		streamer: streamer.NewStreamer(
			sessionID, r.deps.StreamConfig,
			r.deps.Logger, r.deps.Engine, r.deps.Journal, r.deps.Publisher,
		),
		interpreter: r.deps.Interpreter,
		logger:      r.deps.Logger.With("module", "session", "session_id", sessionID),
		tracer:      r.deps.Tracer,
	}
	session.touch()
	session.machine.Enable(ctx)

	r.sessions[sessionID] = session

	r.logger.InfoContext(ctx, "Session opened",
		"session_id", sessionID,
		"workflow_id", workflow.ID,
	)

	return session, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return session, nil
}

// Close tears down one session synchronously and removes it from the registry.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	session, exists := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	session.Close(ctx)

	return nil
}

// CloseAll tears down every session, used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))

	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}

	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close(ctx)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep expires stale open changes in every session and closes sessions idle
// longer than idleTTL with no running execution.
func (r *Registry) Sweep(ctx context.Context, idleTTL, staleWindow time.Duration) {
	r.mu.Lock()
	sessions := make(map[string]*Session, len(r.sessions))

	for id, session := range r.sessions {
		sessions[id] = session
	}
	r.mu.Unlock()

	for id, session := range sessions {
		session.ExpireStaleChanges(staleWindow)

		if time.Since(session.LastActive()) < idleTTL {
			continue
		}

		if execution := session.Execution(); execution != nil && !execution.Status.IsTerminal() {
			continue
		}

		r.logger.InfoContext(ctx, "Closing idle session", "session_id", id)

		if err := r.Close(ctx, id); err != nil {
			r.logger.WarnContext(ctx, "Failed to close idle session", "session_id", id, "error", err)
		}
	}
}

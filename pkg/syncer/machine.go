package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowsync-io/flowsync/pkg/eventbus"
	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/journal"
	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/snapshot"
)

// Config holds the tunable parameters of the state machine. The conflict
// window and tie-break preference are deliberately configurable rather than
// hard constants.
type Config struct {
	ConflictWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConflictWindow <= 0 {
		c.ConflictWindow = DefaultConflictWindow
	}

	return c
}

// Subscriber is invoked synchronously on every representation or
// conflict-list change. It receives a read-only snapshot.
type Subscriber func(state models.SyncState)

type subscription struct {
	id       int
	callback Subscriber
}

// openChange is the newest change from one source that is still inside the
// conflict window and available for collision checks.
type openChange struct {
	change *models.ChangeEvent
	undo   undoFunc
}

// Machine is the synchronization state machine for one workflow-chat pairing.
// All mutations for a session are serialized by the owning session's task
// queue; the internal mutex additionally protects direct accessor calls.
type Machine struct {
	mu sync.Mutex

	sessionID string
	workflow  *models.Workflow
	state     *models.SyncState
	detector  *Detector
	validate  *validator.Validate
	logger    *slog.Logger

	journal   journal.Journal        // optional
	publisher eventbus.EventPublisher // optional

	open           map[models.ChangeSource]*openChange
	undoByConflict map[string]undoFunc

	subscribers []*subscription
	nextSubID   int
}

// NewMachine creates a machine in the disabled state. journal and publisher
// may be nil; the machine then skips journaling and broadcasting.
func NewMachine(
	sessionID string,
	workflow *models.Workflow,
	config Config,
	logger *slog.Logger,
	jrnl journal.Journal,
	publisher eventbus.EventPublisher,
) *Machine {
	config = config.withDefaults()

	return &Machine{
		sessionID: sessionID,
		workflow:  workflow,
		detector:  NewDetector(config.ConflictWindow),
		validate:  validator.New(),
		logger: logger.With(
			"module", "sync_machine",
			"session_id", sessionID,
		),
		journal:   jrnl,
		publisher: publisher,
		state: &models.SyncState{
			Enabled: false,
			Status:  models.SyncStatusDisabled,
		},
		open:           make(map[models.ChangeSource]*openChange),
		undoByConflict: make(map[string]undoFunc),
	}
}

// Enable transitions disabled -> idle and builds the initial representation.
// Idempotent if already enabled.
func (m *Machine) Enable(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Enabled {
		return
	}

	m.state = &models.SyncState{
		Enabled:        true,
		Status:         models.SyncStatusIdle,
		Conflicts:      []*models.SyncConflict{},
		Representation: snapshot.BuildRepresentation(m.workflow),
	}

	m.logger.InfoContext(ctx, "Sync enabled")

	m.broadcastStatus(ctx)
	m.notifyLocked()
}

// Disable transitions any state -> disabled. Pending conflicts are discarded
// without being resolved, and all subscribers are unregistered synchronously:
// no callback fires after Disable returns.
func (m *Machine) Disable(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Enabled {
		return
	}

	m.state = &models.SyncState{
		Enabled: false,
		Status:  models.SyncStatusDisabled,
	}
	m.open = make(map[models.ChangeSource]*openChange)
	m.undoByConflict = make(map[string]undoFunc)
	m.subscribers = nil

	m.logger.InfoContext(ctx, "Sync disabled, pending conflicts discarded")

	m.broadcastStatus(ctx)
}

// RecordVisualChange records a mutation observed from the visual editor.
// A non-nil conflict return means the change was not applied and awaits resolution.
func (m *Machine) RecordVisualChange(ctx context.Context, change *models.ChangeEvent) (*models.SyncConflict, error) {
	return m.recordChange(ctx, change, models.ChangeSourceVisual)
}

// RecordChatChange records a mutation derived from a chat command.
func (m *Machine) RecordChatChange(ctx context.Context, change *models.ChangeEvent) (*models.SyncConflict, error) {
	return m.recordChange(ctx, change, models.ChangeSourceChat)
}

func (m *Machine) recordChange(ctx context.Context, change *models.ChangeEvent, source models.ChangeSource) (*models.SyncConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Enabled {
		return nil, ErrSyncDisabled
	}

	if err := m.validateChange(change, source); err != nil {
		return nil, err
	}

	change.Source = source
	change.Status = models.ChangeStatusPending

	m.state.Status = models.SyncStatusSyncing

	opposite := m.open[otherSource(source)]
	if opposite != nil {
		conflict := m.detectAgainst(change, opposite.change, source)
		if conflict != nil {
			return m.raiseConflict(ctx, conflict, opposite), nil
		}
	}

	undo, err := applyChange(m.workflow, change)
	if err != nil {
		m.state.Status = m.settledStatus()

		return nil, err
	}

	change.Status = models.ChangeStatusApplied
	m.open[source] = &openChange{change: change, undo: undo}

	m.state.Representation = snapshot.BuildRepresentation(m.workflow)
	m.state.Status = m.settledStatus()

	m.journalChange(ctx, change)
	m.broadcastRepresentation(ctx)
	m.notifyLocked()

	return nil, nil
}

// detectAgainst orders the pair as (visual, chat) for the detector.
func (m *Machine) detectAgainst(change, opposite *models.ChangeEvent, source models.ChangeSource) *models.SyncConflict {
	if source == models.ChangeSourceVisual {
		return m.detector.Detect(change, opposite)
	}

	return m.detector.Detect(opposite, change)
}

func (m *Machine) raiseConflict(ctx context.Context, conflict *models.SyncConflict, opposite *openChange) *models.SyncConflict {
	// The opposite change was applied tentatively when it was recorded; keep
	// its inverse so a resolution can still discard it.
	m.undoByConflict[conflict.ID] = opposite.undo
	delete(m.open, opposite.change.Source)

	m.state.Conflicts = append(m.state.Conflicts, conflict)
	m.state.Status = models.SyncStatusConflict

	m.logger.WarnContext(ctx, "Sync conflict raised",
		"conflict_id", conflict.ID,
		"conflict_type", string(conflict.Type),
	)

	m.journalConflict(ctx, conflict)
	m.broadcast(ctx, events.ConflictRaised{
		BaseEvent: events.NewBaseEvent(events.ConflictRaisedEvent, m.sessionID),
		Conflict:  conflict,
	})
	m.broadcastStatus(ctx)
	m.notifyLocked()

	return conflict
}

// ResolveConflict settles a conflict terminally. For merge, both changes must
// modify disjoint fields of the same node; otherwise ErrMergeNotPossible is
// returned and the conflict remains open for re-resolution.
func (m *Machine) ResolveConflict(ctx context.Context, conflictID string, resolution models.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Enabled {
		return ErrSyncDisabled
	}

	index := -1

	for i, c := range m.state.Conflicts {
		if c.ID == conflictID {
			index = i

			break
		}
	}

	if index == -1 {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}

	conflict := m.state.Conflicts[index]

	var err error

	switch resolution {
	case models.ResolutionVisual:
		err = m.applyWinner(conflict.VisualChange, conflict.ChatChange, conflictID)
	case models.ResolutionChat:
		err = m.applyWinner(conflict.ChatChange, conflict.VisualChange, conflictID)
	case models.ResolutionMerge:
		err = m.applyMerge(conflict)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidResolution, resolution)
	}

	if err != nil {
		if errors.Is(err, ErrMergeNotPossible) {
			// The conflict stays open for re-resolution.
			return err
		}

		return m.enterErrorLocked(ctx, index, conflict, err)
	}

	m.state.Conflicts = append(m.state.Conflicts[:index], m.state.Conflicts[index+1:]...)
	delete(m.undoByConflict, conflictID)

	m.state.Representation = snapshot.BuildRepresentation(m.workflow)
	m.state.Status = m.settledStatus()

	m.logger.InfoContext(ctx, "Conflict resolved",
		"conflict_id", conflictID,
		"resolution", string(resolution),
	)

	m.journalResolution(ctx, conflictID, resolution)
	m.broadcast(ctx, events.ConflictResolved{
		BaseEvent:  events.NewBaseEvent(events.ConflictResolvedEvent, m.sessionID),
		ConflictID: conflictID,
		Resolution: resolution,
	})
	m.broadcastRepresentation(ctx)
	m.notifyLocked()

	return nil
}

// enterErrorLocked discards a conflict whose winner could no longer be
// applied, typically because the target entity was removed after the conflict
// was raised. Both sides are rejected and the machine parks in the error
// status until the next successful operation or an enable cycle.
func (m *Machine) enterErrorLocked(ctx context.Context, index int, conflict *models.SyncConflict, cause error) error {
	conflict.VisualChange.Status = models.ChangeStatusRejected
	conflict.ChatChange.Status = models.ChangeStatusRejected

	m.state.Conflicts = append(m.state.Conflicts[:index], m.state.Conflicts[index+1:]...)
	delete(m.undoByConflict, conflict.ID)

	m.state.Representation = snapshot.BuildRepresentation(m.workflow)

	// Remaining conflicts keep precedence: the conflict status must hold
	// exactly while the conflict list is non-empty.
	m.state.Status = models.SyncStatusError
	if len(m.state.Conflicts) > 0 {
		m.state.Status = models.SyncStatusConflict
	}

	m.logger.ErrorContext(ctx, "Sync machine entered error state",
		"conflict_id", conflict.ID,
		"error", cause,
	)

	m.broadcastStatus(ctx)
	m.notifyLocked()

	return fmt.Errorf("%w: %s", ErrStateInconsistent, cause.Error())
}

// applyWinner applies the winning change if still pending and rolls back the
// losing change if it had been tentatively applied.
func (m *Machine) applyWinner(winner, loser *models.ChangeEvent, conflictID string) error {
	if loser.Status == models.ChangeStatusApplied {
		if undo := m.undoByConflict[conflictID]; undo != nil {
			undo(m.workflow)
		}
	}

	loser.Status = models.ChangeStatusRejected

	if winner.Status != models.ChangeStatusApplied {
		if _, err := applyChange(m.workflow, winner); err != nil {
			return err
		}
	}

	winner.Status = models.ChangeStatusApplied

	return nil
}

// applyMerge performs a field-level union of two modifications of the same node.
func (m *Machine) applyMerge(conflict *models.SyncConflict) error {
	visualMod, visualOK := conflict.VisualChange.Payload.(models.NodeModifiedPayload)
	chatMod, chatOK := conflict.ChatChange.Payload.(models.NodeModifiedPayload)

	if !visualOK || !chatOK {
		return fmt.Errorf("%w: both changes must be block modifications", ErrMergeNotPossible)
	}

	if !disjointFields(visualMod.Fields, chatMod.Fields) {
		return fmt.Errorf("%w: changes touch overlapping fields", ErrMergeNotPossible)
	}

	for _, change := range []*models.ChangeEvent{conflict.VisualChange, conflict.ChatChange} {
		if change.Status == models.ChangeStatusApplied {
			continue
		}

		if _, err := applyChange(m.workflow, change); err != nil {
			return err
		}

		change.Status = models.ChangeStatusApplied
	}

	return nil
}

// Subscribe registers a listener for representation and conflict-list changes.
// Delivery is synchronous and in registration order. The returned handle
// unregisters the listener.
func (m *Machine) Subscribe(callback Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	sub := &subscription{id: m.nextSubID, callback: callback}
	m.subscribers = append(m.subscribers, sub)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		for i, s := range m.subscribers {
			if s.id == sub.id {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)

				break
			}
		}
	}
}

// State returns a read-only snapshot of the sync state.
func (m *Machine) State() models.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

// Representation returns the current representation, or nil when sync is disabled.
func (m *Machine) Representation() *models.Representation {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.Representation
}

// ExpireStale drops open changes whose timestamp is older than maxAge,
// closing the conflict window for them. Called periodically by the janitor.
func (m *Machine) ExpireStale(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()

	for source, open := range m.open {
		if open.change.Timestamp < cutoff {
			delete(m.open, source)
		}
	}
}

// settledStatus recomputes the post-transition status from the conflict list.
func (m *Machine) settledStatus() models.SyncStatus {
	if len(m.state.Conflicts) > 0 {
		return models.SyncStatusConflict
	}

	return models.SyncStatusIdle
}

func (m *Machine) validateChange(change *models.ChangeEvent, source models.ChangeSource) error {
	if change == nil {
		return fmt.Errorf("%w: change is nil", ErrInvalidChangeEvent)
	}

	if change.ID == "" || change.Type == "" || change.Payload == nil {
		return fmt.Errorf("%w: id, type and data are required", ErrInvalidChangeEvent)
	}

	if !payloadMatchesType(change) {
		return fmt.Errorf("%w: payload does not match change type %s", ErrInvalidChangeEvent, change.Type)
	}

	change.Source = source

	if err := m.validate.Struct(change); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidChangeEvent, err.Error())
	}

	return nil
}

func payloadMatchesType(change *models.ChangeEvent) bool {
	switch change.Payload.(type) {
	case models.NodeAddedPayload:
		return change.Type == models.ChangeTypeNodeAdded
	case models.NodeRemovedPayload:
		return change.Type == models.ChangeTypeNodeRemoved
	case models.NodeModifiedPayload:
		return change.Type == models.ChangeTypeNodeModified
	case models.EdgeAddedPayload:
		return change.Type == models.ChangeTypeEdgeAdded
	case models.EdgeRemovedPayload:
		return change.Type == models.ChangeTypeEdgeRemoved
	case models.ExecutionStateChangedPayload:
		return change.Type == models.ChangeTypeExecutionStateChanged
	default:
		return false
	}
}

func otherSource(source models.ChangeSource) models.ChangeSource {
	if source == models.ChangeSourceVisual {
		return models.ChangeSourceChat
	}

	return models.ChangeSourceVisual
}

// snapshotLocked copies the state so subscribers never see a mutable reference.
func (m *Machine) snapshotLocked() models.SyncState {
	conflicts := make([]*models.SyncConflict, len(m.state.Conflicts))
	copy(conflicts, m.state.Conflicts)

	return models.SyncState{
		Enabled:        m.state.Enabled,
		Status:         m.state.Status,
		Conflicts:      conflicts,
		Representation: m.state.Representation,
	}
}

func (m *Machine) notifyLocked() {
	state := m.snapshotLocked()

	for _, sub := range m.subscribers {
		sub.callback(state)
	}
}

func (m *Machine) broadcast(ctx context.Context, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, m.sessionID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to broadcast event", "event_type", string(event.GetType()), "error", err)
	}
}

func (m *Machine) broadcastRepresentation(ctx context.Context) {
	m.broadcast(ctx, events.RepresentationUpdated{
		BaseEvent:      events.NewBaseEvent(events.RepresentationUpdatedEvent, m.sessionID),
		WorkflowID:     m.workflow.ID,
		Representation: m.state.Representation,
	})
}

func (m *Machine) broadcastStatus(ctx context.Context) {
	m.broadcast(ctx, events.SyncStatusChanged{
		BaseEvent: events.NewBaseEvent(events.SyncStatusChangedEvent, m.sessionID),
		Status:    m.state.Status,
	})
}

func (m *Machine) journalAppend(ctx context.Context, kind journal.EntryKind, data any) {
	if m.journal == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to marshal journal entry", "kind", string(kind), "error", err)

		return
	}

	entry := journal.Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: m.sessionID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}

	if err := m.journal.Append(ctx, entry); err != nil {
		m.logger.WarnContext(ctx, "Failed to append journal entry", "kind", string(kind), "error", err)
	}
}

func (m *Machine) journalChange(ctx context.Context, change *models.ChangeEvent) {
	m.journalAppend(ctx, journal.EntryChangeRecorded, change)
}

func (m *Machine) journalConflict(ctx context.Context, conflict *models.SyncConflict) {
	m.journalAppend(ctx, journal.EntryConflictRaised, conflict)
}

func (m *Machine) journalResolution(ctx context.Context, conflictID string, resolution models.Resolution) {
	m.journalAppend(ctx, journal.EntryConflictResolved, map[string]string{
		"conflict_id": conflictID,
		"resolution":  string(resolution),
	})
}

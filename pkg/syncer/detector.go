package syncer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowsync-io/flowsync/pkg/models"
)

// DefaultConflictWindow is how close two changes from opposite sources must
// be, by timestamp, to be considered concurrent.
const DefaultConflictWindow = 2000 * time.Millisecond

// entityKind is the id space a change targets.
type entityKind int

const (
	kindGlobal entityKind = iota // execution state
	kindNode
	kindEdge
)

func changeKind(t models.ChangeType) entityKind {
	switch t {
	case models.ChangeTypeNodeAdded, models.ChangeTypeNodeRemoved, models.ChangeTypeNodeModified:
		return kindNode
	case models.ChangeTypeEdgeAdded, models.ChangeTypeEdgeRemoved:
		return kindEdge
	default:
		return kindGlobal
	}
}

// Detector classifies pairs of concurrent changes from opposite sources.
// Detection is deterministic: the same pair always yields the same conflict
// type and suggested resolution.
type Detector struct {
	window time.Duration
}

func NewDetector(window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultConflictWindow
	}

	return &Detector{window: window}
}

// Detect returns a conflict if the visual and chat changes collide, nil otherwise.
func (d *Detector) Detect(visual, chat *models.ChangeEvent) *models.SyncConflict {
	if visual == nil || chat == nil {
		return nil
	}

	if !d.withinWindow(visual, chat) {
		return nil
	}

	if !targetsCollide(visual, chat) {
		return nil
	}

	conflictType, ok := classify(visual, chat)
	if !ok {
		return nil
	}

	return &models.SyncConflict{
		ID:                  uuid.New().String(),
		Type:                conflictType,
		Timestamp:           time.Now().UTC(),
		Description:         describeConflict(conflictType, visual, chat),
		VisualChange:        visual,
		ChatChange:          chat,
		SuggestedResolution: suggestResolution(visual, chat),
		AutoResolvable:      isAutoResolvable(conflictType, visual, chat),
	}
}

func (d *Detector) withinWindow(a, b *models.ChangeEvent) bool {
	diff := a.Timestamp - b.Timestamp
	if diff < 0 {
		diff = -diff
	}

	return time.Duration(diff)*time.Millisecond <= d.window
}

// targetsCollide reports whether two changes touch the same entity or the
// same global concern. Execution-state changes collide only with each other;
// entity changes collide when they share an id space and an id.
func targetsCollide(visual, chat *models.ChangeEvent) bool {
	visualKind := changeKind(visual.Type)
	chatKind := changeKind(chat.Type)

	if visualKind == kindGlobal || chatKind == kindGlobal {
		return visualKind == chatKind
	}

	return visualKind == chatKind && visual.TargetEntity() == chat.TargetEntity() && visual.TargetEntity() != ""
}

// classify applies the classification rules in order; first match wins.
func classify(visual, chat *models.ChangeEvent) (models.ConflictType, bool) {
	sameNode := changeKind(visual.Type) == kindNode && changeKind(chat.Type) == kindNode &&
		visual.TargetEntity() == chat.TargetEntity()
	if sameNode && (visual.Type == models.ChangeTypeNodeModified || chat.Type == models.ChangeTypeNodeModified) {
		return models.ConflictTypeConcurrentBlockModification, true
	}

	sameEdge := changeKind(visual.Type) == kindEdge && changeKind(chat.Type) == kindEdge &&
		visual.TargetEntity() == chat.TargetEntity()
	if sameEdge {
		return models.ConflictTypeConcurrentConnectionChange, true
	}

	if visual.Type == models.ChangeTypeExecutionStateChanged || chat.Type == models.ChangeTypeExecutionStateChanged {
		return models.ConflictTypeExecutionStateConflict, true
	}

	if visual.Type.IsStructural() && chat.Type.IsStructural() {
		return models.ConflictTypeStructuralConflict, true
	}

	return "", false
}

// suggestResolution prefers the visual side unless the chat change is
// strictly newer by timestamp.
func suggestResolution(visual, chat *models.ChangeEvent) models.Resolution {
	if chat.Timestamp > visual.Timestamp {
		return models.ResolutionChat
	}

	return models.ResolutionVisual
}

// isAutoResolvable is true only for concurrent block modifications whose
// changes are provably compatible: both partial modifications touching
// disjoint field sets.
func isAutoResolvable(conflictType models.ConflictType, visual, chat *models.ChangeEvent) bool {
	if conflictType != models.ConflictTypeConcurrentBlockModification {
		return false
	}

	visualMod, ok := visual.Payload.(models.NodeModifiedPayload)
	if !ok {
		return false
	}

	chatMod, ok := chat.Payload.(models.NodeModifiedPayload)
	if !ok {
		return false
	}

	return disjointFields(visualMod.Fields, chatMod.Fields)
}

func disjointFields(a, b map[string]any) bool {
	for field := range a {
		if _, overlap := b[field]; overlap {
			return false
		}
	}

	return true
}

func describeConflict(conflictType models.ConflictType, visual, chat *models.ChangeEvent) string {
	switch conflictType {
	case models.ConflictTypeConcurrentBlockModification:
		return fmt.Sprintf("block %s was changed from both sides (%s visually, %s via chat)",
			visual.TargetEntity(), visual.Type, chat.Type)
	case models.ConflictTypeConcurrentConnectionChange:
		return fmt.Sprintf("connection %s was changed from both sides (%s visually, %s via chat)",
			visual.TargetEntity(), visual.Type, chat.Type)
	case models.ConflictTypeExecutionStateConflict:
		return "execution state was changed from both sides at the same time"
	default:
		return fmt.Sprintf("concurrent structural edits collide (%s visually, %s via chat)",
			visual.Type, chat.Type)
	}
}

package syncer

import (
	"fmt"
	"slices"

	"github.com/flowsync-io/flowsync/pkg/models"
)

// undoFunc reverts a tentatively applied change. Stored while the change is
// still inside the conflict window so a later resolution can discard it.
type undoFunc func(w *models.Workflow)

// applyChange mutates the canonical graph according to the change payload and
// returns the inverse operation.
func applyChange(workflow *models.Workflow, change *models.ChangeEvent) (undoFunc, error) {
	switch payload := change.Payload.(type) {
	case models.NodeAddedPayload:
		return applyNodeAdded(workflow, payload)
	case models.NodeRemovedPayload:
		return applyNodeRemoved(workflow, payload)
	case models.NodeModifiedPayload:
		return applyNodeModified(workflow, payload)
	case models.EdgeAddedPayload:
		return applyEdgeAdded(workflow, payload)
	case models.EdgeRemovedPayload:
		return applyEdgeRemoved(workflow, payload)
	case models.ExecutionStateChangedPayload:
		return applyExecutionStateChanged(workflow, payload)
	default:
		return nil, fmt.Errorf("%w: change %s has no payload", ErrInvalidChangeEvent, change.ID)
	}
}

func applyNodeAdded(workflow *models.Workflow, payload models.NodeAddedPayload) (undoFunc, error) {
	if workflow.NodeByID(payload.Node.ID) != nil {
		return nil, fmt.Errorf("%w: node %s already exists", ErrInvalidChangeEvent, payload.Node.ID)
	}

	node := payload.Node
	workflow.Nodes = append(workflow.Nodes, &node)

	return func(w *models.Workflow) {
		w.Nodes = slices.DeleteFunc(w.Nodes, func(n *models.WorkflowNode) bool {
			return n.ID == node.ID
		})
	}, nil
}

func applyNodeRemoved(workflow *models.Workflow, payload models.NodeRemovedPayload) (undoFunc, error) {
	node := workflow.NodeByID(payload.NodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: node %s", ErrUnknownEntity, payload.NodeID)
	}

	removed := *node

	// Edges attached to the node go with it.
	var removedConns []*models.Connection

	workflow.Connections = slices.DeleteFunc(workflow.Connections, func(c *models.Connection) bool {
		if c.SourceNode == payload.NodeID || c.TargetNode == payload.NodeID {
			removedConns = append(removedConns, c)

			return true
		}

		return false
	})

	workflow.Nodes = slices.DeleteFunc(workflow.Nodes, func(n *models.WorkflowNode) bool {
		return n.ID == payload.NodeID
	})

	return func(w *models.Workflow) {
		restored := removed
		w.Nodes = append(w.Nodes, &restored)
		w.Connections = append(w.Connections, removedConns...)
	}, nil
}

func applyNodeModified(workflow *models.Workflow, payload models.NodeModifiedPayload) (undoFunc, error) {
	node := workflow.NodeByID(payload.NodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: node %s", ErrUnknownEntity, payload.NodeID)
	}

	previous := make(map[string]any, len(payload.Fields))

	for field, value := range payload.Fields {
		prev, err := setNodeField(node, field, value)
		if err != nil {
			// Roll back fields already set in this pass.
			for f, v := range previous {
				_, _ = setNodeField(node, f, v)
			}

			return nil, err
		}

		previous[field] = prev
	}

	return func(w *models.Workflow) {
		n := w.NodeByID(payload.NodeID)
		if n == nil {
			return
		}

		for field, value := range previous {
			_, _ = setNodeField(n, field, value)
		}
	}, nil
}

// setNodeField writes one named field and returns its previous value.
// Unknown field names land in the node's config map.
func setNodeField(node *models.WorkflowNode, field string, value any) (any, error) {
	switch field {
	case "name", "label":
		prev := node.Name

		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %s expects a string", ErrInvalidChangeEvent, field)
		}

		node.Name = str

		return prev, nil
	case "description":
		prev := node.Description

		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %s expects a string", ErrInvalidChangeEvent, field)
		}

		node.Description = str

		return prev, nil
	case "enabled":
		prev := node.Enabled

		enabled, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field %s expects a bool", ErrInvalidChangeEvent, field)
		}

		node.Enabled = enabled

		return prev, nil
	default:
		if node.Config == nil {
			node.Config = make(map[string]any)
		}

		prev, existed := node.Config[field]
		node.Config[field] = value

		if !existed {
			return nil, nil
		}

		return prev, nil
	}
}

func applyEdgeAdded(workflow *models.Workflow, payload models.EdgeAddedPayload) (undoFunc, error) {
	if workflow.ConnectionByID(payload.Connection.ID) != nil {
		return nil, fmt.Errorf("%w: connection %s already exists", ErrInvalidChangeEvent, payload.Connection.ID)
	}

	if workflow.NodeByID(payload.Connection.SourceNode) == nil {
		return nil, fmt.Errorf("%w: source node %s", ErrUnknownEntity, payload.Connection.SourceNode)
	}

	if workflow.NodeByID(payload.Connection.TargetNode) == nil {
		return nil, fmt.Errorf("%w: target node %s", ErrUnknownEntity, payload.Connection.TargetNode)
	}

	conn := payload.Connection
	workflow.Connections = append(workflow.Connections, &conn)

	return func(w *models.Workflow) {
		w.Connections = slices.DeleteFunc(w.Connections, func(c *models.Connection) bool {
			return c.ID == conn.ID
		})
	}, nil
}

func applyEdgeRemoved(workflow *models.Workflow, payload models.EdgeRemovedPayload) (undoFunc, error) {
	conn := workflow.ConnectionByID(payload.EdgeID)
	if conn == nil {
		return nil, fmt.Errorf("%w: connection %s", ErrUnknownEntity, payload.EdgeID)
	}

	removed := *conn

	workflow.Connections = slices.DeleteFunc(workflow.Connections, func(c *models.Connection) bool {
		return c.ID == payload.EdgeID
	})

	return func(w *models.Workflow) {
		restored := removed
		w.Connections = append(w.Connections, &restored)
	}, nil
}

func applyExecutionStateChanged(workflow *models.Workflow, payload models.ExecutionStateChangedPayload) (undoFunc, error) {
	previous := workflow.ExecutionState
	workflow.ExecutionState = payload.State

	return func(w *models.Workflow) {
		w.ExecutionState = previous
	}, nil
}

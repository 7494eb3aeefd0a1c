package models

// Representation is the compact, chat-displayable summary of a workflow graph.
// It is derived and ephemeral: rebuilt wholesale on every accepted change and
// never partially mutated.
type Representation struct {
	BlockSummaries      []BlockSummary      `json:"block_summaries"`
	ConnectionSummaries []ConnectionSummary `json:"connection_summaries"`
	ExecutionState      ExecutionState      `json:"execution_state"`
}

// BlockSummary is a one-line view of a workflow node.
type BlockSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	IsEnabled   bool   `json:"is_enabled"`
}

// ConnectionSummary is a one-line view of an edge.
type ConnectionSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

package models

// GraphNode is one KnowledgeNode scoped by (user, document).
type GraphNode struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Parent      string `json:"parent,omitempty"`
}

// GraphEdge is a directed RELATED_TO relation inside one scope.
type GraphEdge struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Relationship string `json:"relationship"`
}

// KnowledgeGraph is the full node/edge set of a scope.
type KnowledgeGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphIngestResult reports how many nodes and edges were merged.
type GraphIngestResult struct {
	NodesAffected int `json:"nodes_affected"`
	EdgesAffected int `json:"edges_affected"`
}

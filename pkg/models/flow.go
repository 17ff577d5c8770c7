package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NodeType classifies a canvas node.
type NodeType string

const (
	NodeEventSource NodeType = "event_source"
	NodeProcess     NodeType = "process"
	NodeJoin        NodeType = "join"
	NodeUnion       NodeType = "union"
	NodeOutput      NodeType = "output"
)

// FlowNode is one node of a canvas description.
type FlowNode struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// FlowEdge connects a prerequisite node to its consumer.
type FlowEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FlowGraph is the transient canvas description carried in generation
// requests. Input accepts "connections" as a synonym for "edges"; output
// always uses "edges".
type FlowGraph struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// UnmarshalJSON merges the legacy "connections" key into Edges.
func (g *FlowGraph) UnmarshalJSON(data []byte) error {
	var raw struct {
		Nodes       []FlowNode `json:"nodes"`
		Edges       []FlowEdge `json:"edges"`
		Connections []FlowEdge `json:"connections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Nodes = raw.Nodes
	g.Edges = raw.Edges
	if len(g.Edges) == 0 {
		g.Edges = raw.Connections
	}
	return nil
}

// Flow is a saved canvas belonging to a game.
type Flow struct {
	ID        uuid.UUID `json:"id"`
	GID       int64     `json:"gid"`
	Name      string    `json:"name"`
	Graph     FlowGraph `json:"graph"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

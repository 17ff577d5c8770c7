package services

import (
	"encoding/json"
	"strings"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/flowgraph"
	"github.com/ieu-analytics/event2table/pkg/jsonutil"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// Node config shapes as canvas editors emit them. Numeric ids may arrive as
// numbers or strings; jsonutil handles the conversion.

type eventSourceConfig struct {
	GID     json.RawMessage          `json:"gid"`
	EventID json.RawMessage          `json:"event_id"`
	Fields  []models.FieldDescriptor `json:"fields"`
}

type processConfig struct {
	Conditions  []models.WhereCondition `json:"conditions"`
	CustomWhere string                  `json:"custom_where"`
}

type joinConfig struct {
	JoinType      models.JoinType        `json:"join_type"`
	Conditions    []models.JoinCondition `json:"conditions"`
	AutoPartition bool                   `json:"autoPartition"`
}

type outputConfig struct {
	Database  string `json:"database"`
	TableName string `json:"table_name"`
}

// requestFromFlow validates a canvas and lowers it into a generation request.
// Nodes are visited in topological execution order so that event order in the
// derived request is deterministic.
func requestFromFlow(graph models.FlowGraph, opts models.GenerateOptions) (*models.GenerateRequest, error) {
	result := flowgraph.Validate(graph, flowgraph.Options{})
	if !result.Valid {
		return nil, apperrors.Validationf("flow is invalid: %s", strings.Join(result.Errors, "; "))
	}

	nodesByID := make(map[string]models.FlowNode, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodesByID[n.ID] = n
	}

	req := &models.GenerateRequest{Options: opts}
	hasUnion := false
	var joins []models.JoinSpec

	for _, id := range result.ExecutionOrder {
		node := nodesByID[id]
		switch node.Type {
		case models.NodeEventSource:
			var cfg eventSourceConfig
			if err := jsonutil.Decode(node.Config, &cfg); err != nil {
				return nil, apperrors.Validationf("event source node %q: %v", node.ID, err)
			}
			ref := models.EventRef{
				GID:     jsonutil.FlexibleInt64Value(cfg.GID),
				EventID: jsonutil.FlexibleInt64Value(cfg.EventID),
			}
			if ref.GID <= 0 || ref.EventID <= 0 {
				return nil, apperrors.Validationf("event source node %q requires positive gid and event_id", node.ID)
			}
			req.Events = append(req.Events, ref)
			req.EventFields = append(req.EventFields, cfg.Fields)

		case models.NodeProcess:
			var cfg processConfig
			if err := jsonutil.Decode(node.Config, &cfg); err != nil {
				return nil, apperrors.Validationf("process node %q: %v", node.ID, err)
			}
			req.WhereConditions = append(req.WhereConditions, cfg.Conditions...)
			if cfg.CustomWhere != "" {
				req.Options.CustomWhere = cfg.CustomWhere
			}

		case models.NodeJoin:
			var cfg joinConfig
			if err := jsonutil.Decode(node.Config, &cfg); err != nil {
				return nil, apperrors.Validationf("join node %q: %v", node.ID, err)
			}
			if len(cfg.Conditions) == 0 && cfg.JoinType != models.JoinCross {
				return nil, apperrors.Validationf("join node %q has no conditions", node.ID)
			}
			joins = append(joins, models.JoinSpec{
				Type:          cfg.JoinType,
				Conditions:    cfg.Conditions,
				AutoPartition: cfg.AutoPartition,
			})

		case models.NodeUnion:
			hasUnion = true

		case models.NodeOutput:
			var cfg outputConfig
			if err := jsonutil.Decode(node.Config, &cfg); err != nil {
				return nil, apperrors.Validationf("output node %q: %v", node.ID, err)
			}
			if cfg.Database != "" && cfg.TableName != "" {
				req.Options.Output = &models.OutputSpec{
					Database:  cfg.Database,
					TableName: cfg.TableName,
				}
			}
		}
	}

	if len(req.Events) == 0 {
		return nil, apperrors.Validationf("flow has no event source nodes")
	}

	// Drop per-event field lists when none of them carry anything; union
	// fallback semantics then apply.
	allEmpty := true
	for _, fields := range req.EventFields {
		if len(fields) > 0 {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		req.EventFields = nil
	}

	switch {
	case len(joins) > 0:
		req.Options.Mode = models.ModeJoin
		req.Options.Joins = joins
	case hasUnion || len(req.Events) > 1:
		req.Options.Mode = models.ModeUnion
	default:
		req.Options.Mode = models.ModeSingle
	}

	return req, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/cache"
	"github.com/ieu-analytics/event2table/pkg/flowgraph"
	"github.com/ieu-analytics/event2table/pkg/hql"
	"github.com/ieu-analytics/event2table/pkg/logging"
	"github.com/ieu-analytics/event2table/pkg/models"
	"github.com/ieu-analytics/event2table/pkg/repositories"
)

// GenerationService is the facade over the whole compilation pipeline:
// resolve events, compile fields and predicates, assemble, cache, record.
type GenerationService interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.Artifact, error)
	// GenerateFromFlow lowers a validated canvas into a generation request
	// and runs it through the same pipeline as Generate.
	GenerateFromFlow(ctx context.Context, graph models.FlowGraph, opts models.GenerateOptions) (*models.Artifact, error)
	ValidateFlow(graph models.FlowGraph, strict bool) flowgraph.Result
}

type generationService struct {
	catalog CatalogService
	cache   *cache.TieredCache
	history repositories.HistoryRepository
	logger  *zap.Logger
}

// NewGenerationService creates a new GenerationService. The cache may be nil,
// which disables artifact memoization; history may be nil, which disables
// generation records.
func NewGenerationService(
	catalog CatalogService,
	tiered *cache.TieredCache,
	history repositories.HistoryRepository,
	logger *zap.Logger,
) GenerationService {
	return &generationService{
		catalog: catalog,
		cache:   tiered,
		history: history,
		logger:  logger.Named("generation"),
	}
}

var _ GenerationService = (*generationService)(nil)

func (s *generationService) Generate(ctx context.Context, req models.GenerateRequest) (*models.Artifact, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	trace := newTracer(req.Options.IncludeDebug)

	key, err := cache.Fingerprint(req)
	if err != nil {
		return nil, err
	}
	trace.step("fingerprint", key)

	if s.cache == nil {
		artifact, err := s.compile(ctx, req, trace)
		if err != nil {
			return nil, err
		}
		return s.finish(ctx, req, artifact, trace), nil
	}

	var fresh *models.Artifact
	raw, cached, err := s.cache.GetOrCompute(ctx, key, cache.ClassHQL, cache.Dependencies(req), func() ([]byte, error) {
		trace.step("cache", "miss")
		artifact, err := s.compile(ctx, req, trace)
		if err != nil {
			return nil, err
		}
		fresh = artifact
		return json.Marshal(artifact)
	})
	if err != nil {
		return nil, err
	}

	if !cached {
		return s.finish(ctx, req, fresh, trace), nil
	}

	var artifact models.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		s.logger.Warn("Discarding undecodable cached artifact", zap.String("key", key))
		recompiled, err := s.compile(ctx, req, trace)
		if err != nil {
			return nil, err
		}
		if enc, err := json.Marshal(recompiled); err == nil {
			s.cache.Set(ctx, key, enc, cache.ClassHQL, cache.Dependencies(req))
		}
		return s.finish(ctx, req, recompiled, trace), nil
	}

	artifact.Cached = true
	trace.step("cache", "hit")
	artifact.Debug = trace.attach(artifact.Debug)
	s.logger.Debug("Serving cached artifact", zap.String("key", key))
	return &artifact, nil
}

// finish records history for a freshly compiled artifact and attaches the
// debug trace.
func (s *generationService) finish(ctx context.Context, req models.GenerateRequest, artifact *models.Artifact, trace *tracer) *models.Artifact {
	s.recordHistory(ctx, req, artifact)
	artifact.Debug = trace.attach(artifact.Debug)
	return artifact
}

func (s *generationService) GenerateFromFlow(ctx context.Context, graph models.FlowGraph, opts models.GenerateOptions) (*models.Artifact, error) {
	req, err := requestFromFlow(graph, opts)
	if err != nil {
		return nil, err
	}
	return s.Generate(ctx, *req)
}

func (s *generationService) ValidateFlow(graph models.FlowGraph, strict bool) flowgraph.Result {
	return flowgraph.Validate(graph, flowgraph.Options{Strict: strict})
}

// compile runs the uncached pipeline: resolve, compile per event, assemble.
func (s *generationService) compile(ctx context.Context, req models.GenerateRequest, trace *tracer) (*models.Artifact, error) {
	resolved, err := s.catalog.ResolveEvents(ctx, req.Events)
	if err != nil {
		return nil, err
	}
	trace.step("resolve", fmt.Sprintf("%d events", len(resolved)))
	for _, r := range resolved {
		trace.event(fmt.Sprintf("%d/%s -> %s", r.Event.GameGID, r.Event.Name, r.Event.SourceTable(r.Game.OdsDB)))
	}

	mode := req.Options.Mode
	if mode == "" {
		mode = hql.DefaultMode(len(resolved))
	}
	if mode == models.ModeJoin && len(req.Options.Joins) != len(resolved)-1 {
		return nil, apperrors.Validationf("join mode requires %d join specifications, got %d", len(resolved)-1, len(req.Options.Joins))
	}
	trace.step("mode", string(mode))

	queries := make([]hql.EventQuery, 0, len(resolved))
	for i, r := range resolved {
		fields := req.Fields
		if len(req.EventFields) > 0 {
			if len(req.EventFields) != len(req.Events) {
				return nil, apperrors.Validationf("event_fields must carry one field list per event")
			}
			fields = req.EventFields[i]
		}

		resolver := func(name string) *models.ParamTemplate { return r.Templates[name] }

		compiled := make([]hql.CompiledField, 0, len(fields))
		for _, f := range fields {
			cf, err := hql.CompileField(f, templateFor(f, r.Templates))
			if err != nil {
				return nil, fmt.Errorf("event %q: %w", r.Event.Name, err)
			}
			trace.field(fmt.Sprintf("%s: %s", r.Event.Name, cf.SelectExpr()))
			compiled = append(compiled, cf)
		}

		preds, hasDS, err := hql.CompileConditions(req.WhereConditions, resolver)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", r.Event.Name, err)
		}
		for _, p := range preds {
			trace.condition(p.SQL)
		}

		queries = append(queries, hql.EventQuery{
			Event:       *r.Event,
			OdsDB:       r.Game.OdsDB,
			Fields:      compiled,
			Predicates:  preds,
			CustomWhere: req.Options.CustomWhere,
			HasDSFilter: hasDS,
		})
	}
	trace.step("compile", fmt.Sprintf("%d queries", len(queries)))

	text, err := hql.Assemble(mode, queries, req.Options.Joins, req.Options.Output)
	if err != nil {
		return nil, err
	}
	trace.step("assemble", logging.SanitizeHQL(text))

	sources := make(map[string]string, len(resolved))
	for _, r := range resolved {
		sources[r.Event.Name] = r.Event.SourceTable(r.Game.OdsDB)
	}

	return &models.Artifact{
		HQL:         text,
		ViewName:    viewName(req.Options.Output, resolved[0]),
		SourceTable: sources,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// recordHistory appends a generation record. Failures are logged and never
// fail the generation itself.
func (s *generationService) recordHistory(ctx context.Context, req models.GenerateRequest, artifact *models.Artifact) {
	if s.history == nil {
		return
	}

	events, _ := json.Marshal(req.Events)
	fields, _ := json.Marshal(req.Fields)
	conditions, _ := json.Marshal(req.WhereConditions)

	mode := req.Options.Mode
	if mode == "" {
		mode = hql.DefaultMode(len(req.Events))
	}

	record := &models.HQLHistory{
		UserID:         req.Options.UserID,
		SessionID:      req.Options.SessionID,
		EventsJSON:     string(events),
		FieldsJSON:     string(fields),
		ConditionsJSON: string(conditions),
		Mode:           string(mode),
		HQL:            artifact.HQL,
	}
	if err := s.history.Append(ctx, record); err != nil {
		s.logger.Warn("Failed to record generation history", zap.Error(err))
	}
}

func validateRequest(req models.GenerateRequest) error {
	if len(req.Events) == 0 {
		return apperrors.Validationf("at least one event is required")
	}
	if len(req.EventFields) > 0 && len(req.EventFields) != len(req.Events) {
		return apperrors.Validationf("event_fields must carry one field list per event")
	}
	for _, f := range req.Fields {
		if f.FieldName == "" && f.FieldType != models.FieldTypeCustom && f.FieldType != models.FieldTypeFixed {
			return apperrors.Validationf("field name is required")
		}
	}
	return nil
}

// templateFor selects the parameter template backing a param field, nil for
// every other field type.
func templateFor(f models.FieldDescriptor, templates map[string]*models.ParamTemplate) *models.ParamTemplate {
	if f.FieldType != models.FieldTypeParam {
		return nil
	}
	return templates[f.FieldName]
}

func viewName(out *models.OutputSpec, first ResolvedEvent) string {
	if out != nil && out.Database != "" && out.TableName != "" {
		return fmt.Sprintf("%s.%s", out.Database, out.TableName)
	}
	return first.Event.TargetTable(first.Game.OdsDB)
}

// tracer accumulates an optional debug trace. A nil-receiver style disabled
// tracer keeps the pipeline free of include_debug conditionals.
type tracer struct {
	enabled bool
	started time.Time
	last    time.Time
	trace   models.DebugTrace
}

func newTracer(enabled bool) *tracer {
	now := time.Now()
	return &tracer{enabled: enabled, started: now, last: now}
}

func (t *tracer) step(name, detail string) {
	if !t.enabled {
		return
	}
	now := time.Now()
	t.trace.Steps = append(t.trace.Steps, models.DebugStep{
		Name:     name,
		Detail:   detail,
		Duration: now.Sub(t.last).String(),
	})
	t.last = now
}

func (t *tracer) event(s string) {
	if t.enabled {
		t.trace.Events = append(t.trace.Events, s)
	}
}

func (t *tracer) field(s string) {
	if t.enabled {
		t.trace.Fields = append(t.trace.Fields, s)
	}
}

func (t *tracer) condition(s string) {
	if t.enabled {
		t.trace.Conditions = append(t.trace.Conditions, s)
	}
}

// attach returns the accumulated trace, preferring an existing one from a
// cached artifact.
func (t *tracer) attach(existing *models.DebugTrace) *models.DebugTrace {
	if !t.enabled {
		return nil
	}
	if existing != nil {
		return existing
	}
	out := t.trace
	return &out
}

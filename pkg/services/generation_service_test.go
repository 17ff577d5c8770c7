package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/cache"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// mockCatalog implements CatalogService for generation tests; only
// ResolveEvents carries behavior.
type mockCatalog struct {
	resolved     map[int64]ResolvedEvent // event id -> resolution
	resolveCalls int
}

func newMockCatalog(resolved ...ResolvedEvent) *mockCatalog {
	m := &mockCatalog{resolved: map[int64]ResolvedEvent{}}
	for _, r := range resolved {
		m.resolved[r.Event.ID] = r
	}
	return m
}

func (m *mockCatalog) ResolveEvents(_ context.Context, refs []models.EventRef) ([]ResolvedEvent, error) {
	m.resolveCalls++
	if len(refs) == 0 {
		return nil, apperrors.Validationf("at least one event is required")
	}
	out := make([]ResolvedEvent, 0, len(refs))
	for _, ref := range refs {
		r, ok := m.resolved[ref.EventID]
		if !ok {
			return nil, apperrors.NotFoundf("event %d", ref.EventID)
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockCatalog) GetGame(context.Context, int64) (*models.Game, error)   { return nil, nil }
func (m *mockCatalog) ListGames(context.Context) ([]*models.Game, error)      { return nil, nil }
func (m *mockCatalog) CreateGame(context.Context, *models.Game) error         { return nil }
func (m *mockCatalog) RenameGame(context.Context, int64, string) error        { return nil }
func (m *mockCatalog) DeleteGame(context.Context, int64) error                { return nil }
func (m *mockCatalog) GetEvent(context.Context, int64) (*models.Event, error) { return nil, nil }
func (m *mockCatalog) ListEvents(context.Context, int64) ([]*models.Event, error) {
	return nil, nil
}
func (m *mockCatalog) CreateEvent(context.Context, *models.Event) error { return nil }
func (m *mockCatalog) DeleteEvent(context.Context, int64) error         { return nil }
func (m *mockCatalog) GetParameters(context.Context, int64) ([]*models.EventParam, error) {
	return nil, nil
}
func (m *mockCatalog) GetTemplate(context.Context, int64) (*models.ParamTemplate, error) {
	return nil, nil
}
func (m *mockCatalog) ListTemplates(context.Context) ([]*models.ParamTemplate, error) {
	return nil, nil
}
func (m *mockCatalog) CreateTemplate(context.Context, *models.ParamTemplate) error { return nil }
func (m *mockCatalog) AddParameter(context.Context, *models.EventParam) error      { return nil }
func (m *mockCatalog) DeleteParameter(context.Context, int64, int64) error         { return nil }
func (m *mockCatalog) LoadFlow(context.Context, uuid.UUID) (*models.Flow, error)   { return nil, nil }
func (m *mockCatalog) SaveFlow(context.Context, *models.Flow) error                { return nil }
func (m *mockCatalog) ListFlows(context.Context, int64) ([]*models.Flow, error)    { return nil, nil }
func (m *mockCatalog) DeleteFlow(context.Context, uuid.UUID) error                 { return nil }

var _ CatalogService = (*mockCatalog)(nil)

func loginResolution() ResolvedEvent {
	return ResolvedEvent{
		Event: &models.Event{ID: 1, GameGID: 123, Name: "role.login"},
		Game:  &models.Game{GID: 123, Name: "g", OdsDB: "ieu_ods"},
		Templates: map[string]*models.ParamTemplate{
			"level": {ID: 10, Name: "level", BaseType: models.BaseTypeInt},
		},
	}
}

func payResolution() ResolvedEvent {
	return ResolvedEvent{
		Event:     &models.Event{ID: 2, GameGID: 123, Name: "role.pay"},
		Game:      &models.Game{GID: 123, Name: "g", OdsDB: "ieu_ods"},
		Templates: map[string]*models.ParamTemplate{},
	}
}

func singleRequest() models.GenerateRequest {
	return models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 1}},
		Fields: []models.FieldDescriptor{
			{FieldName: "role_id", FieldType: models.FieldTypeBase},
			{FieldName: "level", FieldType: models.FieldTypeParam},
		},
	}
}

func TestGenerate_Single(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution()), nil, nil, zap.NewNop())

	artifact, err := svc.Generate(context.Background(), singleRequest())
	require.NoError(t, err)

	assert.Contains(t, artifact.HQL, "SELECT role_id,")
	assert.Contains(t, artifact.HQL, "CAST(get_json_object(params, '$.level') AS BIGINT) AS `level`")
	assert.Contains(t, artifact.HQL, "FROM ieu_ods.ods_123_all_view")
	assert.Contains(t, artifact.HQL, "WHERE ds = '${ds}' AND event = 'role.login'")
	assert.Equal(t, "ieu_cdm.v_dwd_123_role_login_di", artifact.ViewName)
	assert.Equal(t, "ieu_ods.ods_123_all_view", artifact.SourceTable["role.login"])
	assert.False(t, artifact.Cached)
	assert.Nil(t, artifact.Debug)
}

func TestGenerate_DefaultsToUnionForMultipleEvents(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	req := models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		Fields: []models.FieldDescriptor{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
	}

	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(artifact.HQL, "WITH event1 AS ("), artifact.HQL)
	assert.Equal(t, 1, strings.Count(artifact.HQL, "UNION ALL"))
}

func TestGenerate_PerEventFields(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	req := models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		EventFields: [][]models.FieldDescriptor{
			{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
			{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
		},
	}

	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, artifact.HQL, "role_id")
}

func TestGenerate_EventFieldsLengthMismatch(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	req := models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		EventFields: [][]models.FieldDescriptor{
			{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
		},
	}

	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGenerate_JoinRequiresMatchingSpecs(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	req := models.GenerateRequest{
		Events:  []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		Fields:  []models.FieldDescriptor{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
		Options: models.GenerateOptions{Mode: models.ModeJoin},
	}

	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	req.Options.Joins = []models.JoinSpec{{
		Type:       models.JoinInner,
		Conditions: []models.JoinCondition{{LeftField: "role_id", RightField: "role_id"}},
	}}
	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, artifact.HQL, "INNER JOIN")
}

func TestGenerate_NoEvents(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(), nil, nil, zap.NewNop())

	_, err := svc.Generate(context.Background(), models.GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGenerate_CachesArtifacts(t *testing.T) {
	catalog := newMockCatalog(loginResolution())
	tiered, err := cache.New(cache.DefaultConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	svc := NewGenerationService(catalog, tiered, nil, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Generate(ctx, singleRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Generate(ctx, singleRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.HQL, second.HQL, "cached artifact must carry identical HQL")
	assert.Equal(t, 1, catalog.resolveCalls, "cache hits must skip the pipeline")
}

func TestGenerate_CacheHitSkipsHistory(t *testing.T) {
	history := &mockHistoryRepo{}
	tiered, err := cache.New(cache.DefaultConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	svc := NewGenerationService(newMockCatalog(loginResolution()), tiered, history, zap.NewNop())
	ctx := context.Background()

	_, err = svc.Generate(ctx, singleRequest())
	require.NoError(t, err)
	_, err = svc.Generate(ctx, singleRequest())
	require.NoError(t, err)

	assert.Len(t, history.records, 1, "only fresh compilations are recorded")
}

func TestGenerate_EventOrderHitsSameEntry(t *testing.T) {
	catalog := newMockCatalog(loginResolution(), payResolution())
	tiered, err := cache.New(cache.DefaultConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	svc := NewGenerationService(catalog, tiered, nil, zap.NewNop())
	ctx := context.Background()

	req := models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		Fields: []models.FieldDescriptor{{FieldName: "role_id", FieldType: models.FieldTypeBase}},
	}
	_, err = svc.Generate(ctx, req)
	require.NoError(t, err)

	reordered := models.GenerateRequest{
		Events: []models.EventRef{{GID: 123, EventID: 2}, {GID: 123, EventID: 1}},
		Fields: req.Fields,
	}
	artifact, err := svc.Generate(ctx, reordered)
	require.NoError(t, err)
	assert.True(t, artifact.Cached, "event order must not shard the cache")
}

func TestGenerate_ReboundEventFieldsDoNotShareEntries(t *testing.T) {
	catalog := newMockCatalog(loginResolution(), payResolution())
	tiered, err := cache.New(cache.DefaultConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	svc := NewGenerationService(catalog, tiered, nil, zap.NewNop())
	ctx := context.Background()

	loginFields := []models.FieldDescriptor{
		{FieldName: "role_id", FieldType: models.FieldTypeBase},
		{FieldType: models.FieldTypeFixed, FixedValue: "login", Alias: "src"},
	}
	payFields := []models.FieldDescriptor{
		{FieldName: "role_id", FieldType: models.FieldTypeBase},
		{FieldType: models.FieldTypeFixed, FixedValue: "pay", Alias: "src"},
	}

	first, err := svc.Generate(ctx, models.GenerateRequest{
		Events:      []models.EventRef{{GID: 123, EventID: 1}, {GID: 123, EventID: 2}},
		EventFields: [][]models.FieldDescriptor{loginFields, payFields},
	})
	require.NoError(t, err)

	// Same events in swapped order with the same positional field lists is a
	// different query: role.login is now tagged 'pay'.
	second, err := svc.Generate(ctx, models.GenerateRequest{
		Events:      []models.EventRef{{GID: 123, EventID: 2}, {GID: 123, EventID: 1}},
		EventFields: [][]models.FieldDescriptor{loginFields, payFields},
	})
	require.NoError(t, err)

	assert.False(t, second.Cached, "different field bindings must not collide in the cache")
	assert.NotEqual(t, first.HQL, second.HQL)
}

func TestGenerate_InvalidationForcesRecompile(t *testing.T) {
	catalog := newMockCatalog(loginResolution())
	tiered, err := cache.New(cache.DefaultConfig(), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	svc := NewGenerationService(catalog, tiered, nil, zap.NewNop())
	ctx := context.Background()

	_, err = svc.Generate(ctx, singleRequest())
	require.NoError(t, err)

	tiered.InvalidateEvent(ctx, 1)

	artifact, err := svc.Generate(ctx, singleRequest())
	require.NoError(t, err)
	assert.False(t, artifact.Cached)
	assert.Equal(t, 2, catalog.resolveCalls)
}

func TestGenerate_RecordsHistory(t *testing.T) {
	history := &mockHistoryRepo{}
	svc := NewGenerationService(newMockCatalog(loginResolution()), nil, history, zap.NewNop())

	req := singleRequest()
	req.Options.UserID = "alice"
	req.Options.SessionID = "s-1"

	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, history.records, 1)
	record := history.records[0]
	assert.Equal(t, "alice", record.UserID)
	assert.Equal(t, "s-1", record.SessionID)
	assert.Equal(t, string(models.ModeSingle), record.Mode)
	assert.Equal(t, artifact.HQL, record.HQL)

	var events []models.EventRef
	require.NoError(t, json.Unmarshal([]byte(record.EventsJSON), &events))
	assert.Equal(t, req.Events, events)
}

func TestGenerate_HistoryFailureDoesNotFailGeneration(t *testing.T) {
	history := &mockHistoryRepo{appendErr: apperrors.ErrCache}
	svc := NewGenerationService(newMockCatalog(loginResolution()), nil, history, zap.NewNop())

	_, err := svc.Generate(context.Background(), singleRequest())
	assert.NoError(t, err, "history is best-effort")
}

func TestGenerate_DebugTrace(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution()), nil, nil, zap.NewNop())

	req := singleRequest()
	req.Options.IncludeDebug = true

	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, artifact.Debug)
	assert.NotEmpty(t, artifact.Debug.Steps)
	assert.NotEmpty(t, artifact.Debug.Fields)

	names := make([]string, 0, len(artifact.Debug.Steps))
	for _, s := range artifact.Debug.Steps {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "fingerprint")
	assert.Contains(t, names, "assemble")
}

func TestGenerate_OutputSpecOverridesViewName(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution()), nil, nil, zap.NewNop())

	req := singleRequest()
	req.Options.Output = &models.OutputSpec{Database: "ieu_cdm", TableName: "custom_view"}

	artifact, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ieu_cdm.custom_view", artifact.ViewName)
	assert.True(t, strings.HasPrefix(artifact.HQL, "CREATE OR REPLACE VIEW ieu_cdm.custom_view AS\n"), artifact.HQL)
}

func TestGenerateFromFlow(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	graph := models.FlowGraph{
		Nodes: []models.FlowNode{
			{ID: "src1", Type: models.NodeEventSource, Config: json.RawMessage(`{"gid": 123, "event_id": 1}`)},
			{ID: "src2", Type: models.NodeEventSource, Config: json.RawMessage(`{"gid": "123", "event_id": "2"}`)},
			{ID: "union", Type: models.NodeUnion},
			{ID: "out", Type: models.NodeOutput, Config: json.RawMessage(`{"database": "ieu_cdm", "table_name": "v_combined"}`)},
		},
		Edges: []models.FlowEdge{
			{Source: "src1", Target: "union"},
			{Source: "src2", Target: "union"},
			{Source: "union", Target: "out"},
		},
	}

	artifact, err := svc.GenerateFromFlow(context.Background(), graph, models.GenerateOptions{})
	require.NoError(t, err)
	assert.Contains(t, artifact.HQL, "UNION ALL")
	assert.Equal(t, "ieu_cdm.v_combined", artifact.ViewName)
}

func TestGenerateFromFlow_InvalidGraph(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(), nil, nil, zap.NewNop())

	graph := models.FlowGraph{
		Nodes: []models.FlowNode{
			{ID: "src", Type: models.NodeEventSource, Config: json.RawMessage(`{"gid": 123, "event_id": 1}`)},
		},
	}

	_, err := svc.GenerateFromFlow(context.Background(), graph, models.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGenerateFromFlow_ProcessAndJoinNodes(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(loginResolution(), payResolution()), nil, nil, zap.NewNop())

	graph := models.FlowGraph{
		Nodes: []models.FlowNode{
			{ID: "src1", Type: models.NodeEventSource, Config: json.RawMessage(`{"gid": 123, "event_id": 1, "fields": [{"field_name": "role_id", "field_type": "base"}]}`)},
			{ID: "src2", Type: models.NodeEventSource, Config: json.RawMessage(`{"gid": 123, "event_id": 2, "fields": [{"field_name": "role_id", "field_type": "base"}]}`)},
			{ID: "join", Type: models.NodeJoin, Config: json.RawMessage(`{"join_type": "LEFT", "conditions": [{"left_field": "role_id", "right_field": "role_id"}], "autoPartition": true}`)},
			{ID: "out", Type: models.NodeOutput},
		},
		Edges: []models.FlowEdge{
			{Source: "src1", Target: "join"},
			{Source: "src2", Target: "join"},
			{Source: "join", Target: "out"},
		},
	}

	artifact, err := svc.GenerateFromFlow(context.Background(), graph, models.GenerateOptions{})
	require.NoError(t, err)
	assert.Contains(t, artifact.HQL, "LEFT OUTER JOIN")
	assert.Contains(t, artifact.HQL, "a.ds = b.ds")
}

func TestValidateFlow(t *testing.T) {
	svc := NewGenerationService(newMockCatalog(), nil, nil, zap.NewNop())

	res := svc.ValidateFlow(models.FlowGraph{}, false)
	assert.False(t, res.Valid)

	graph := models.FlowGraph{
		Nodes: []models.FlowNode{
			{ID: "src", Type: models.NodeEventSource},
			{ID: "out", Type: models.NodeOutput},
		},
		Edges: []models.FlowEdge{{Source: "src", Target: "out"}},
	}
	res = svc.ValidateFlow(graph, false)
	assert.True(t, res.Valid)
}

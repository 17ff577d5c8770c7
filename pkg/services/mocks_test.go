package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/models"
)

// mockGameRepo implements repositories.GameRepository over a map keyed by gid.
type mockGameRepo struct {
	games       map[int64]*models.Game
	eventsByGID map[int64]bool
	listCalls   int
	createErr   error
}

func newMockGameRepo(games ...*models.Game) *mockGameRepo {
	m := &mockGameRepo{games: map[int64]*models.Game{}, eventsByGID: map[int64]bool{}}
	for _, g := range games {
		m.games[g.GID] = g
	}
	return m
}

func (m *mockGameRepo) Create(_ context.Context, game *models.Game) error {
	if m.createErr != nil {
		return m.createErr
	}
	game.ID = int64(len(m.games) + 1)
	m.games[game.GID] = game
	return nil
}

func (m *mockGameRepo) GetByGID(_ context.Context, gid int64) (*models.Game, error) {
	g, ok := m.games[gid]
	if !ok {
		return nil, apperrors.NotFoundf("game %d", gid)
	}
	return g, nil
}

func (m *mockGameRepo) List(_ context.Context) ([]*models.Game, error) {
	m.listCalls++
	out := make([]*models.Game, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockGameRepo) UpdateName(_ context.Context, gid int64, name string) error {
	g, ok := m.games[gid]
	if !ok {
		return apperrors.NotFoundf("game %d", gid)
	}
	g.Name = name
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gid int64) error {
	if _, ok := m.games[gid]; !ok {
		return apperrors.NotFoundf("game %d", gid)
	}
	delete(m.games, gid)
	return nil
}

func (m *mockGameRepo) HasEvents(_ context.Context, gid int64) (bool, error) {
	return m.eventsByGID[gid], nil
}

// mockEventRepo implements repositories.EventRepository over a map keyed by id.
type mockEventRepo struct {
	events    map[int64]*models.Event
	hasParams map[int64]bool
}

func newMockEventRepo(events ...*models.Event) *mockEventRepo {
	m := &mockEventRepo{events: map[int64]*models.Event{}, hasParams: map[int64]bool{}}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *mockEventRepo) Create(_ context.Context, event *models.Event) error {
	event.ID = int64(len(m.events) + 1)
	m.events[event.ID] = event
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, eventID int64) (*models.Event, error) {
	e, ok := m.events[eventID]
	if !ok {
		return nil, apperrors.NotFoundf("event %d", eventID)
	}
	return e, nil
}

func (m *mockEventRepo) GetByIDs(_ context.Context, eventIDs []int64) (map[int64]*models.Event, error) {
	out := map[int64]*models.Event{}
	for _, id := range eventIDs {
		if e, ok := m.events[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *mockEventRepo) ListByGID(_ context.Context, gid int64) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range m.events {
		if e.GameGID == gid {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Delete(_ context.Context, eventID int64) error {
	delete(m.events, eventID)
	return nil
}

func (m *mockEventRepo) HasParameters(_ context.Context, eventID int64) (bool, error) {
	return m.hasParams[eventID], nil
}

// mockParamRepo implements repositories.ParamRepository.
type mockParamRepo struct {
	templates map[int64]*models.ParamTemplate
	params    []*models.EventParam
}

func newMockParamRepo(templates ...*models.ParamTemplate) *mockParamRepo {
	m := &mockParamRepo{templates: map[int64]*models.ParamTemplate{}}
	for _, t := range templates {
		m.templates[t.ID] = t
	}
	return m
}

func (m *mockParamRepo) CreateTemplate(_ context.Context, tmpl *models.ParamTemplate) error {
	tmpl.ID = int64(len(m.templates) + 1)
	m.templates[tmpl.ID] = tmpl
	return nil
}

func (m *mockParamRepo) GetTemplate(_ context.Context, templateID int64) (*models.ParamTemplate, error) {
	t, ok := m.templates[templateID]
	if !ok {
		return nil, apperrors.NotFoundf("template %d", templateID)
	}
	return t, nil
}

func (m *mockParamRepo) ListTemplates(_ context.Context) ([]*models.ParamTemplate, error) {
	out := make([]*models.ParamTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockParamRepo) CreateParam(_ context.Context, param *models.EventParam) error {
	param.ID = int64(len(m.params) + 1)
	m.params = append(m.params, param)
	return nil
}

func (m *mockParamRepo) ListByEvent(_ context.Context, eventID int64) ([]*models.EventParam, error) {
	var out []*models.EventParam
	for _, p := range m.params {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockParamRepo) ListByEvents(_ context.Context, eventIDs []int64) ([]*models.EventParam, error) {
	want := map[int64]bool{}
	for _, id := range eventIDs {
		want[id] = true
	}
	var out []*models.EventParam
	for _, p := range m.params {
		if want[p.EventID] && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockParamRepo) TemplatesByIDs(_ context.Context, templateIDs []int64) (map[int64]*models.ParamTemplate, error) {
	out := map[int64]*models.ParamTemplate{}
	for _, id := range templateIDs {
		if t, ok := m.templates[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (m *mockParamRepo) DeleteParam(_ context.Context, paramID int64) error {
	for i, p := range m.params {
		if p.ID == paramID {
			m.params = append(m.params[:i], m.params[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFoundf("parameter %d", paramID)
}

// mockFlowRepo implements repositories.FlowRepository.
type mockFlowRepo struct {
	flows map[uuid.UUID]*models.Flow
}

func newMockFlowRepo() *mockFlowRepo {
	return &mockFlowRepo{flows: map[uuid.UUID]*models.Flow{}}
}

func (m *mockFlowRepo) Save(_ context.Context, flow *models.Flow) error {
	if flow.ID == uuid.Nil {
		flow.ID = uuid.New()
	}
	m.flows[flow.ID] = flow
	return nil
}

func (m *mockFlowRepo) GetByID(_ context.Context, flowID uuid.UUID) (*models.Flow, error) {
	f, ok := m.flows[flowID]
	if !ok {
		return nil, apperrors.NotFoundf("flow %s", flowID)
	}
	return f, nil
}

func (m *mockFlowRepo) ListByGID(_ context.Context, gid int64) ([]*models.Flow, error) {
	var out []*models.Flow
	for _, f := range m.flows {
		if f.GID == gid {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFlowRepo) Delete(_ context.Context, flowID uuid.UUID) error {
	if _, ok := m.flows[flowID]; !ok {
		return apperrors.NotFoundf("flow %s", flowID)
	}
	delete(m.flows, flowID)
	return nil
}

// mockHistoryRepo implements repositories.HistoryRepository, recording appends.
type mockHistoryRepo struct {
	records   []*models.HQLHistory
	appendErr error
}

func (m *mockHistoryRepo) Append(_ context.Context, record *models.HQLHistory) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockHistoryRepo) ListByUser(_ context.Context, userID string, _ int) ([]*models.HQLHistory, error) {
	var out []*models.HQLHistory
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) ListBySession(_ context.Context, sessionID string, _ int) ([]*models.HQLHistory, error) {
	var out []*models.HQLHistory
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// recordingObserver captures catalog mutations for assertions.
type recordingObserver struct {
	mutations []CatalogMutation
}

func (o *recordingObserver) OnCatalogMutated(_ context.Context, m CatalogMutation) {
	o.mutations = append(o.mutations, m)
}

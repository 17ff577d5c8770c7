package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/apperrors"
	"github.com/ieu-analytics/event2table/pkg/cache"
	"github.com/ieu-analytics/event2table/pkg/models"
	"github.com/ieu-analytics/event2table/pkg/repositories"
)

// MutationKind classifies a catalog mutation for cache invalidation.
type MutationKind string

const (
	MutationGame      MutationKind = "game"
	MutationEvent     MutationKind = "event"
	MutationParameter MutationKind = "parameter"
	MutationFlow      MutationKind = "flow"
)

// CatalogMutation is the domain event emitted after every catalog write.
type CatalogMutation struct {
	Kind     MutationKind
	GID      int64
	EntityID int64
}

// CatalogObserver receives catalog mutation events. Observer failures are
// logged and never fail the mutation itself.
type CatalogObserver interface {
	OnCatalogMutated(ctx context.Context, m CatalogMutation)
}

var (
	// paramNamePattern is the strict machine-name rule for parameters.
	paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// eventNamePattern allows dot-separated identifier segments, matching
	// machine names like role.online.
	eventNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// ResolvedEvent bundles everything the compiler needs to know about one event
// of a generation request.
type ResolvedEvent struct {
	Event     *models.Event
	Game      *models.Game
	Templates map[string]*models.ParamTemplate // param machine name -> template
}

// CatalogService is the read/write surface over the catalog store. Lookups
// return plain data; list lookups are served through the tiered cache.
type CatalogService interface {
	GetGame(ctx context.Context, gid int64) (*models.Game, error)
	ListGames(ctx context.Context) ([]*models.Game, error)
	CreateGame(ctx context.Context, game *models.Game) error
	RenameGame(ctx context.Context, gid int64, name string) error
	DeleteGame(ctx context.Context, gid int64) error

	GetEvent(ctx context.Context, eventID int64) (*models.Event, error)
	ListEvents(ctx context.Context, gid int64) ([]*models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, eventID int64) error

	GetParameters(ctx context.Context, eventID int64) ([]*models.EventParam, error)
	GetTemplate(ctx context.Context, templateID int64) (*models.ParamTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.ParamTemplate, error)
	CreateTemplate(ctx context.Context, tmpl *models.ParamTemplate) error
	AddParameter(ctx context.Context, param *models.EventParam) error
	DeleteParameter(ctx context.Context, eventID, paramID int64) error

	LoadFlow(ctx context.Context, flowID uuid.UUID) (*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
	ListFlows(ctx context.Context, gid int64) ([]*models.Flow, error)
	DeleteFlow(ctx context.Context, flowID uuid.UUID) error

	// ResolveEvents batch-resolves a generation request's event references
	// together with their games and parameter templates.
	ResolveEvents(ctx context.Context, refs []models.EventRef) ([]ResolvedEvent, error)
}

type catalogService struct {
	games     repositories.GameRepository
	events    repositories.EventRepository
	params    repositories.ParamRepository
	flows     repositories.FlowRepository
	cache     *cache.TieredCache
	observers []CatalogObserver
	logger    *zap.Logger
}

// NewCatalogService creates a new CatalogService. The cache may be nil, which
// disables list-lookup caching; observers are notified after every mutation.
func NewCatalogService(
	games repositories.GameRepository,
	events repositories.EventRepository,
	params repositories.ParamRepository,
	flows repositories.FlowRepository,
	tiered *cache.TieredCache,
	observers []CatalogObserver,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		games:     games,
		events:    events,
		params:    params,
		flows:     flows,
		cache:     tiered,
		observers: observers,
		logger:    logger.Named("catalog"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) GetGame(ctx context.Context, gid int64) (*models.Game, error) {
	return s.games.GetByGID(ctx, gid)
}

func (s *catalogService) ListGames(ctx context.Context) ([]*models.Game, error) {
	var games []*models.Game
	err := s.cachedList(ctx, cache.StaticPrefix+"games", cache.ClassStatic, &games, func() (any, error) {
		return s.games.List(ctx)
	})
	return games, err
}

func (s *catalogService) CreateGame(ctx context.Context, game *models.Game) error {
	if game.GID <= 0 {
		return apperrors.Validationf("gid must be a positive integer")
	}
	if game.Name == "" {
		return apperrors.Validationf("game name is required")
	}
	if game.OdsDB == "" {
		return apperrors.Validationf("ods_db is required")
	}

	if err := s.games.Create(ctx, game); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationGame, GID: game.GID, EntityID: game.ID})
	return nil
}

func (s *catalogService) RenameGame(ctx context.Context, gid int64, name string) error {
	if name == "" {
		return apperrors.Validationf("game name is required")
	}

	if err := s.games.UpdateName(ctx, gid, name); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationGame, GID: gid})
	return nil
}

func (s *catalogService) DeleteGame(ctx context.Context, gid int64) error {
	hasEvents, err := s.games.HasEvents(ctx, gid)
	if err != nil {
		return err
	}
	if hasEvents {
		return apperrors.Conflictf("game %d still has events", gid)
	}

	if err := s.games.Delete(ctx, gid); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationGame, GID: gid})
	return nil
}

func (s *catalogService) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	return s.events.GetByID(ctx, eventID)
}

func (s *catalogService) ListEvents(ctx context.Context, gid int64) ([]*models.Event, error) {
	var events []*models.Event
	key := fmt.Sprintf("%sevents:%d", cache.DynamicPrefix, gid)
	err := s.cachedList(ctx, key, cache.ClassDynamic, &events, func() (any, error) {
		return s.events.ListByGID(ctx, gid)
	})
	return events, err
}

func (s *catalogService) CreateEvent(ctx context.Context, event *models.Event) error {
	if !eventNamePattern.MatchString(event.Name) {
		return apperrors.Validationf("event name %q is not a valid machine name", event.Name)
	}
	// The owning game must exist; game_gid is the authoritative link.
	if _, err := s.games.GetByGID(ctx, event.GameGID); err != nil {
		return err
	}

	if err := s.events.Create(ctx, event); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationEvent, GID: event.GameGID, EntityID: event.ID})
	return nil
}

func (s *catalogService) DeleteEvent(ctx context.Context, eventID int64) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	hasParams, err := s.events.HasParameters(ctx, eventID)
	if err != nil {
		return err
	}
	if hasParams {
		return apperrors.Conflictf("event %d still has parameters", eventID)
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationEvent, GID: event.GameGID, EntityID: eventID})
	return nil
}

func (s *catalogService) GetParameters(ctx context.Context, eventID int64) ([]*models.EventParam, error) {
	var params []*models.EventParam
	key := fmt.Sprintf("%sparams:%d", cache.DynamicPrefix, eventID)
	err := s.cachedList(ctx, key, cache.ClassDynamic, &params, func() (any, error) {
		return s.params.ListByEvent(ctx, eventID)
	})
	return params, err
}

func (s *catalogService) GetTemplate(ctx context.Context, templateID int64) (*models.ParamTemplate, error) {
	return s.params.GetTemplate(ctx, templateID)
}

func (s *catalogService) ListTemplates(ctx context.Context) ([]*models.ParamTemplate, error) {
	var templates []*models.ParamTemplate
	err := s.cachedList(ctx, cache.StaticPrefix+"templates", cache.ClassStatic, &templates, func() (any, error) {
		return s.params.ListTemplates(ctx)
	})
	return templates, err
}

func (s *catalogService) CreateTemplate(ctx context.Context, tmpl *models.ParamTemplate) error {
	if tmpl.Name == "" {
		return apperrors.Validationf("template name is required")
	}
	if !tmpl.BaseType.Valid() {
		return apperrors.Validationf("unknown base type %q", tmpl.BaseType)
	}

	if err := s.params.CreateTemplate(ctx, tmpl); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidatePrefix(ctx, cache.StaticPrefix+"templates")
	}
	return nil
}

func (s *catalogService) AddParameter(ctx context.Context, param *models.EventParam) error {
	if !paramNamePattern.MatchString(param.Name) {
		return apperrors.Validationf("parameter name %q is not a valid machine name", param.Name)
	}

	event, err := s.events.GetByID(ctx, param.EventID)
	if err != nil {
		return err
	}
	if _, err := s.params.GetTemplate(ctx, param.TemplateID); err != nil {
		return err
	}

	if err := s.params.CreateParam(ctx, param); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationParameter, GID: event.GameGID, EntityID: param.EventID})
	return nil
}

func (s *catalogService) DeleteParameter(ctx context.Context, eventID, paramID int64) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	if err := s.params.DeleteParam(ctx, paramID); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationParameter, GID: event.GameGID, EntityID: eventID})
	return nil
}

func (s *catalogService) LoadFlow(ctx context.Context, flowID uuid.UUID) (*models.Flow, error) {
	return s.flows.GetByID(ctx, flowID)
}

func (s *catalogService) SaveFlow(ctx context.Context, flow *models.Flow) error {
	if flow.Name == "" {
		return apperrors.Validationf("flow name is required")
	}
	if _, err := s.games.GetByGID(ctx, flow.GID); err != nil {
		return err
	}

	if err := s.flows.Save(ctx, flow); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationFlow, GID: flow.GID})
	return nil
}

func (s *catalogService) ListFlows(ctx context.Context, gid int64) ([]*models.Flow, error) {
	return s.flows.ListByGID(ctx, gid)
}

func (s *catalogService) DeleteFlow(ctx context.Context, flowID uuid.UUID) error {
	flow, err := s.flows.GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if err := s.flows.Delete(ctx, flowID); err != nil {
		return err
	}
	s.notify(ctx, CatalogMutation{Kind: MutationFlow, GID: flow.GID})
	return nil
}

func (s *catalogService) ResolveEvents(ctx context.Context, refs []models.EventRef) ([]ResolvedEvent, error) {
	if len(refs) == 0 {
		return nil, apperrors.Validationf("at least one event is required")
	}

	eventIDs := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if ref.GID <= 0 || ref.EventID <= 0 {
			return nil, apperrors.Validationf("event references require positive gid and event_id")
		}
		eventIDs = append(eventIDs, ref.EventID)
	}

	events, err := s.events.GetByIDs(ctx, eventIDs)
	if err != nil {
		return nil, err
	}

	bindings, err := s.params.ListByEvents(ctx, eventIDs)
	if err != nil {
		return nil, err
	}

	templateIDs := make([]int64, 0, len(bindings))
	seen := map[int64]bool{}
	for _, b := range bindings {
		if !seen[b.TemplateID] {
			seen[b.TemplateID] = true
			templateIDs = append(templateIDs, b.TemplateID)
		}
	}
	templates, err := s.params.TemplatesByIDs(ctx, templateIDs)
	if err != nil {
		return nil, err
	}

	byEvent := make(map[int64]map[string]*models.ParamTemplate, len(refs))
	for _, b := range bindings {
		if byEvent[b.EventID] == nil {
			byEvent[b.EventID] = make(map[string]*models.ParamTemplate)
		}
		if tmpl, ok := templates[b.TemplateID]; ok {
			byEvent[b.EventID][b.Name] = tmpl
		}
	}

	resolved := make([]ResolvedEvent, 0, len(refs))
	for _, ref := range refs {
		event, ok := events[ref.EventID]
		if !ok {
			return nil, apperrors.NotFoundf("event %d", ref.EventID)
		}
		if event.GameGID != ref.GID {
			return nil, apperrors.Validationf("event %d belongs to game %d, not %d", ref.EventID, event.GameGID, ref.GID)
		}

		game, err := s.games.GetByGID(ctx, ref.GID)
		if err != nil {
			return nil, err
		}

		tmpls := byEvent[ref.EventID]
		if tmpls == nil {
			tmpls = map[string]*models.ParamTemplate{}
		}
		resolved = append(resolved, ResolvedEvent{Event: event, Game: game, Templates: tmpls})
	}

	return resolved, nil
}

// cachedList serves a repository list through the tiered cache, decoding the
// cached JSON into out. Cache failures fall back to the repository.
func (s *catalogService) cachedList(ctx context.Context, key string, class cache.Class, out any, load func() (any, error)) error {
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
			s.logger.Warn("Discarding undecodable catalog cache entry", zap.String("key", key))
		}
	}

	val, err := load()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode catalog list: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, raw, class, cache.Deps{})
	}
	return json.Unmarshal(raw, out)
}

// notify fans a mutation out to every observer. Observer errors cannot fail
// the mutation; the observers themselves log their failures.
func (s *catalogService) notify(ctx context.Context, m CatalogMutation) {
	for _, obs := range s.observers {
		obs.OnCatalogMutated(ctx, m)
	}
}

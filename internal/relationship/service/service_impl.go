package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/observability/metrics"
	"github.com/smallbiznis/hera/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/smallbiznis/hera/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errEdgeMoved means an edge was closed by someone else between read and
// write; the enclosing transaction is retried.
var errEdgeMoved = errors.New("relationship_edge_moved")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Orgs    orgdomain.Service
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	orgs    orgdomain.Service
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	retry   db.RetryPolicy
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("relationship.service"),
		repo:    p.Repo,
		orgs:    p.Orgs,
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		retry:   db.DefaultRetryPolicy(),
	}
}

func (s *service) Upsert(ctx context.Context, req domain.UpsertRequest) (*schema.Relationship, error) {
	if err := s.checkScope(ctx, req.ActorID, req.OrganizationID); err != nil {
		return nil, err
	}
	in, err := normalizeInput(domain.Input{
		ToEntityID:       req.ToEntityID,
		RelationshipType: req.RelationshipType,
		Data:             req.Data,
		SmartCode:        req.SmartCode,
	})
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "hera/relationship", "relationship.upsert",
		attribute.String("relationship_type", in.RelationshipType))
	rel, err := db.WithRetry(ctx, s.retry, isRetryable, s.onRetry(ctx, "upsert"), func() (*schema.Relationship, error) {
		var out *schema.Relationship
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = s.upsertTx(ctx, s.repo.WithTx(tx), req.OrganizationID, req.ActorID, req.FromEntityID, in, s.clock.Now())
			return err
		})
		return out, err
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordWrite(ctx, "core_relationships", "upsert")
	return rel, nil
}

func (s *service) List(ctx context.Context, req domain.ListRequest) ([]schema.Relationship, error) {
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.RelationshipType != "" {
		relType, ok := schema.NormalizeType(req.RelationshipType)
		if !ok {
			return nil, domain.ErrInvalidRelationshipType
		}
		req.RelationshipType = relType
	}
	rels, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	if rels == nil {
		rels = []schema.Relationship{}
	}
	return rels, nil
}

func (s *service) TransitionStatus(ctx context.Context, req domain.TransitionRequest) (*domain.Transition, error) {
	if err := s.checkScope(ctx, req.ActorID, req.OrganizationID); err != nil {
		return nil, err
	}
	if req.EntityID == 0 {
		return nil, domain.ErrInvalidEntity
	}
	if strings.TrimSpace(req.Status) == "" {
		return nil, domain.ErrInvalidStatus
	}
	status := smartcode.Segment(req.Status)

	code := req.SmartCode
	if strings.TrimSpace(code) == "" {
		code = domain.StatusEdgeSmartCode
	}
	code, err := smartcode.Check("smart_code", code)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "hera/relationship", "relationship.transition_status",
		attribute.String("status", status))
	result, err := db.WithRetry(ctx, s.retry, isRetryable, s.onRetry(ctx, "transition_status"), func() (*domain.Transition, error) {
		var out *domain.Transition
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = s.transitionTx(ctx, s.repo.WithTx(tx), req, status, code, s.clock.Now())
			return err
		})
		return out, err
	})
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusTransition(ctx, status, result.Changed)
	if result.Changed {
		s.metrics.RecordWrite(ctx, "core_relationships", "transition_status")
	}
	s.log.Info("status transition",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("entity_id", req.EntityID.String()),
		zap.String("status", status),
		zap.Bool("changed", result.Changed),
	)
	return result, nil
}

func (s *service) transitionTx(ctx context.Context, repo domain.Repository, req domain.TransitionRequest, status, code string, now time.Time) (*domain.Transition, error) {
	count, err := repo.CountEntities(ctx, req.OrganizationID, []snowflake.ID{req.EntityID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrNotFound
	}

	marker, err := s.ensureStatusEntity(ctx, repo, req.OrganizationID, req.ActorID, status, now)
	if err != nil {
		return nil, err
	}

	active, err := repo.ListActiveByType(ctx, req.OrganizationID, req.EntityID, schema.RelationshipHasStatus)
	if err != nil {
		return nil, err
	}
	for _, edge := range active {
		if edge.ToEntityID == marker.ID {
			return &domain.Transition{
				Current:        edge,
				StatusEntityID: marker.ID,
				Status:         status,
				Changed:        false,
			}, nil
		}
	}

	var previous *schema.Relationship
	for i := range active {
		closed, err := s.closeEdge(ctx, repo, active[i], req.ActorID, now, "status_changed")
		if err != nil {
			return nil, err
		}
		previous = closed
	}

	data := mergeData(nil, req.Data)
	data["status"] = status
	data["started_at"] = now.UTC().Format(time.RFC3339Nano)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		data["reason"] = reason
	}
	if previous != nil {
		data["previous_status_entity_id"] = previous.ToEntityID.String()
	}

	rel := schema.Relationship{
		ID:               s.genID.Generate(),
		OrganizationID:   req.OrganizationID,
		FromEntityID:     req.EntityID,
		ToEntityID:       marker.ID,
		RelationshipType: schema.RelationshipHasStatus,
		RelationshipData: data,
		IsActive:         true,
		SmartCode:        code,
		CreatedBy:        req.ActorID,
		UpdatedBy:        req.ActorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.Insert(ctx, rel); err != nil {
		return nil, err
	}

	return &domain.Transition{
		Current:        rel,
		Previous:       previous,
		StatusEntityID: marker.ID,
		Status:         status,
		Changed:        true,
	}, nil
}

func (s *service) ensureStatusEntity(ctx context.Context, repo domain.Repository, orgID, actorID snowflake.ID, status string, now time.Time) (*schema.Entity, error) {
	marker, err := repo.FindEntityByCode(ctx, orgID, domain.StatusEntityType, status)
	if err != nil {
		return nil, err
	}
	if marker != nil {
		return marker, nil
	}

	code := status
	entity := schema.Entity{
		ID:             s.genID.Generate(),
		OrganizationID: orgID,
		EntityType:     domain.StatusEntityType,
		EntityName:     status,
		EntityCode:     &code,
		SmartCode:      domain.StatusEntitySmartCode,
		Status:         schema.EntityStatusActive,
		CreatedBy:      actorID,
		UpdatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// A concurrent creator wins the unique index; the retry picks its row up.
	if err := repo.InsertEntity(ctx, entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (s *service) History(ctx context.Context, req domain.HistoryRequest) ([]schema.Relationship, error) {
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.EntityID == 0 {
		return nil, domain.ErrInvalidEntity
	}
	relType := schema.RelationshipHasStatus
	if req.RelationshipType != "" {
		normalized, ok := schema.NormalizeType(req.RelationshipType)
		if !ok {
			return nil, domain.ErrInvalidRelationshipType
		}
		relType = normalized
	}

	count, err := s.repo.CountEntities(ctx, req.OrganizationID, []snowflake.ID{req.EntityID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrNotFound
	}

	return s.List(ctx, domain.ListRequest{
		OrganizationID:   req.OrganizationID,
		FromEntityID:     req.EntityID,
		RelationshipType: relType,
		IncludeInactive:  true,
	})
}

func (s *service) Close(ctx context.Context, req domain.CloseRequest) (*schema.Relationship, error) {
	if err := s.checkScope(ctx, req.ActorID, req.OrganizationID); err != nil {
		return nil, err
	}
	if req.RelationshipID == 0 {
		return nil, domain.ErrNotFound
	}

	var out *schema.Relationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rel, err := repo.FindByID(ctx, req.OrganizationID, req.RelationshipID)
		if err != nil {
			return err
		}
		if rel == nil {
			return domain.ErrNotFound
		}
		if !rel.IsActive {
			out = rel
			return nil
		}
		out, err = s.closeEdge(ctx, repo, *rel, req.ActorID, s.clock.Now(), strings.TrimSpace(req.Reason))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordWrite(ctx, "core_relationships", "close")
	return out, nil
}

func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, req domain.ApplyRequest) ([]schema.Relationship, error) {
	if req.ActorID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	mode := domain.Mode(strings.ToUpper(strings.TrimSpace(string(req.Mode))))
	if mode == "" {
		mode = domain.ModeUpsert
	}
	if mode != domain.ModeUpsert && mode != domain.ModeReplace {
		return nil, domain.ErrInvalidMode
	}

	items := make([]domain.Input, 0, len(req.Items))
	for _, item := range req.Items {
		in, err := normalizeInput(item)
		if err != nil {
			return nil, err
		}
		items = append(items, in)
	}

	repo := s.repo.WithTx(tx)
	now := s.clock.Now()

	if mode == domain.ModeReplace {
		keep := map[string]map[snowflake.ID]bool{}
		for _, in := range items {
			if keep[in.RelationshipType] == nil {
				keep[in.RelationshipType] = map[snowflake.ID]bool{}
			}
			keep[in.RelationshipType][in.ToEntityID] = true
		}
		for relType, targets := range keep {
			active, err := repo.ListActiveByType(ctx, req.OrganizationID, req.FromEntityID, relType)
			if err != nil {
				return nil, err
			}
			for _, edge := range active {
				if targets[edge.ToEntityID] {
					continue
				}
				if _, err := s.closeEdge(ctx, repo, edge, req.ActorID, now, "replaced"); err != nil {
					return nil, err
				}
			}
		}
	}

	out := make([]schema.Relationship, 0, len(items))
	for _, in := range items {
		rel, err := s.upsertTx(ctx, repo, req.OrganizationID, req.ActorID, req.FromEntityID, in, now)
		if err != nil {
			return nil, err
		}
		out = append(out, *rel)
	}
	return out, nil
}

func (s *service) upsertTx(ctx context.Context, repo domain.Repository, orgID, actorID, fromID snowflake.ID, in domain.Input, now time.Time) (*schema.Relationship, error) {
	if fromID == 0 || in.ToEntityID == 0 {
		return nil, domain.ErrInvalidEntity
	}
	if fromID == in.ToEntityID {
		return nil, domain.ErrSelfRelationship
	}

	count, err := repo.CountEntities(ctx, orgID, []snowflake.ID{fromID, in.ToEntityID})
	if err != nil {
		return nil, err
	}
	if count != 2 {
		return nil, domain.ErrNotFound
	}

	existing, err := repo.FindActiveEdge(ctx, orgID, fromID, in.ToEntityID, in.RelationshipType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if len(in.Data) == 0 {
			return existing, nil
		}
		merged := mergeData(existing.RelationshipData, in.Data)
		if err := repo.UpdateData(ctx, orgID, existing.ID, merged, actorID, now); err != nil {
			return nil, err
		}
		existing.RelationshipData = merged
		existing.UpdatedBy = actorID
		existing.UpdatedAt = now
		return existing, nil
	}

	if schema.IsExclusiveRelationship(in.RelationshipType) {
		active, err := repo.ListActiveByType(ctx, orgID, fromID, in.RelationshipType)
		if err != nil {
			return nil, err
		}
		for _, edge := range active {
			if _, err := s.closeEdge(ctx, repo, edge, actorID, now, "superseded"); err != nil {
				return nil, err
			}
		}
	}

	data := mergeData(nil, in.Data)
	data["started_at"] = now.UTC().Format(time.RFC3339Nano)
	rel := schema.Relationship{
		ID:               s.genID.Generate(),
		OrganizationID:   orgID,
		FromEntityID:     fromID,
		ToEntityID:       in.ToEntityID,
		RelationshipType: in.RelationshipType,
		RelationshipData: data,
		IsActive:         true,
		SmartCode:        in.SmartCode,
		CreatedBy:        actorID,
		UpdatedBy:        actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.Insert(ctx, rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (s *service) closeEdge(ctx context.Context, repo domain.Repository, edge schema.Relationship, actorID snowflake.ID, now time.Time, reason string) (*schema.Relationship, error) {
	data := mergeData(edge.RelationshipData, nil)
	data["ended_at"] = now.UTC().Format(time.RFC3339Nano)
	data["ended_by"] = actorID.String()
	if reason != "" {
		data["ended_reason"] = reason
	}

	affected, err := repo.Deactivate(ctx, edge.OrganizationID, edge.ID, data, actorID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, errEdgeMoved
	}

	edge.IsActive = false
	edge.RelationshipData = data
	edge.UpdatedBy = actorID
	edge.UpdatedAt = now
	return &edge, nil
}

func (s *service) checkScope(ctx context.Context, actorID, orgID snowflake.ID) error {
	if actorID == 0 {
		return domain.ErrInvalidActor
	}
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	return s.orgs.EnsureActive(ctx, orgID)
}

func (s *service) onRetry(ctx context.Context, operation string) func(error) {
	return func(err error) {
		s.metrics.RecordRetry(ctx, operation, metrics.ClassifySchedulerJobReason(err))
		s.log.Warn("retrying relationship write", zap.String("operation", operation), zap.Error(err))
	}
}

func normalizeInput(in domain.Input) (domain.Input, error) {
	code, err := smartcode.Check("smart_code", in.SmartCode)
	if err != nil {
		return in, err
	}
	relType, ok := schema.NormalizeType(in.RelationshipType)
	if !ok {
		return in, domain.ErrInvalidRelationshipType
	}
	in.SmartCode = code
	in.RelationshipType = relType
	return in, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, errEdgeMoved) || db.IsTransient(err) || db.IsDuplicateKeyErr(err)
}

func mergeData(base datatypes.JSONMap, patch map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

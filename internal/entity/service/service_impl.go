package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/observability/metrics"
	"github.com/smallbiznis/hera/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/hera/internal/organization/domain"
	relationshipdomain "github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/smallbiznis/hera/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Repo          domain.Repository
	Orgs          orgdomain.Service
	Relationships relationshipdomain.Service
	GenID         *snowflake.Node
	Clock         clock.Clock
	Metrics       *metrics.Metrics `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          domain.Repository
	orgs          orgdomain.Service
	relationships relationshipdomain.Service
	genID         *snowflake.Node
	clock         clock.Clock
	metrics       *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("entity.service"),
		repo:          p.Repo,
		orgs:          p.Orgs,
		relationships: p.Relationships,
		genID:         p.GenID,
		clock:         p.Clock,
		metrics:       p.Metrics,
	}
}

func (s *service) Execute(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	action := domain.Action(strings.ToUpper(strings.TrimSpace(string(req.Action))))

	ctx, span := tracing.StartSpan(ctx, "hera/entity", "entity.execute",
		attribute.String("action", string(action)))
	var (
		resp *domain.Response
		err  error
	)
	switch action {
	case domain.ActionCreate:
		resp, err = s.create(ctx, req)
	case domain.ActionRead:
		resp, err = s.read(ctx, req)
	case domain.ActionUpdate:
		resp, err = s.update(ctx, req)
	case domain.ActionDelete:
		resp, err = s.delete(ctx, req)
	default:
		err = domain.ErrInvalidAction
	}
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	resp.Action = action
	return resp, nil
}

func (s *service) create(ctx context.Context, req domain.Request) (*domain.Response, error) {
	entityType, ok := schema.NormalizeType(req.Entity.EntityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}
	name := strings.TrimSpace(req.Entity.EntityName)
	if name == "" {
		return nil, domain.ErrInvalidEntityName
	}
	code, err := smartcode.Check("entity.smart_code", req.Entity.SmartCode)
	if err != nil {
		return nil, err
	}
	fields, err := buildFields(req.DynamicFields)
	if err != nil {
		return nil, err
	}
	if err := checkRelationshipCodes(req.Relationships); err != nil {
		return nil, err
	}
	if err := s.orgs.EnsureActive(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	entityCode := trimCode(req.Entity.EntityCode)
	if entityCode == nil && req.Options.GenerateCode {
		generated := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
		entityCode = &generated
	}
	status := schema.EntityStatusActive
	if req.Entity.Status != nil && strings.TrimSpace(*req.Entity.Status) != "" {
		status = strings.ToLower(strings.TrimSpace(*req.Entity.Status))
	}

	now := s.clock.Now()
	entity := schema.Entity{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrganizationID,
		EntityType:     entityType,
		EntityName:     name,
		EntityCode:     entityCode,
		SmartCode:      code,
		Status:         status,
		Metadata:       datatypes.JSONMap(req.Entity.Metadata),
		CreatedBy:      req.ActorUserID,
		UpdatedBy:      req.ActorUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Insert(ctx, entity); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateEntityCode
			}
			return err
		}
		if err := s.writeFields(ctx, repo, entity.OrganizationID, entity.ID, req.ActorUserID, fields, now); err != nil {
			return err
		}
		if len(req.Relationships) > 0 {
			_, err := s.relationships.ApplyTx(ctx, tx, relationshipdomain.ApplyRequest{
				ActorID:        req.ActorUserID,
				OrganizationID: req.OrganizationID,
				FromEntityID:   entity.ID,
				Mode:           req.Options.RelationshipsMode,
				Items:          req.Relationships,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWrite(ctx, "core_entities", "create")
	s.log.Debug("entity created",
		zap.String("organization_id", entity.OrganizationID.String()),
		zap.String("entity_id", entity.ID.String()),
		zap.String("entity_type", entityType),
	)

	record, err := s.loadRecord(ctx, entity, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.Response{EntityID: entity.ID, Entity: record}, nil
}

func (s *service) read(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.Entity.ID != 0 {
		entity, err := s.repo.FindByID(ctx, req.OrganizationID, req.Entity.ID)
		if err != nil {
			return nil, err
		}
		// Ids owned by another organization are indistinguishable from unknown ids.
		if entity == nil {
			return nil, domain.ErrNotFound
		}
		record, err := s.loadRecord(ctx, *entity, req.Options)
		if err != nil {
			return nil, err
		}
		return &domain.Response{EntityID: entity.ID, Entity: record}, nil
	}

	filters := req.Options.Filters
	if filters.EntityType == "" {
		filters.EntityType = req.Entity.EntityType
	}
	entityType, ok := schema.NormalizeType(filters.EntityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}
	filters.EntityType = entityType
	filters.Status = strings.ToLower(strings.TrimSpace(filters.Status))
	if filters.EntityCode == "" && req.Entity.EntityCode != nil {
		filters.EntityCode = strings.TrimSpace(*req.Entity.EntityCode)
	}

	entities, err := s.repo.Find(ctx, req.OrganizationID, filters, domain.NormalizeLimit(req.Options.Limit))
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(entities))
	for _, entity := range entities {
		record, err := s.loadRecord(ctx, entity, req.Options)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return &domain.Response{Entities: records}, nil
}

func (s *service) update(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.Entity.ID == 0 {
		return nil, domain.ErrMissingEntityID
	}

	updates := map[string]any{}
	if req.Entity.EntityName != "" {
		name := strings.TrimSpace(req.Entity.EntityName)
		if name == "" {
			return nil, domain.ErrInvalidEntityName
		}
		updates["entity_name"] = name
	}
	if req.Entity.SmartCode != "" {
		code, err := smartcode.Check("entity.smart_code", req.Entity.SmartCode)
		if err != nil {
			return nil, err
		}
		updates["smart_code"] = code
	}
	if req.Entity.EntityCode != nil {
		updates["entity_code"] = trimCode(req.Entity.EntityCode)
	}
	if req.Entity.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Entity.Status))
		if status == "" {
			return nil, fmt.Errorf("%w: status must not be empty", domain.ErrInvalidField)
		}
		updates["status"] = status
	}
	fields, err := buildFields(req.DynamicFields)
	if err != nil {
		return nil, err
	}
	if err := checkRelationshipCodes(req.Relationships); err != nil {
		return nil, err
	}
	if err := s.orgs.EnsureActive(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var updated *schema.Entity
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, req.OrganizationID, req.Entity.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		if req.Entity.Metadata != nil {
			merged := datatypes.JSONMap{}
			for k, v := range current.Metadata {
				merged[k] = v
			}
			for k, v := range req.Entity.Metadata {
				merged[k] = v
			}
			updates["metadata"] = merged
		}
		if len(updates) > 0 {
			updates["updated_by"] = req.ActorUserID
			updates["updated_at"] = now
			if err := repo.Update(ctx, req.OrganizationID, current.ID, updates); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrDuplicateEntityCode
				}
				return err
			}
		}
		if err := s.writeFields(ctx, repo, req.OrganizationID, current.ID, req.ActorUserID, fields, now); err != nil {
			return err
		}
		if len(req.Relationships) > 0 {
			if _, err := s.relationships.ApplyTx(ctx, tx, relationshipdomain.ApplyRequest{
				ActorID:        req.ActorUserID,
				OrganizationID: req.OrganizationID,
				FromEntityID:   current.ID,
				Mode:           req.Options.RelationshipsMode,
				Items:          req.Relationships,
			}); err != nil {
				return err
			}
		}

		updated, err = repo.FindByID(ctx, req.OrganizationID, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWrite(ctx, "core_entities", "update")
	record, err := s.loadRecord(ctx, *updated, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.Response{EntityID: updated.ID, Entity: record}, nil
}

func (s *service) delete(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.Entity.ID == 0 {
		return nil, domain.ErrMissingEntityID
	}
	if err := s.orgs.EnsureActive(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	if req.Options.SoftDelete {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindByID(ctx, req.OrganizationID, req.Entity.ID)
			if err != nil {
				return err
			}
			if current == nil {
				return domain.ErrNotFound
			}
			return repo.Update(ctx, req.OrganizationID, current.ID, map[string]any{
				"status":     schema.EntityStatusArchived,
				"updated_by": req.ActorUserID,
				"updated_at": s.clock.Now(),
			})
		})
		if err != nil {
			return nil, err
		}
		s.metrics.RecordWrite(ctx, "core_entities", "archive")
		return &domain.Response{EntityID: req.Entity.ID, Archived: true}, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, req.OrganizationID, req.Entity.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		refs, err := repo.CountReferences(ctx, req.OrganizationID, current.ID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrEntityReferenced
		}
		if err := repo.DeleteFields(ctx, req.OrganizationID, current.ID); err != nil {
			return err
		}
		return repo.Delete(ctx, req.OrganizationID, current.ID)
	})
	if err != nil {
		if db.IsForeignKeyErr(err) {
			return nil, domain.ErrEntityReferenced
		}
		return nil, err
	}

	s.metrics.RecordWrite(ctx, "core_entities", "delete")
	s.log.Info("entity deleted",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("entity_id", req.Entity.ID.String()),
	)
	return &domain.Response{EntityID: req.Entity.ID, Deleted: true}, nil
}

func (s *service) writeFields(ctx context.Context, repo domain.Repository, orgID, entityID, actorID snowflake.ID, fields []schema.DynamicField, now time.Time) error {
	for _, field := range fields {
		row := stampField(field, s.genID.Generate(), orgID, entityID, actorID, now)
		if err := repo.UpsertField(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) loadRecord(ctx context.Context, entity schema.Entity, opts domain.Options) (*domain.Record, error) {
	record := &domain.Record{Entity: entity}
	if opts.IncludeDynamic {
		fields, err := s.repo.ListFields(ctx, entity.OrganizationID, []snowflake.ID{entity.ID})
		if err != nil {
			return nil, err
		}
		record.DynamicFields = fields
	}
	if opts.IncludeRelationships {
		rels, err := s.relationships.List(ctx, relationshipdomain.ListRequest{
			OrganizationID: entity.OrganizationID,
			FromEntityID:   entity.ID,
		})
		if err != nil {
			return nil, err
		}
		record.Relationships = rels
	}
	return record, nil
}

func buildFields(inputs []domain.DynamicFieldInput) ([]schema.DynamicField, error) {
	fields := make([]schema.DynamicField, 0, len(inputs))
	seen := map[string]bool{}
	for i, in := range inputs {
		field, err := buildField(i, in)
		if err != nil {
			return nil, err
		}
		if seen[field.FieldName] {
			return nil, fmt.Errorf("%w: %s supplied twice", domain.ErrInvalidField, field.FieldName)
		}
		seen[field.FieldName] = true
		fields = append(fields, field)
	}
	return fields, nil
}

func checkRelationshipCodes(inputs []relationshipdomain.Input) error {
	for i, in := range inputs {
		if _, err := smartcode.Check(fmt.Sprintf("relationships[%d].smart_code", i), in.SmartCode); err != nil {
			return err
		}
	}
	return nil
}

func trimCode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

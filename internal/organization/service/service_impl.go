package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/observability/metrics"
	"github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &service{
		db:      p.DB,
		log:     p.Log.Named("organization.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   clk,
		metrics: p.Metrics,
	}
}

func (s *service) Provision(ctx context.Context, req domain.ProvisionRequest) (*schema.Organization, error) {
	if req.ActorID == 0 {
		return nil, domain.ErrInvalidActor
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	now := s.clock.Now()
	org := schema.Organization{
		ID:               s.genID.Generate(),
		OrganizationName: name,
		OrganizationCode: code,
		Status:           schema.OrganizationStatusActive,
		Settings:         datatypes.JSONMap(req.Settings),
		CreatedBy:        req.ActorID,
		UpdatedBy:        req.ActorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, org); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	s.metrics.RecordWrite(ctx, "core_organizations", "create")

	s.log.Info("organization provisioned",
		zap.String("organization_id", org.ID.String()),
		zap.String("organization_code", code),
	)
	return &org, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*schema.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*schema.Organization, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	org, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) Deactivate(ctx context.Context, actorID, id snowflake.ID) error {
	if actorID == 0 {
		return domain.ErrInvalidActor
	}
	if id == 0 {
		return domain.ErrInvalidOrganization
	}
	affected, err := s.repo.UpdateStatus(ctx, id, schema.OrganizationStatusInactive, actorID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	s.metrics.RecordWrite(ctx, "core_organizations", "deactivate")
	s.log.Info("organization deactivated", zap.String("organization_id", id.String()))
	return nil
}

func (s *service) EnsureActive(ctx context.Context, id snowflake.ID) error {
	org, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if org.Status != schema.OrganizationStatusActive {
		return domain.ErrInactive
	}
	return nil
}

func (s *service) ListActive(ctx context.Context) ([]schema.Organization, error) {
	return s.repo.ListByStatus(ctx, schema.OrganizationStatusActive)
}

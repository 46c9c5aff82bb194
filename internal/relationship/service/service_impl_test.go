package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	orgrepository "github.com/smallbiznis/hera/internal/organization/repository"
	orgservice "github.com/smallbiznis/hera/internal/organization/service"
	"github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/relationship/repository"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/schema/schematest"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const actorID = snowflake.ID(42)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
	orgID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := schematest.Open(t)
	node := schematest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	orgs := orgservice.NewService(orgservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  orgrepository.NewRepository(db),
		GenID: node,
		Clock: clk,
	})
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.NewRepository(db),
		Orgs:  orgs,
		GenID: node,
		Clock: clk,
	})
	return &fixture{
		db:    db,
		node:  node,
		clock: clk,
		svc:   svc,
		orgID: schematest.SeedOrganization(t, db, node, "salon"),
	}
}

func (f *fixture) entity(t *testing.T, orgID snowflake.ID, entityType, name string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	err := f.db.Create(&schema.Entity{
		ID:             id,
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityName:     name,
		SmartCode:      "HERA.SALON.CRM.ENTITY.CUSTOMER.V1",
		Status:         schema.EntityStatusActive,
		CreatedBy:      actorID,
		UpdatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error
	require.NoError(t, err)
	return id
}

func TestTransitionStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appointment := f.entity(t, f.orgID, "APPOINTMENT", "Cut and color")

	first, err := f.svc.TransitionStatus(ctx, domain.TransitionRequest{
		ActorID: actorID, OrganizationID: f.orgID, EntityID: appointment, Status: "pending",
	})
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, "PENDING", first.Status)
	assert.Nil(t, first.Previous)

	f.clock.Advance(time.Minute)
	second, err := f.svc.TransitionStatus(ctx, domain.TransitionRequest{
		ActorID: actorID, OrganizationID: f.orgID, EntityID: appointment, Status: "CONFIRMED",
	})
	require.NoError(t, err)
	assert.True(t, second.Changed)
	require.NotNil(t, second.Previous)
	assert.False(t, second.Previous.IsActive)
	assert.Contains(t, second.Previous.RelationshipData, "ended_at")

	f.clock.Advance(time.Minute)
	third, err := f.svc.TransitionStatus(ctx, domain.TransitionRequest{
		ActorID: actorID, OrganizationID: f.orgID, EntityID: appointment, Status: "CONFIRMED",
	})
	require.NoError(t, err)
	assert.False(t, third.Changed)
	assert.Equal(t, second.Current.ID, third.Current.ID)

	history, err := f.svc.History(ctx, domain.HistoryRequest{OrganizationID: f.orgID, EntityID: appointment})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	assert.True(t, history[1].IsActive)
	assert.Equal(t, second.StatusEntityID, history[1].ToEntityID)

	active, err := f.svc.List(ctx, domain.ListRequest{
		OrganizationID: f.orgID, FromEntityID: appointment, RelationshipType: "has_status",
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.StatusEntityID, active[0].ToEntityID)
}

func TestTransitionStatusReusesMarkerEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.entity(t, f.orgID, "APPOINTMENT", "A")
	b := f.entity(t, f.orgID, "APPOINTMENT", "B")

	ra, err := f.svc.TransitionStatus(ctx, domain.TransitionRequest{ActorID: actorID, OrganizationID: f.orgID, EntityID: a, Status: "DONE"})
	require.NoError(t, err)
	rb, err := f.svc.TransitionStatus(ctx, domain.TransitionRequest{ActorID: actorID, OrganizationID: f.orgID, EntityID: b, Status: "done"})
	require.NoError(t, err)
	assert.Equal(t, ra.StatusEntityID, rb.StatusEntityID)

	var markers int64
	require.NoError(t, f.db.Model(&schema.Entity{}).Where("entity_type = ?", domain.StatusEntityType).Count(&markers).Error)
	assert.Equal(t, int64(1), markers)
}

func TestTransitionStatusCrossOrgIsNotFound(t *testing.T) {
	f := newFixture(t)
	other := schematest.SeedOrganization(t, f.db, f.node, "other")
	foreign := f.entity(t, other, "APPOINTMENT", "Foreign")

	_, err := f.svc.TransitionStatus(context.Background(), domain.TransitionRequest{
		ActorID: actorID, OrganizationID: f.orgID, EntityID: foreign, Status: "CONFIRMED",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertMergesDataAndRejectsBadSmartCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.entity(t, f.orgID, "PRODUCT", "Shampoo")
	branch := f.entity(t, f.orgID, "BRANCH", "Downtown")

	_, err := f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: product, ToEntityID: branch,
		RelationshipType: "AVAILABLE_AT", SmartCode: "HERA.BAD",
	})
	assert.ErrorIs(t, err, smartcode.ErrInvalid)

	first, err := f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: product, ToEntityID: branch,
		RelationshipType: "available_at", SmartCode: "HERA.SALON.INV.REL.AVAILABILITY.V1",
		Data: map[string]any{"shelf": "A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE_AT", first.RelationshipType)

	second, err := f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: product, ToEntityID: branch,
		RelationshipType: "AVAILABLE_AT", SmartCode: "HERA.SALON.INV.REL.AVAILABILITY.V1",
		Data: map[string]any{"min_stock": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "A1", second.RelationshipData["shelf"])
	assert.EqualValues(t, 4, second.RelationshipData["min_stock"])
}

func TestUpsertExclusiveTypeClosesPreviousEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	child := f.entity(t, f.orgID, "BRANCH", "Child")
	parentA := f.entity(t, f.orgID, "REGION", "North")
	parentB := f.entity(t, f.orgID, "REGION", "South")

	for _, parent := range []snowflake.ID{parentA, parentB} {
		_, err := f.svc.Upsert(ctx, domain.UpsertRequest{
			ActorID: actorID, OrganizationID: f.orgID, FromEntityID: child, ToEntityID: parent,
			RelationshipType: schema.RelationshipChildOf, SmartCode: "HERA.UNIVERSAL.ORG.REL.HIERARCHY.V1",
		})
		require.NoError(t, err)
	}

	all, err := f.svc.List(ctx, domain.ListRequest{OrganizationID: f.orgID, FromEntityID: child, IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[0].IsActive)
	assert.True(t, all[1].IsActive)
	assert.Equal(t, parentB, all[1].ToEntityID)
}

func TestUpsertRejectsSelfAndForeignEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.entity(t, f.orgID, "CUSTOMER", "A")
	other := schematest.SeedOrganization(t, f.db, f.node, "elsewhere")
	foreign := f.entity(t, other, "CUSTOMER", "B")

	_, err := f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: a, ToEntityID: a,
		RelationshipType: "REFERRED_BY", SmartCode: "HERA.SALON.CRM.REL.REFERRAL.V1",
	})
	assert.ErrorIs(t, err, domain.ErrSelfRelationship)

	_, err = f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: a, ToEntityID: foreign,
		RelationshipType: "REFERRED_BY", SmartCode: "HERA.SALON.CRM.REL.REFERRAL.V1",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseDeactivatesWithoutDeleting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.entity(t, f.orgID, "USER", "Ana")
	role := f.entity(t, f.orgID, "ROLE", "manager")

	rel, err := f.svc.Upsert(ctx, domain.UpsertRequest{
		ActorID: actorID, OrganizationID: f.orgID, FromEntityID: user, ToEntityID: role,
		RelationshipType: schema.RelationshipHasRole, SmartCode: "HERA.UNIVERSAL.AUTH.REL.ROLE.V1",
	})
	require.NoError(t, err)

	closed, err := f.svc.Close(ctx, domain.CloseRequest{ActorID: actorID, OrganizationID: f.orgID, RelationshipID: rel.ID, Reason: "left"})
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	assert.Equal(t, "left", closed.RelationshipData["ended_reason"])

	var count int64
	require.NoError(t, f.db.Model(&schema.Relationship{}).Where("id = ?", rel.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = f.svc.Close(ctx, domain.CloseRequest{ActorID: actorID, OrganizationID: f.orgID, RelationshipID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyTxReplaceClosesUnlistedTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stylist := f.entity(t, f.orgID, "EMPLOYEE", "Sam")
	branchA := f.entity(t, f.orgID, "BRANCH", "A")
	branchB := f.entity(t, f.orgID, "BRANCH", "B")
	code := "HERA.SALON.HR.REL.ASSIGNMENT.V1"

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyTx(ctx, tx, domain.ApplyRequest{
			ActorID: actorID, OrganizationID: f.orgID, FromEntityID: stylist,
			Items: []domain.Input{{ToEntityID: branchA, RelationshipType: "MEMBER_OF", SmartCode: code}},
		})
		return err
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyTx(ctx, tx, domain.ApplyRequest{
			ActorID: actorID, OrganizationID: f.orgID, FromEntityID: stylist, Mode: domain.ModeReplace,
			Items: []domain.Input{{ToEntityID: branchB, RelationshipType: "MEMBER_OF", SmartCode: code}},
		})
		return err
	})
	require.NoError(t, err)

	active, err := f.svc.List(ctx, domain.ListRequest{OrganizationID: f.orgID, FromEntityID: stylist})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, branchB, active[0].ToEntityID)
}

package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema/schematest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func grantRole(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID, actorID snowflake.ID, role string, active bool) {
	t.Helper()
	roleID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO core_entities (id, organization_id, entity_type, entity_name, entity_code, smart_code, status, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'HERA.UNIVERSAL.SECURITY.ROLE.DEFINE.V1', 'active', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		roleID, orgID, RoleEntityType, role, role,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO core_relationships (id, organization_id, from_entity_id, to_entity_id, relationship_type, is_active, smart_code, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'HAS_ROLE', ?, 'HERA.UNIVERSAL.SECURITY.ROLE.ASSIGN.V1', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		node.Generate(), orgID, actorID, roleID, active,
	).Error)
}

func newTestService(t *testing.T) (Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db := schematest.Open(t)
	node := schematest.Node(t)
	enforcer, err := NewEnforcer()
	require.NoError(t, err)
	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer}), db, node
}

func TestAuthorizeByRole(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	org := schematest.SeedOrganization(t, db, node, "org")
	accountant := schematest.SeedEntity(t, db, node, org, "USER", "Ann")
	viewer := schematest.SeedEntity(t, db, node, org, "USER", "Vic")
	grantRole(t, db, node, org, accountant, RoleAccountant, true)
	grantRole(t, db, node, org, viewer, RoleViewer, true)

	assert.NoError(t, svc.Authorize(ctx, org, accountant, ObjectPosting, ActionPost))
	assert.NoError(t, svc.Authorize(ctx, org, accountant, ObjectTransaction, ActionDelete))
	assert.NoError(t, svc.Authorize(ctx, org, accountant, ObjectEntity, ActionRead))
	assert.ErrorIs(t, svc.Authorize(ctx, org, accountant, ObjectEntity, ActionDelete), ErrForbidden)

	assert.NoError(t, svc.Authorize(ctx, org, viewer, ObjectTransaction, ActionRead))
	assert.ErrorIs(t, svc.Authorize(ctx, org, viewer, ObjectTransaction, ActionCreate), ErrForbidden)
}

func TestAuthorizeIgnoresClosedAndForeignRoles(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	orgA := schematest.SeedOrganization(t, db, node, "org-a")
	orgB := schematest.SeedOrganization(t, db, node, "org-b")
	actor := schematest.SeedEntity(t, db, node, orgA, "USER", "Ann")
	grantRole(t, db, node, orgA, actor, RoleOwner, false)
	grantRole(t, db, node, orgB, actor, RoleOwner, true)

	roles, err := svc.Roles(ctx, orgA, actor)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.ErrorIs(t, svc.Authorize(ctx, orgA, actor, ObjectEntity, ActionRead), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, orgB, actor, ObjectEntity, ActionDelete))
}

func TestAuthorizeValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.Authorize(ctx, 1, 0, ObjectEntity, ActionRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, 0, 1, ObjectEntity, ActionRead), ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Authorize(ctx, 1, 1, "", ActionRead), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, 1, 1, ObjectEntity, " "), ErrInvalidAction)
}

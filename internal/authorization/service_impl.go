package authorization

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/hera/internal/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer. Policies live in code; role
// assignments live in core_relationships.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, orgID, actorID snowflake.ID, object, action string) error {
	if actorID == 0 {
		return ErrInvalidActor
	}
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roles, err := s.Roles(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	for _, role := range roles {
		allowed, err := s.enforcer.Enforce("role:"+role, object, action)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	s.log.Debug("authorization denied",
		zap.String("organization_id", orgID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("object", object),
		zap.String("action", action),
		zap.Strings("roles", roles),
	)
	return ErrForbidden
}

func (s *ServiceImpl) Roles(ctx context.Context, orgID, actorID snowflake.ID) ([]string, error) {
	var rows []struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT r.entity_code AS role
		 FROM core_relationships rel
		 JOIN core_entities r
		   ON r.id = rel.to_entity_id AND r.organization_id = rel.organization_id
		 WHERE rel.organization_id = ?
		   AND rel.from_entity_id = ?
		   AND rel.relationship_type = ?
		   AND rel.is_active = ?
		   AND r.entity_type = ?
		 ORDER BY rel.created_at ASC`,
		orgID,
		actorID,
		schema.RelationshipHasRole,
		true,
		RoleEntityType,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		role := strings.ToLower(strings.TrimSpace(row.Role))
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectEntity, ActionRead},
		{"role:viewer", ObjectTransaction, ActionRead},
		{"role:viewer", ObjectRelationship, ActionRead},

		// Member permissions
		{"role:member", ObjectEntity, ActionCreate},
		{"role:member", ObjectEntity, ActionUpdate},
		{"role:member", ObjectTransaction, ActionCreate},
		{"role:member", ObjectTransaction, ActionUpdate},
		{"role:member", ObjectRelationship, ActionCreate},
		{"role:member", ObjectRelationship, ActionUpdate},

		// Accountant permissions
		{"role:accountant", ObjectTransaction, "*"},
		{"role:accountant", ObjectPosting, ActionPost},

		// Admin permissions
		{"role:admin", ObjectEntity, "*"},
		{"role:admin", ObjectRelationship, "*"},

		// Owner permissions
		{"role:owner", "*", "*"},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	inherits := [][]string{
		{"role:member", "role:viewer"},
		{"role:accountant", "role:member"},
		{"role:admin", "role:accountant"},
		{"role:owner", "role:admin"},
	}
	for _, rule := range inherits {
		if _, err := enforcer.AddGroupingPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}

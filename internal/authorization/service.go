package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	ObjectEntity       = "entity"
	ObjectTransaction  = "transaction"
	ObjectRelationship = "relationship"
	ObjectPosting      = "posting"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionPost   = "post"
)

// RoleEntityType is the entity type of role markers. A role's entity_code is
// its name; actors hold roles through active HAS_ROLE edges.
const RoleEntityType = "ROLE"

const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleMember     = "member"
	RoleViewer     = "viewer"
)

type Service interface {
	// Authorize fails with ErrForbidden unless one of the actor's roles in
	// the organization grants action on object.
	Authorize(ctx context.Context, orgID, actorID snowflake.ID, object, action string) error
	Roles(ctx context.Context, orgID, actorID snowflake.ID) ([]string, error)
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

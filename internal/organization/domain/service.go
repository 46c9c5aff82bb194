// Package domain defines the tenant boundary contract.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
)

type Service interface {
	Provision(ctx context.Context, req ProvisionRequest) (*schema.Organization, error)
	Get(ctx context.Context, id snowflake.ID) (*schema.Organization, error)
	GetByCode(ctx context.Context, code string) (*schema.Organization, error)
	Deactivate(ctx context.Context, actorID, id snowflake.ID) error
	// EnsureActive fails unless the organization exists and is active.
	EnsureActive(ctx context.Context, id snowflake.ID) error
	ListActive(ctx context.Context) ([]schema.Organization, error)
}

type ProvisionRequest struct {
	ActorID  snowflake.ID
	Name     string
	Code     string
	Settings map[string]any
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidCode         = errors.New("invalid_organization_code")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrNotFound            = errors.New("not_found")
	ErrInactive            = errors.New("organization_inactive")
	ErrDuplicateCode       = errors.New("duplicate_organization_code")
)

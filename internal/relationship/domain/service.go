// Package domain defines the relationship engine: typed, closeable edges
// between entities and the status workflow built on them.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
)

const (
	// StatusEntityType is the entity type of workflow status markers.
	StatusEntityType = "WORKFLOW_STATUS"

	StatusEntitySmartCode = "HERA.UNIVERSAL.WORKFLOW.STATUS.MARKER.V1"
	StatusEdgeSmartCode   = "HERA.UNIVERSAL.WORKFLOW.STATUS.ASSIGN.V1"
)

type Mode string

const (
	ModeUpsert  Mode = "UPSERT"
	ModeReplace Mode = "REPLACE"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*schema.Relationship, error)
	List(ctx context.Context, req ListRequest) ([]schema.Relationship, error)
	TransitionStatus(ctx context.Context, req TransitionRequest) (*Transition, error)
	History(ctx context.Context, req HistoryRequest) ([]schema.Relationship, error)
	Close(ctx context.Context, req CloseRequest) (*schema.Relationship, error)
	// ApplyTx writes edges for one source entity inside the caller's
	// transaction. The caller owns validation of the organization.
	ApplyTx(ctx context.Context, tx *gorm.DB, req ApplyRequest) ([]schema.Relationship, error)
}

type UpsertRequest struct {
	ActorID          snowflake.ID
	OrganizationID   snowflake.ID
	FromEntityID     snowflake.ID
	ToEntityID       snowflake.ID
	RelationshipType string
	Data             map[string]any
	SmartCode        string
}

// ListRequest filters edges. Zero ids and an empty type match anything.
type ListRequest struct {
	OrganizationID   snowflake.ID
	FromEntityID     snowflake.ID
	ToEntityID       snowflake.ID
	RelationshipType string
	IncludeInactive  bool
	Limit            int
}

type TransitionRequest struct {
	ActorID        snowflake.ID
	OrganizationID snowflake.ID
	EntityID       snowflake.ID
	Status         string
	Reason         string
	SmartCode      string
	Data           map[string]any
}

type Transition struct {
	Current        schema.Relationship  `json:"current"`
	Previous       *schema.Relationship `json:"previous,omitempty"`
	StatusEntityID snowflake.ID         `json:"status_entity_id"`
	Status         string               `json:"status"`
	Changed        bool                 `json:"changed"`
}

type HistoryRequest struct {
	OrganizationID   snowflake.ID
	EntityID         snowflake.ID
	RelationshipType string
}

type CloseRequest struct {
	ActorID        snowflake.ID
	OrganizationID snowflake.ID
	RelationshipID snowflake.ID
	Reason         string
}

type ApplyRequest struct {
	ActorID        snowflake.ID
	OrganizationID snowflake.ID
	FromEntityID   snowflake.ID
	Mode           Mode
	Items          []Input
}

type Input struct {
	ToEntityID       snowflake.ID   `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	Data             map[string]any `json:"relationship_data,omitempty"`
	SmartCode        string         `json:"smart_code"`
}

var (
	ErrInvalidActor            = errors.New("invalid_actor")
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrInvalidEntity           = errors.New("invalid_entity")
	ErrInvalidRelationshipType = errors.New("invalid_relationship_type")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidMode             = errors.New("invalid_relationships_mode")
	ErrSelfRelationship        = errors.New("self_relationship")
	ErrNotFound                = errors.New("not_found")
)

// Package domain defines the entity and dynamic-field store.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	relationshipdomain "github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/schema"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

const (
	defaultListLimit = 100
	MaxListLimit     = 1000
)

type Service interface {
	// Execute is the single versioned entry point for entity CRUD.
	Execute(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	Action         Action
	ActorUserID    snowflake.ID
	OrganizationID snowflake.ID
	Entity         EntityInput
	DynamicFields  []DynamicFieldInput
	Relationships  []relationshipdomain.Input
	Options        Options
}

// EntityInput carries entity columns. On UPDATE, zero values and nil
// pointers leave the stored column untouched.
type EntityInput struct {
	ID         snowflake.ID   `json:"id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityName string         `json:"entity_name,omitempty"`
	EntityCode *string        `json:"entity_code,omitempty"`
	SmartCode  string         `json:"smart_code,omitempty"`
	Status     *string        `json:"status,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DynamicFieldInput is one typed attribute. An empty FieldType is inferred
// from the value.
type DynamicFieldInput struct {
	FieldName string           `json:"field_name"`
	FieldType schema.FieldType `json:"field_type,omitempty"`
	Value     any              `json:"field_value"`
	SmartCode string           `json:"smart_code"`
}

type Options struct {
	IncludeDynamic       bool                    `json:"include_dynamic"`
	IncludeRelationships bool                    `json:"include_relationships"`
	RelationshipsMode    relationshipdomain.Mode `json:"relationships_mode,omitempty"`
	GenerateCode         bool                    `json:"generate_code,omitempty"`
	SoftDelete           bool                    `json:"soft_delete,omitempty"`
	Filters              Filters                 `json:"filters,omitempty"`
	Limit                int                     `json:"limit,omitempty"`
}

// Filters select entities on READ without an id. Field values match the
// dynamic-field column of the value's type.
type Filters struct {
	EntityType string         `json:"entity_type,omitempty"`
	EntityCode string         `json:"entity_code,omitempty"`
	Status     string         `json:"status,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Record is an entity with its optional dynamic fields and active edges.
type Record struct {
	schema.Entity
	DynamicFields []schema.DynamicField `json:"dynamic_fields,omitempty"`
	Relationships []schema.Relationship `json:"relationships,omitempty"`
}

type Response struct {
	Action   Action       `json:"action"`
	EntityID snowflake.ID `json:"entity_id,omitempty"`
	Entity   *Record      `json:"entity,omitempty"`
	Entities []Record     `json:"entities,omitempty"`
	Deleted  bool         `json:"deleted,omitempty"`
	Archived bool         `json:"archived,omitempty"`
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

var (
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEntityType   = errors.New("invalid_entity_type")
	ErrInvalidEntityName   = errors.New("invalid_entity_name")
	ErrInvalidField        = errors.New("invalid_field")
	ErrMissingEntityID     = errors.New("missing_entity_id")
	ErrNotFound            = errors.New("not_found")
	ErrEntityReferenced    = errors.New("entity_referenced")
	ErrDuplicateEntityCode = errors.New("duplicate_entity_code")
)

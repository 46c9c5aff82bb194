// Package schema holds the six tables every HERA record lives in. Business
// concepts are rows here, never new tables.
package schema

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrganizationStatus string

const (
	OrganizationStatusActive   OrganizationStatus = "active"
	OrganizationStatusInactive OrganizationStatus = "inactive"
)

// Organization is the tenant boundary.
type Organization struct {
	ID               snowflake.ID       `gorm:"primaryKey" json:"id"`
	OrganizationName string             `gorm:"type:text;not null" json:"organization_name"`
	OrganizationCode string             `gorm:"type:text;not null;uniqueIndex:ux_core_organizations_code" json:"organization_code"`
	Status           OrganizationStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	Settings         datatypes.JSONMap  `gorm:"type:json" json:"settings,omitempty"`
	CreatedBy        snowflake.ID       `gorm:"not null" json:"created_by"`
	UpdatedBy        snowflake.ID       `gorm:"not null" json:"updated_by"`
	CreatedAt        time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "core_organizations" }

const (
	EntityStatusActive   = "active"
	EntityStatusArchived = "archived"
)

// Entity is any business noun: customer, product, GL account, status marker.
type Entity struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID      `gorm:"not null;index:ix_core_entities_org_type,priority:1" json:"organization_id"`
	EntityType     string            `gorm:"type:text;not null;index:ix_core_entities_org_type,priority:2" json:"entity_type"`
	EntityName     string            `gorm:"type:text;not null" json:"entity_name"`
	EntityCode     *string           `gorm:"type:text" json:"entity_code,omitempty"`
	SmartCode      string            `gorm:"type:text;not null" json:"smart_code"`
	Status         string            `gorm:"type:text;not null;default:'active'" json:"status"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedBy      snowflake.ID      `gorm:"not null" json:"created_by"`
	UpdatedBy      snowflake.ID      `gorm:"not null" json:"updated_by"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Entity) TableName() string { return "core_entities" }

type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeJSON    FieldType = "json"
	FieldTypeDate    FieldType = "date"
)

// DynamicField is one typed attribute of an entity. Exactly one value column
// is populated, selected by FieldType.
type DynamicField struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID   `gorm:"not null;uniqueIndex:ux_core_dynamic_data_field,priority:1" json:"organization_id"`
	EntityID       snowflake.ID   `gorm:"not null;uniqueIndex:ux_core_dynamic_data_field,priority:2" json:"entity_id"`
	FieldName      string         `gorm:"type:text;not null;uniqueIndex:ux_core_dynamic_data_field,priority:3" json:"field_name"`
	FieldType      FieldType      `gorm:"type:text;not null" json:"field_type"`
	ValueText      *string        `gorm:"type:text" json:"value_text,omitempty"`
	ValueNumber    *float64       `json:"value_number,omitempty"`
	ValueBoolean   *bool          `json:"value_boolean,omitempty"`
	ValueJSON      datatypes.JSON `gorm:"column:value_json;type:json" json:"value_json,omitempty"`
	ValueDate      *time.Time     `json:"value_date,omitempty"`
	SmartCode      string         `gorm:"type:text;not null" json:"smart_code"`
	CreatedBy      snowflake.ID   `gorm:"not null" json:"created_by"`
	UpdatedBy      snowflake.ID   `gorm:"not null" json:"updated_by"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (DynamicField) TableName() string { return "core_dynamic_data" }

const (
	RelationshipHasStatus = "HAS_STATUS"
	RelationshipParentOf  = "PARENT_OF"
	RelationshipChildOf   = "CHILD_OF"
	RelationshipMemberOf  = "MEMBER_OF"
	RelationshipHasRole   = "HAS_ROLE"
)

// ExclusiveRelationshipTypes allow at most one active edge per (from, type).
var ExclusiveRelationshipTypes = []string{RelationshipHasStatus, RelationshipChildOf}

func IsExclusiveRelationship(relType string) bool {
	for _, t := range ExclusiveRelationshipTypes {
		if t == relType {
			return true
		}
	}
	return false
}

// Relationship is a directed, typed, closeable edge. Edges are closed by
// flipping IsActive, never deleted while history matters.
type Relationship struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID   snowflake.ID      `gorm:"not null;index:ix_core_relationships_from,priority:1;index:ix_core_relationships_to,priority:1" json:"organization_id"`
	FromEntityID     snowflake.ID      `gorm:"not null;index:ix_core_relationships_from,priority:2" json:"from_entity_id"`
	ToEntityID       snowflake.ID      `gorm:"not null;index:ix_core_relationships_to,priority:2" json:"to_entity_id"`
	RelationshipType string            `gorm:"type:text;not null;index:ix_core_relationships_from,priority:3" json:"relationship_type"`
	RelationshipData datatypes.JSONMap `gorm:"type:json" json:"relationship_data,omitempty"`
	IsActive         bool              `gorm:"not null" json:"is_active"`
	SmartCode        string            `gorm:"type:text;not null" json:"smart_code"`
	CreatedBy        snowflake.ID      `gorm:"not null" json:"created_by"`
	UpdatedBy        snowflake.ID      `gorm:"not null" json:"updated_by"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Relationship) TableName() string { return "core_relationships" }

type TransactionStatus string

const (
	TransactionStatusDraft     TransactionStatus = "draft"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPosted    TransactionStatus = "posted"
	TransactionStatusVoided    TransactionStatus = "voided"
)

const (
	TransactionTypeSale         = "sale"
	TransactionTypeJournalEntry = "journal_entry"
)

// Transaction is the header of a business event. Amounts are minor units.
type Transaction struct {
	ID                      snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID          snowflake.ID      `gorm:"not null;uniqueIndex:ux_universal_transactions_code,priority:1;index:ix_universal_transactions_org_date,priority:1" json:"organization_id"`
	TransactionType         string            `gorm:"type:text;not null;index:ix_universal_transactions_org_date,priority:2" json:"transaction_type"`
	TransactionCode         string            `gorm:"type:text;not null;uniqueIndex:ux_universal_transactions_code,priority:2" json:"transaction_code"`
	TransactionDate         time.Time         `gorm:"not null;index:ix_universal_transactions_org_date,priority:3" json:"transaction_date"`
	SmartCode               string            `gorm:"type:text;not null" json:"smart_code"`
	SourceEntityID          *snowflake.ID     `gorm:"index" json:"source_entity_id,omitempty"`
	TargetEntityID          *snowflake.ID     `gorm:"index" json:"target_entity_id,omitempty"`
	TotalAmount             int64             `gorm:"not null;default:0" json:"total_amount"`
	TransactionStatus       TransactionStatus `gorm:"type:text;not null" json:"transaction_status"`
	TransactionCurrencyCode string            `gorm:"type:text;not null" json:"transaction_currency_code"`
	Metadata                datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedBy               snowflake.ID      `gorm:"not null" json:"created_by"`
	UpdatedBy               snowflake.ID      `gorm:"not null" json:"updated_by"`
	CreatedAt               time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "universal_transactions" }

const (
	LineTypeService  = "service"
	LineTypeProduct  = "product"
	LineTypeTax      = "tax"
	LineTypeTip      = "tip"
	LineTypeDiscount = "discount"
	LineTypeGL       = "gl"
)

// TransactionLine is an ordered detail row. Line numbers are dense from 1.
type TransactionLine struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	TransactionID  snowflake.ID      `gorm:"not null;uniqueIndex:ux_universal_transaction_lines_number,priority:1" json:"transaction_id"`
	LineNumber     int               `gorm:"not null;uniqueIndex:ux_universal_transaction_lines_number,priority:2" json:"line_number"`
	LineType       string            `gorm:"type:text;not null" json:"line_type"`
	LineEntityID   *snowflake.ID     `gorm:"index" json:"line_entity_id,omitempty"`
	Quantity       float64           `gorm:"not null" json:"quantity"`
	UnitAmount     int64             `gorm:"not null;default:0" json:"unit_amount"`
	LineAmount     int64             `gorm:"not null;default:0" json:"line_amount"`
	DebitAmount    *int64            `json:"debit_amount,omitempty"`
	CreditAmount   *int64            `json:"credit_amount,omitempty"`
	SmartCode      string            `gorm:"type:text;not null" json:"smart_code"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedBy      snowflake.ID      `gorm:"not null" json:"created_by"`
	UpdatedBy      snowflake.ID      `gorm:"not null" json:"updated_by"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (TransactionLine) TableName() string { return "universal_transaction_lines" }

// Models lists the six tables in dependency order.
func Models() []any {
	return []any{
		&Organization{},
		&Entity{},
		&DynamicField{},
		&Relationship{},
		&Transaction{},
		&TransactionLine{},
	}
}

package schema

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// partialIndexes are the uniqueness guarantees GORM tags cannot express. They
// serialize concurrent writers on natural keys: entity codes, active edges and
// the single active edge of an exclusive relationship type.
func partialIndexes() []string {
	exclusive := make([]string, 0, len(ExclusiveRelationshipTypes))
	for _, t := range ExclusiveRelationshipTypes {
		exclusive = append(exclusive, "'"+t+"'")
	}
	return []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_core_entities_code
		 ON core_entities (organization_id, entity_type, entity_code)
		 WHERE entity_code IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_core_relationships_active_edge
		 ON core_relationships (organization_id, from_entity_id, to_entity_id, relationship_type)
		 WHERE is_active`,
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS ux_core_relationships_exclusive
		 ON core_relationships (organization_id, from_entity_id, relationship_type)
		 WHERE is_active AND relationship_type IN (%s)`, strings.Join(exclusive, ", ")),
	}
}

// AutoMigrate creates the six tables on dialects without SQL migrations
// (sqlite, mysql) and in tests. PostgreSQL uses internal/migration.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate universal schema: %w", err)
	}
	if db.Dialector.Name() == "mysql" {
		// mysql has no partial indexes; uniqueness falls back to the writers.
		return nil
	}
	for _, stmt := range partialIndexes() {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

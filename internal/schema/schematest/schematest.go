// Package schematest opens isolated in-memory databases with the universal
// schema applied.
package schematest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Open returns a fresh sqlite database. Each call gets its own named
// in-memory database so tests never share rows.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:hera_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := schema.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Node returns a snowflake generator for tests.
func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SeedOrganization inserts an active organization row and returns its id.
func SeedOrganization(t *testing.T, db *gorm.DB, node *snowflake.Node, code string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO core_organizations (id, organization_name, organization_code, status, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, 'active', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, code, code,
	).Error
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id
}

// SeedEntity inserts an active entity row and returns its id.
func SeedEntity(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, entityType, name string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO core_entities (id, organization_id, entity_type, entity_name, smart_code, status, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'HERA.UNIVERSAL.TEST.ENTITY.SEED.V1', 'active', 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, orgID, entityType, name,
	).Error
	if err != nil {
		t.Fatalf("seed entity: %v", err)
	}
	return id
}

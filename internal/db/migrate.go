package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := executeMigrationSQL(ctx, p, "pre-auto-migrate", preAutoMigrateSQL); err != nil {
		return err
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	if err := executeMigrationSQL(ctx, p, "post-auto-migrate", postAutoMigrateSQL); err != nil {
		return err
	}

	if p.dimensions > 0 {
		if err := executeMigrationSQL(ctx, p, "vector index", vectorIndexSQL(p.dimensions)); err != nil {
			return err
		}
	}
	return nil
}

// The embedding column is dimensionless; the index casts to the configured size.
func vectorIndexSQL(dimensions int) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS stories_embedding_hnsw_%d
	ON newsdesk.stories USING hnsw ((embedding::vector(%d)) vector_cosine_ops)
	WHERE embedding IS NOT NULL`, dimensions, dimensions)
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}

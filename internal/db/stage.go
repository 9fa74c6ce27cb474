package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// StageColumn is a column of the temporary staging table.
type StageColumn struct {
	Name string
	Type string
}

// StageConfig describes a staged insert: rows are copied into a temporary
// table, then moved into Table with one SELECT expression per target column.
type StageConfig struct {
	Table     string        // target table, optionally schema-qualified
	Stage     []StageColumn // staging columns, in row order
	Target    []string      // target columns
	Select    []string      // expressions over the staging columns, one per target column
	Delete    string        // optional predicate; matching target rows are deleted first
	DeleteArg []any
}

// StageInsert runs the staged insert in one transaction and returns the
// number of rows inserted into the target.
func StageInsert(ctx context.Context, pool Pool, cfg StageConfig, rows [][]any) (int64, error) {
	if len(cfg.Stage) == 0 {
		return 0, eris.New("db: stage: no staging columns")
	}
	if len(cfg.Target) == 0 || len(cfg.Target) != len(cfg.Select) {
		return 0, eris.Errorf("db: stage: %d target columns for %d select expressions", len(cfg.Target), len(cfg.Select))
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: stage: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := StageTable(cfg.Table)
	defs := make([]string, len(cfg.Stage))
	names := make([]string, len(cfg.Stage))
	for i, c := range cfg.Stage {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
		names[i] = c.Name
	}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: stage: create temp table for %s", cfg.Table)
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, names, pgx.CopyFromRows(rows)); err != nil {
			return 0, eris.Wrapf(err, "db: stage: COPY into temp table for %s", cfg.Table)
		}
	}

	if cfg.Delete != "" {
		deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s", Identifier(cfg.Table).Sanitize(), cfg.Delete)
		if _, err := tx.Exec(ctx, deleteSQL, cfg.DeleteArg...); err != nil {
			return 0, eris.Wrapf(err, "db: stage: delete from %s", cfg.Table)
		}
	}

	target := make([]string, len(cfg.Target))
	for i, c := range cfg.Target {
		target[i] = pgx.Identifier{c}.Sanitize()
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		Identifier(cfg.Table).Sanitize(),
		strings.Join(target, ", "),
		strings.Join(cfg.Select, ", "),
		pgx.Identifier{stage}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: stage: insert into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: stage: commit tx")
	}
	return tag.RowsAffected(), nil
}

// StageTable is the temporary table name used for a target table.
func StageTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

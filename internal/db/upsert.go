package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk merge into Table.
type UpsertConfig struct {
	Table        string   // optionally schema-qualified
	Columns      []string // columns present in every row
	ConflictKeys []string // unique key columns
	UpdateCols   []string // nil updates every non-key column
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	keys := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		keys[k] = true
	}
	var cols []string
	for _, col := range c.Columns {
		if !keys[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// stageTable names the temp table rows are copied into before the merge.
func (c UpsertConfig) stageTable() string {
	return "_stage_" + strings.ReplaceAll(c.Table, ".", "_")
}

// BulkUpsert copies rows into a temp staging table and merges them into the
// target with INSERT ... ON CONFLICT in one transaction. With no columns to
// update the merge becomes DO NOTHING, so existing rows are kept.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := cfg.stageTable()
	if _, err := tx.Exec(ctx, stageSQL(stage, cfg.Table)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}
	if _, err := CopyFrom(ctx, tx, stage, cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into stage for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(cfg, stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func stageSQL(stage, table string) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), sanitizeTable(table))
}

func mergeSQL(cfg UpsertConfig, stage string) string {
	cols := quoteAndJoin(cfg.Columns)
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		sanitizeTable(cfg.Table), cols, cols, pgx.Identifier{stage}.Sanitize(), quoteAndJoin(cfg.ConflictKeys))

	update := cfg.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, col := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{col}.Sanitize()
		b.WriteString(q + " = EXCLUDED." + q)
	}
	return b.String()
}

// sanitizeTable quotes a table name, splitting an optional schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

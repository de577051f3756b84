package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jinford/ato-loader/internal/platform/database"
)

// ResetSchema はスキーマを削除して作り直す。全データが消える
func ResetSchema(ctx context.Context, tx *database.TransactionProvider, schema string) error {
	if schema == "" {
		schema = "public"
	}
	ident := pgx.Identifier{schema}.Sanitize()

	_, err := database.Transact(ctx, tx, func(a *database.Adapter) (struct{}, error) {
		if _, err := a.Tx.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident)); err != nil {
			return struct{}{}, fmt.Errorf("failed to drop schema %s: %w", schema, err)
		}
		if _, err := a.Tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", ident)); err != nil {
			return struct{}{}, fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
		return struct{}{}, nil
	})
	return err
}

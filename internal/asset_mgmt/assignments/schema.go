package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"

	"ASSET-backend/internal/platform/db"
)

// 本番の MySQL は DBA 管理のマイグレーションが正。ここは dev/test 用の自動作成
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id          VARCHAR(32)  NOT NULL PRIMARY KEY,
		username    VARCHAR(64)  NOT NULL,
		role        VARCHAR(16)  NOT NULL,
		location    VARCHAR(32)  NOT NULL,
		is_disabled BOOLEAN      NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id          VARCHAR(26)  NOT NULL PRIMARY KEY,
		asset_code  VARCHAR(32)  NOT NULL UNIQUE,
		name        VARCHAR(128) NOT NULL,
		location    VARCHAR(32)  NOT NULL,
		state       VARCHAR(32)  NOT NULL,
		updated_at  {{ts}}       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id          VARCHAR(26)  NOT NULL PRIMARY KEY,
		asset_id    VARCHAR(26)  NOT NULL REFERENCES assets(id),
		assignee_id VARCHAR(32)  NOT NULL REFERENCES accounts(id),
		assigner_id VARCHAR(32)  NOT NULL REFERENCES accounts(id),
		assigned_on DATE         NOT NULL,
		note        VARCHAR(1024),
		state       VARCHAR(32)  NOT NULL,
		created_at  {{ts}}       NOT NULL,
		updated_at  {{ts}}       NOT NULL
	)`,
	`CREATE INDEX idx_assignments_asset ON assignments (asset_id)`,
	`CREATE INDEX idx_assignments_assignee ON assignments (assignee_id)`,
	`CREATE TABLE IF NOT EXISTS returning_requests (
		id              VARCHAR(26) NOT NULL PRIMARY KEY,
		assignment_id   VARCHAR(26) NOT NULL UNIQUE REFERENCES assignments(id),
		requested_by_id VARCHAR(32) NOT NULL REFERENCES accounts(id),
		accepted_by_id  VARCHAR(32) REFERENCES accounts(id),
		state           VARCHAR(32) NOT NULL,
		returned_on     DATE,
		created_at      {{ts}}      NOT NULL,
		updated_at      {{ts}}      NOT NULL
	)`,
}

func timestampType(d db.Dialect) string {
	switch d {
	case db.MySQL:
		return "DATETIME(6)"
	case db.Postgres:
		return "TIMESTAMPTZ"
	default:
		return "DATETIME"
	}
}

// EnsureSchema creates the lifecycle tables when they do not exist yet.
func EnsureSchema(ctx context.Context, conn *sql.DB, d db.Dialect) error {
	ts := timestampType(d)
	for _, stmt := range schemaStatements {
		q := strings.ReplaceAll(stmt, "{{ts}}", ts)
		index := strings.HasPrefix(q, "CREATE INDEX ")
		if index && d != db.MySQL {
			q = strings.Replace(q, "CREATE INDEX ", "CREATE INDEX IF NOT EXISTS ", 1)
		}
		if _, err := conn.ExecContext(ctx, q); err != nil {
			// MySQL に CREATE INDEX IF NOT EXISTS は無いので重複は無視する
			var me *mysql.MySQLError
			if index && errors.As(err, &me) && me.Number == 1061 {
				continue
			}
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

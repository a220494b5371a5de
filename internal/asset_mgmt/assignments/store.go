package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ASSET-backend/internal/platform/db"
)

// Store は割当・資産・返却申請のレコードストア。
// 全メソッドは db.DBTX を受け取り、呼び出し側のトランザクション内で動く。
// 見つからない場合は (nil, nil) を返す。
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB, d db.Dialect) *Store { return &Store{db: conn, dialect: d} }

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

// ---- Accounts ----

func (s *Store) GetAccount(ctx context.Context, q db.DBTX, id string) (*Account, error) {
	const query = `SELECT id, username, role, location, is_disabled FROM accounts WHERE id = ?`
	var a Account
	err := q.QueryRowContext(ctx, s.q(query), id).Scan(&a.ID, &a.Username, &a.Role, &a.Location, &a.IsDisabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAccount は開発用シードとテストで使う（アカウント管理自体は別サービス）
func (s *Store) InsertAccount(ctx context.Context, q db.DBTX, a *Account) error {
	const query = `INSERT INTO accounts (id, username, role, location, is_disabled) VALUES (?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, s.q(query), a.ID, a.Username, a.Role, a.Location, a.IsDisabled)
	return err
}

func (s *Store) SetAccountDisabled(ctx context.Context, q db.DBTX, id string, disabled bool) error {
	const query = `UPDATE accounts SET is_disabled = ? WHERE id = ?`
	_, err := q.ExecContext(ctx, s.q(query), disabled, id)
	return err
}

// ---- Assets ----

const assetColumns = `id, asset_code, name, location, state, updated_at`

func scanAsset(row *sql.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Location, &a.State, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAssetByID(ctx context.Context, q db.DBTX, id string) (*Asset, error) {
	return scanAsset(q.QueryRowContext(ctx, s.q(`SELECT `+assetColumns+` FROM assets WHERE id = ?`), id))
}

func (s *Store) GetAssetByCode(ctx context.Context, q db.DBTX, code string) (*Asset, error) {
	return scanAsset(q.QueryRowContext(ctx, s.q(`SELECT `+assetColumns+` FROM assets WHERE asset_code = ?`), code))
}

func (s *Store) InsertAsset(ctx context.Context, q db.DBTX, a *Asset) error {
	const query = `INSERT INTO assets (id, asset_code, name, location, state, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, s.q(query), a.ID, a.Code, a.Name, a.Location, a.State, a.UpdatedAt)
	return err
}

// SetAssetState は from 状態のときだけ to に変える。行が変わらなければ false。
func (s *Store) SetAssetState(ctx context.Context, q db.DBTX, id string, from, to AssetState, at time.Time) (bool, error) {
	const query = `UPDATE assets SET state = ?, updated_at = ? WHERE id = ? AND state = ?`
	res, err := q.ExecContext(ctx, s.q(query), to, at, id, from)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// ---- Assignments ----

const assignmentColumns = `id, asset_id, assignee_id, assigner_id, assigned_on, note, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.AssetID, &a.AssigneeID, &a.AssignerID, &a.AssignedOn, &a.Note, &a.State, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.AssignedOn = dateOnly(a.AssignedOn)
	return &a, nil
}

func (s *Store) GetAssignment(ctx context.Context, q db.DBTX, id string) (*Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx, s.q(`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) InsertAssignment(ctx context.Context, q db.DBTX, a *Assignment) error {
	const query = `
	INSERT INTO assignments
	(id, asset_id, assignee_id, assigner_id, assigned_on, note, state, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, s.q(query),
		a.ID, a.AssetID, a.AssigneeID, a.AssignerID, a.AssignedOn, nullStrOrNil(a.Note), a.State, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// UpdateAssignment は updated_at が prev のままの行だけ更新する（楽観ロック）
func (s *Store) UpdateAssignment(ctx context.Context, q db.DBTX, a *Assignment, prev time.Time) (bool, error) {
	const query = `
	UPDATE assignments
	SET asset_id = ?, assignee_id = ?, assigner_id = ?, assigned_on = ?, note = ?, state = ?, updated_at = ?
	WHERE id = ? AND updated_at = ?`
	res, err := q.ExecContext(ctx, s.q(query),
		a.AssetID, a.AssigneeID, a.AssignerID, a.AssignedOn, nullStrOrNil(a.Note), a.State, a.UpdatedAt,
		a.ID, prev,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (s *Store) DeleteAssignment(ctx context.Context, q db.DBTX, id string, prev time.Time) (bool, error) {
	const query = `DELETE FROM assignments WHERE id = ? AND updated_at = ?`
	res, err := q.ExecContext(ctx, s.q(query), id, prev)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// CountHoldingAssignments は資産を押さえている割当の数（不変条件の検査用）
func (s *Store) CountHoldingAssignments(ctx context.Context, q db.DBTX, assetID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignments WHERE asset_id = ? AND state IN (?, ?, ?)`
	var n int
	err := q.QueryRowContext(ctx, s.q(query), assetID, StateWaitingForAcceptance, StateAccepted, StateIsRequested).Scan(&n)
	return n, err
}

func (s *Store) ListAssignments(ctx context.Context, q db.DBTX, f AssignmentFilter, p Page) ([]Assignment, int64, error) {
	where := strings.Builder{}
	where.WriteString(` WHERE 1=1`)
	args := []any{}
	if f.State != nil {
		where.WriteString(` AND a.state = ?`)
		args = append(args, *f.State)
	}
	if f.AssigneeID != nil {
		where.WriteString(` AND a.assignee_id = ?`)
		args = append(args, *f.AssigneeID)
	}
	if f.AssetID != nil {
		where.WriteString(` AND a.asset_id = ?`)
		args = append(args, *f.AssetID)
	}
	if f.Location != nil {
		where.WriteString(` AND s.location = ?`)
		args = append(args, *f.Location)
	}
	if f.From != nil {
		where.WriteString(` AND a.assigned_on >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where.WriteString(` AND a.assigned_on < ?`)
		args = append(args, *f.To)
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	cols := strings.ReplaceAll("a."+assignmentColumns, ", ", ", a.")
	query := fmt.Sprintf(`SELECT %s FROM assignments a JOIN assets s ON s.id = a.asset_id%s ORDER BY a.assigned_on %s, a.id %s LIMIT ? OFFSET ?`,
		cols, where.String(), order, order)

	rows, err := q.QueryContext(ctx, s.q(query), append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	countQ := `SELECT COUNT(*) FROM assignments a JOIN assets s ON s.id = a.asset_id` + where.String()
	if err := q.QueryRowContext(ctx, s.q(countQ), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ---- Returning requests ----

const returningColumns = `id, assignment_id, requested_by_id, accepted_by_id, state, returned_on, created_at, updated_at`

func scanReturning(row *sql.Row) (*ReturningRequest, error) {
	var r ReturningRequest
	err := row.Scan(&r.ID, &r.AssignmentID, &r.RequestedByID, &r.AcceptedByID, &r.State, &r.ReturnedOn, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.ReturnedOn.Valid {
		r.ReturnedOn.Time = dateOnly(r.ReturnedOn.Time)
	}
	return &r, nil
}

func (s *Store) GetReturningRequest(ctx context.Context, q db.DBTX, id string) (*ReturningRequest, error) {
	return scanReturning(q.QueryRowContext(ctx, s.q(`SELECT `+returningColumns+` FROM returning_requests WHERE id = ?`), id))
}

func (s *Store) GetReturningRequestByAssignment(ctx context.Context, q db.DBTX, assignmentID string) (*ReturningRequest, error) {
	return scanReturning(q.QueryRowContext(ctx, s.q(`SELECT `+returningColumns+` FROM returning_requests WHERE assignment_id = ?`), assignmentID))
}

func (s *Store) InsertReturningRequest(ctx context.Context, q db.DBTX, r *ReturningRequest) error {
	const query = `
	INSERT INTO returning_requests
	(id, assignment_id, requested_by_id, accepted_by_id, state, returned_on, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, s.q(query),
		r.ID, r.AssignmentID, r.RequestedByID, nullStrOrNil(r.AcceptedByID), r.State, nullTimeOrNil(r.ReturnedOn), r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) CompleteReturningRequest(ctx context.Context, q db.DBTX, r *ReturningRequest) (bool, error) {
	const query = `
	UPDATE returning_requests
	SET state = ?, accepted_by_id = ?, returned_on = ?, updated_at = ?
	WHERE id = ? AND state = ?`
	res, err := q.ExecContext(ctx, s.q(query),
		r.State, nullStrOrNil(r.AcceptedByID), nullTimeOrNil(r.ReturnedOn), r.UpdatedAt,
		r.ID, ReturnWaiting,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (s *Store) DeleteReturningRequest(ctx context.Context, q db.DBTX, id string) (bool, error) {
	const query = `DELETE FROM returning_requests WHERE id = ? AND state = ?`
	res, err := q.ExecContext(ctx, s.q(query), id, ReturnWaiting)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// ---- helpers ----

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func nullTimeOrNil(nt sql.NullTime) any {
	if nt.Valid {
		return nt.Time
	}
	return nil
}

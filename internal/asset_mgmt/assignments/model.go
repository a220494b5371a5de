package assignments

import (
	"database/sql"
	"time"
)

type Role string

const (
	RoleRoot  Role = "root" // ロケーション制約を受けない
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

type AssetState string

const (
	AssetAvailable           AssetState = "AVAILABLE"
	AssetAssigned            AssetState = "ASSIGNED"
	AssetNotAvailable        AssetState = "NOT_AVAILABLE"
	AssetWaitingForRecycling AssetState = "WAITING_FOR_RECYCLING"
	AssetRecycled            AssetState = "RECYCLED"
)

type State string

const (
	StateWaitingForAcceptance State = "WAITING_FOR_ACCEPTANCE"
	StateAccepted             State = "ACCEPTED"
	StateDeclined             State = "DECLINED"
	StateIsRequested          State = "IS_REQUESTED"
	StateReturned             State = "RETURNED"
)

// holdsAsset: この状態の割当がある間、資産は ASSIGNED でなければならない
func (s State) holdsAsset() bool {
	return s == StateWaitingForAcceptance || s == StateAccepted || s == StateIsRequested
}

func (s State) editable() bool {
	return s == StateWaitingForAcceptance || s == StateDeclined
}

type ReturnState string

const (
	ReturnWaiting   ReturnState = "WAITING_FOR_RETURNING"
	ReturnCompleted ReturnState = "COMPLETED"
)

// Account は accounts テーブルの1行
type Account struct {
	ID         string // staff code
	Username   string
	Role       Role
	Location   string
	IsDisabled bool
}

// Asset は assets テーブルの1行
type Asset struct {
	ID        string
	Code      string
	Name      string
	Location  string
	State     AssetState
	UpdatedAt time.Time
}

// Assignment は assignments テーブルの1行
type Assignment struct {
	ID         string
	AssetID    string
	AssigneeID string
	AssignerID string
	AssignedOn time.Time // DATE
	Note       sql.NullString
	State      State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReturningRequest は returning_requests テーブルの1行
type ReturningRequest struct {
	ID            string
	AssignmentID  string
	RequestedByID string
	AcceptedByID  sql.NullString
	State         ReturnState
	ReturnedOn    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Caller は認証済みの呼び出し元
type Caller struct {
	ID       string
	Role     Role
	Location string
}

func (c Caller) elevated() bool { return c.Role == RoleRoot }

func (c Caller) admin() bool { return c.Role == RoleAdmin || c.Role == RoleRoot }

// 割当一覧の検索条件
type AssignmentFilter struct {
	State      *State
	AssigneeID *string
	AssetID    *string
	Location   *string // assets.location で絞る
	From       *time.Time
	To         *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

package assignments

import "time"

// DateLayout は assigned_on / returned_on の入出力形式
const DateLayout = "2006-01-02"

// ===== Requests =====

type CreateAssignmentRequest struct {
	AssetCode  string  `json:"asset_code" binding:"required"`
	AssigneeID string  `json:"assignee_id" binding:"required"`
	AssignedOn string  `json:"assigned_on" binding:"required"` // "2006-01-02"
	Note       *string `json:"note,omitempty"`
}

// 未指定の項目は変更しない。updated_at は前回取得した値（古ければ STALE_DATA）
type EditAssignmentRequest struct {
	AssetCode  *string    `json:"asset_code,omitempty"`
	AssigneeID *string    `json:"assignee_id,omitempty"`
	AssignedOn *string    `json:"assigned_on,omitempty"`
	Note       *string    `json:"note,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type RespondAssignmentRequest struct {
	Accept    *bool      `json:"accept" binding:"required"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type RequestReturnRequest struct {
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ResolveReturnRequest struct {
	Confirm *bool `json:"confirm" binding:"required"`
}

// ===== Responses =====

type AssignmentResponse struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	AssigneeID string    `json:"assignee_id"`
	AssignerID string    `json:"assigner_id"`
	AssignedOn string    `json:"assigned_on"`
	Note       *string   `json:"note,omitempty"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ReturningRequestResponse struct {
	ID            string      `json:"id"`
	AssignmentID  string      `json:"assignment_id"`
	RequestedByID string      `json:"requested_by_id"`
	AcceptedByID  *string     `json:"accepted_by_id,omitempty"`
	State         ReturnState `json:"state"`
	ReturnedOn    *string     `json:"returned_on,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type RequestReturnResult struct {
	Request    ReturningRequestResponse `json:"returning_request"`
	Assignment AssignmentResponse       `json:"assignment"`
}

// 取消の場合 Request は nil（行は削除される）
type ResolveReturnResult struct {
	Request    *ReturningRequestResponse `json:"returning_request,omitempty"`
	Assignment AssignmentResponse        `json:"assignment"`
	Cancelled  bool                      `json:"cancelled"`
}

type ListAssignmentsResult struct {
	Items      []AssignmentResponse `json:"items"`
	Total      int64                `json:"total"`
	NextOffset int                  `json:"next_offset"`
}

func toAssignmentResponse(a *Assignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:         a.ID,
		AssetID:    a.AssetID,
		AssigneeID: a.AssigneeID,
		AssignerID: a.AssignerID,
		AssignedOn: a.AssignedOn.Format(DateLayout),
		State:      a.State,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	if a.Note.Valid {
		v := a.Note.String
		resp.Note = &v
	}
	return resp
}

func toReturningResponse(r *ReturningRequest) ReturningRequestResponse {
	resp := ReturningRequestResponse{
		ID:            r.ID,
		AssignmentID:  r.AssignmentID,
		RequestedByID: r.RequestedByID,
		State:         r.State,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.AcceptedByID.Valid {
		v := r.AcceptedByID.String
		resp.AcceptedByID = &v
	}
	if r.ReturnedOn.Valid {
		v := r.ReturnedOn.Time.Format(DateLayout)
		resp.ReturnedOn = &v
	}
	return resp
}

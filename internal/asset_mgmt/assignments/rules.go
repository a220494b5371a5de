package assignments

import "time"

// operation names double as metric labels.
type operation string

const (
	opCreate        operation = "create"
	opEdit          operation = "edit"
	opRespond       operation = "respond"
	opRequestReturn operation = "request_return"
	opResolveReturn operation = "resolve_return"
	opDelete        operation = "delete"
)

// snapshot is everything a rule may look at. It is loaded inside the
// transaction after the assignment permit is held.
type snapshot struct {
	caller     Caller
	assigner   *Account // caller's own row, create/edit only
	assignee   *Account
	asset      *Asset
	assignment *Assignment
	request    *ReturningRequest

	assignedOn   time.Time
	earliestDate time.Time // start of yesterday, as a UTC date
	assetChanged bool
	dateChanged  bool
}

type rule struct {
	name  string
	check func(s *snapshot) *APIError
}

// Rules run in order and stop at the first violation; later rules rely on
// earlier ones (e.g. asset rules assume the asset was found).
var pipelines = map[operation][]rule{
	opCreate: {
		{"caller_is_admin", callerIsAdmin},
		{"assigner_active", assignerActive},
		{"assignee_active", assigneeActive},
		{"assignee_not_root", assigneeNotRoot},
		{"asset_exists", assetExists},
		{"asset_available", assetAvailable},
		{"not_same_user", notSameUser},
		{"assignee_same_location", assigneeSameLocation},
		{"asset_same_location", assetSameLocation},
		{"date_not_in_past", dateNotInPast},
	},
	opEdit: {
		{"caller_is_admin", callerIsAdmin},
		{"assignment_editable", assignmentEditable},
		{"assigner_active", assignerActive},
		{"assignee_active", assigneeActive},
		{"assignee_not_root", assigneeNotRoot},
		{"asset_exists", assetExists},
		{"asset_available", assetAvailable},
		{"not_same_user", notSameUser},
		{"assignee_same_location", assigneeSameLocation},
		{"asset_same_location", assetSameLocation},
		{"date_not_in_past", dateNotInPast},
	},
	opRespond: {
		{"caller_is_assignee", callerIsAssignee},
		{"assignment_waiting", assignmentWaiting},
		{"caller_same_location", callerSameLocation},
	},
	opRequestReturn: {
		{"caller_assignee_or_admin", callerAssigneeOrAdmin},
		{"assignment_accepted", assignmentAccepted},
	},
	opResolveReturn: {
		{"caller_is_admin", callerIsAdmin},
		{"admin_same_location", adminSameLocation},
		{"return_waiting", returnWaiting},
	},
	opDelete: {
		{"caller_is_admin", callerIsAdmin},
		{"assignment_deletable", assignmentDeletable},
		{"admin_same_location", adminSameLocation},
	},
}

// validate returns the first violated rule of op, or nil.
func validate(op operation, s *snapshot) *APIError {
	for _, r := range pipelines[op] {
		if err := r.check(s); err != nil {
			return err
		}
	}
	return nil
}

// ---------- account rules ----------

// ルートの RequireRole とは別に、Service を直接呼ぶ経路でもここで弾く
func callerIsAdmin(s *snapshot) *APIError {
	if !s.caller.admin() {
		return ErrRule(ReasonNotAdmin, "only admins can perform this operation")
	}
	return nil
}

func assignerActive(s *snapshot) *APIError {
	if s.assigner == nil || s.assigner.IsDisabled {
		return ErrRule(ReasonAssignerDisabled, "your account is disabled or no longer exists")
	}
	return nil
}

func assigneeActive(s *snapshot) *APIError {
	if s.assignee == nil {
		return ErrNotFound(ReasonAssigneeNotFound, "assignee not found")
	}
	if s.assignee.IsDisabled {
		return ErrRule(ReasonAssigneeDisabled, "assignee account is disabled")
	}
	return nil
}

func assigneeNotRoot(s *snapshot) *APIError {
	if s.assignee.Role == RoleRoot {
		return ErrRule(ReasonAssigneeIsRoot, "cannot assign to a root account")
	}
	return nil
}

func notSameUser(s *snapshot) *APIError {
	if s.assignee.ID == s.caller.ID {
		return ErrRule(ReasonSameUser, "cannot assign an asset to yourself")
	}
	return nil
}

func assigneeSameLocation(s *snapshot) *APIError {
	if !s.caller.elevated() && s.assignee.Location != s.caller.Location {
		return ErrRule(ReasonAssigneeLocation, "assignee not in same location")
	}
	return nil
}

// ---------- asset rules ----------

func assetExists(s *snapshot) *APIError {
	if s.asset == nil {
		return ErrNotFound(ReasonAssetNotFound, "asset not found")
	}
	return nil
}

// assetAvailable only applies when the assignment is taking a new asset. An
// unchanged asset on an edit is already held by this assignment.
func assetAvailable(s *snapshot) *APIError {
	if s.assetChanged && s.asset.State != AssetAvailable {
		return ErrRule(ReasonAssetNotAvailable, "asset is not available")
	}
	return nil
}

func assetSameLocation(s *snapshot) *APIError {
	if !s.caller.elevated() && s.asset.Location != s.caller.Location {
		return ErrRule(ReasonAssetLocation, "asset not in same location")
	}
	return nil
}

func dateNotInPast(s *snapshot) *APIError {
	if s.dateChanged && s.assignedOn.Before(s.earliestDate) {
		return ErrRule(ReasonDateInPast, "assigned date must not be earlier than yesterday")
	}
	return nil
}

// ---------- assignment rules ----------

func assignmentEditable(s *snapshot) *APIError {
	if !s.assignment.State.editable() {
		return ErrRule(ReasonNotEditable, "only waiting or declined assignments can be edited")
	}
	return nil
}

func assignmentDeletable(s *snapshot) *APIError {
	if !s.assignment.State.editable() {
		return ErrRule(ReasonNotDeletable, "only waiting or declined assignments can be deleted")
	}
	return nil
}

func callerIsAssignee(s *snapshot) *APIError {
	if s.assignment.AssigneeID != s.caller.ID {
		return ErrRule(ReasonNotAssignee, "only the assignee can respond to this assignment")
	}
	return nil
}

func assignmentWaiting(s *snapshot) *APIError {
	if s.assignment.State != StateWaitingForAcceptance {
		return ErrRule(ReasonNotWaiting, "assignment is not waiting for acceptance")
	}
	return nil
}

func callerSameLocation(s *snapshot) *APIError {
	if s.caller.Location != s.asset.Location {
		return ErrRule(ReasonCallerLocation, "asset not in your location")
	}
	return nil
}

// 代理で返却依頼を出せるのは資産と同じ拠点の admin か root のみ
func callerAssigneeOrAdmin(s *snapshot) *APIError {
	if s.assignment.AssigneeID == s.caller.ID {
		return nil
	}
	if !s.caller.admin() {
		return ErrRule(ReasonNotAssignee, "only the assignee or an admin can request a return")
	}
	if !s.caller.elevated() && s.caller.Location != s.asset.Location {
		return ErrRule(ReasonAdminLocation, "asset not in your location")
	}
	return nil
}

func assignmentAccepted(s *snapshot) *APIError {
	if s.assignment.State != StateAccepted {
		return ErrRule(ReasonNotAccepted, "only accepted assignments can be returned")
	}
	return nil
}

// ---------- returning request rules ----------

func adminSameLocation(s *snapshot) *APIError {
	if !s.caller.elevated() && s.caller.Location != s.asset.Location {
		return ErrRule(ReasonAdminLocation, "asset not in your location")
	}
	return nil
}

func returnWaiting(s *snapshot) *APIError {
	if s.request.State != ReturnWaiting {
		return ErrRule(ReasonReturnNotWaiting, "returning request is not waiting for returning")
	}
	return nil
}

// startOfYesterday converts now to the business time zone and returns the
// previous calendar day as a UTC date, matching how assigned_on is stored.
func startOfYesterday(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC)
}

// dateOnly normalises a calendar date to UTC midnight.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

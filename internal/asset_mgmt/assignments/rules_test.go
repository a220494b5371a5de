package assignments

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func validCreateSnapshot() *snapshot {
	return &snapshot{
		caller:       Caller{ID: "SD0001", Role: RoleAdmin, Location: "HCM"},
		assigner:     &Account{ID: "SD0001", Role: RoleAdmin, Location: "HCM"},
		assignee:     &Account{ID: "SD0002", Role: RoleStaff, Location: "HCM"},
		asset:        &Asset{ID: "A1", Code: "LA100001", Location: "HCM", State: AssetAvailable},
		assignedOn:   time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		earliestDate: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		assetChanged: true,
		dateChanged:  true,
	}
}

func TestCreatePipelineFirstViolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *snapshot)
		want   Reason
	}{
		{"valid", func(s *snapshot) {}, ""},
		{"staff caller", func(s *snapshot) { s.caller.Role = RoleStaff }, ReasonNotAdmin},
		// role is checked before anything about the accounts
		{"staff caller with disabled account", func(s *snapshot) {
			s.caller.Role = RoleStaff
			s.assigner.IsDisabled = true
		}, ReasonNotAdmin},
		{"assigner disabled", func(s *snapshot) { s.assigner.IsDisabled = true }, ReasonAssignerDisabled},
		{"assigner missing", func(s *snapshot) { s.assigner = nil }, ReasonAssignerDisabled},
		{"assignee missing", func(s *snapshot) { s.assignee = nil }, ReasonAssigneeNotFound},
		{"assignee disabled", func(s *snapshot) { s.assignee.IsDisabled = true }, ReasonAssigneeDisabled},
		{"assignee root", func(s *snapshot) { s.assignee.Role = RoleRoot }, ReasonAssigneeIsRoot},
		{"asset missing", func(s *snapshot) { s.asset = nil }, ReasonAssetNotFound},
		{"asset assigned", func(s *snapshot) { s.asset.State = AssetAssigned }, ReasonAssetNotAvailable},
		{"same user", func(s *snapshot) { s.assignee.ID = "SD0001" }, ReasonSameUser},
		{"assignee elsewhere", func(s *snapshot) { s.assignee.Location = "DN" }, ReasonAssigneeLocation},
		{"asset elsewhere", func(s *snapshot) { s.asset.Location = "DN" }, ReasonAssetLocation},
		{"date before yesterday", func(s *snapshot) { s.assignedOn = s.earliestDate.AddDate(0, 0, -1) }, ReasonDateInPast},
		{"yesterday is fine", func(s *snapshot) { s.assignedOn = s.earliestDate }, ""},
		{"root ignores location", func(s *snapshot) {
			s.caller.Role = RoleRoot
			s.assignee.Location = "DN"
			s.asset.Location = "HN"
		}, ""},
		// same user wins over every later rule
		{"same user beats location and date", func(s *snapshot) {
			s.assignee.ID = "SD0001"
			s.assignee.Location = "DN"
			s.asset.Location = "DN"
			s.assignedOn = s.earliestDate.AddDate(-1, 0, 0)
		}, ReasonSameUser},
		{"location checked before date", func(s *snapshot) {
			s.asset.Location = "DN"
			s.assignedOn = s.earliestDate.AddDate(-1, 0, 0)
		}, ReasonAssetLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validCreateSnapshot()
			tt.mutate(s)
			err := validate(opCreate, s)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			if err.Reason != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, err.Reason)
			}
		})
	}
}

func TestEditPipeline(t *testing.T) {
	base := func() *snapshot {
		s := validCreateSnapshot()
		s.assignment = &Assignment{ID: "AS1", AssetID: "A1", AssigneeID: "SD0002", State: StateWaitingForAcceptance}
		s.asset.State = AssetAssigned
		s.assetChanged = false
		s.dateChanged = false
		s.assignedOn = s.earliestDate.AddDate(0, -1, 0)
		return s
	}

	if err := validate(opEdit, base()); err != nil {
		t.Fatalf("unchanged asset and date should pass: %v", err)
	}

	s := base()
	s.assignment.State = StateAccepted
	s.assignee.ID = "SD0001"
	if err := validate(opEdit, s); err == nil || err.Reason != ReasonNotEditable {
		t.Fatalf("editable check must run first, got %v", err)
	}

	s = base()
	s.caller.Role = RoleStaff
	s.assignment.State = StateAccepted
	if err := validate(opEdit, s); err == nil || err.Reason != ReasonNotAdmin {
		t.Fatalf("expected NOT_ADMIN before state, got %v", err)
	}

	s = base()
	s.assetChanged = true
	if err := validate(opEdit, s); err == nil || err.Reason != ReasonAssetNotAvailable {
		t.Fatalf("new asset must be available, got %v", err)
	}

	s = base()
	s.dateChanged = true
	if err := validate(opEdit, s); err == nil || err.Reason != ReasonDateInPast {
		t.Fatalf("changed date must be checked, got %v", err)
	}

	s = base()
	s.assignment.State = StateDeclined
	if err := validate(opEdit, s); err != nil {
		t.Fatalf("declined assignments are editable: %v", err)
	}
}

func TestRespondPipeline(t *testing.T) {
	base := func() *snapshot {
		return &snapshot{
			caller:     Caller{ID: "SD0002", Role: RoleStaff, Location: "HCM"},
			assignment: &Assignment{ID: "AS1", AssigneeID: "SD0002", State: StateWaitingForAcceptance},
			asset:      &Asset{ID: "A1", Location: "HCM", State: AssetAssigned},
		}
	}
	if err := validate(opRespond, base()); err != nil {
		t.Fatalf("expected pass: %v", err)
	}

	s := base()
	s.caller.ID = "SD0003"
	s.assignment.State = StateAccepted
	if err := validate(opRespond, s); err == nil || err.Reason != ReasonNotAssignee {
		t.Fatalf("expected NOT_ASSIGNEE first, got %v", err)
	}

	s = base()
	s.assignment.State = StateDeclined
	if err := validate(opRespond, s); err == nil || err.Reason != ReasonNotWaiting {
		t.Fatalf("expected ASSIGNMENT_NOT_WAITING, got %v", err)
	}

	// no root bypass on respond
	s = base()
	s.caller.Role = RoleRoot
	s.asset.Location = "DN"
	if err := validate(opRespond, s); err == nil || err.Reason != ReasonCallerLocation {
		t.Fatalf("expected CALLER_LOCATION_MISMATCH, got %v", err)
	}
}

func TestReturnPipelines(t *testing.T) {
	req := func() *snapshot {
		return &snapshot{
			caller:     Caller{ID: "SD0009", Role: RoleAdmin, Location: "HCM"},
			assignment: &Assignment{ID: "AS1", AssigneeID: "SD0002", State: StateAccepted},
			asset:      &Asset{ID: "A1", Location: "HCM"},
		}
	}
	if err := validate(opRequestReturn, req()); err != nil {
		t.Fatalf("admin may request return: %v", err)
	}
	s := req()
	s.caller.Role = RoleStaff
	if err := validate(opRequestReturn, s); err == nil || err.Reason != ReasonNotAssignee {
		t.Fatalf("other staff may not request return, got %v", err)
	}
	s = req()
	s.assignment.State = StateIsRequested
	if err := validate(opRequestReturn, s); err == nil || err.Reason != ReasonNotAccepted {
		t.Fatalf("expected ASSIGNMENT_NOT_ACCEPTED, got %v", err)
	}
	s = req()
	s.caller.Location = "DN"
	if err := validate(opRequestReturn, s); err == nil || err.Reason != ReasonAdminLocation {
		t.Fatalf("admin of another location may not request return, got %v", err)
	}
	s.caller.Role = RoleRoot
	if err := validate(opRequestReturn, s); err != nil {
		t.Fatalf("root may request return anywhere: %v", err)
	}
	// the assignee needs no location match
	s = req()
	s.caller = Caller{ID: "SD0002", Role: RoleStaff, Location: "DN"}
	if err := validate(opRequestReturn, s); err != nil {
		t.Fatalf("assignee may request return: %v", err)
	}

	res := req()
	res.request = &ReturningRequest{ID: "R1", State: ReturnWaiting}
	if err := validate(opResolveReturn, res); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	res.caller.Role = RoleStaff
	res.caller.ID = "SD0002"
	if err := validate(opResolveReturn, res); err == nil || err.Reason != ReasonNotAdmin {
		t.Fatalf("assignee may not resolve their own return, got %v", err)
	}
	res.caller.Role = RoleAdmin
	res.asset.Location = "DN"
	if err := validate(opResolveReturn, res); err == nil || err.Reason != ReasonAdminLocation {
		t.Fatalf("expected ADMIN_LOCATION_MISMATCH, got %v", err)
	}
	res.caller.Role = RoleRoot
	res.request.State = ReturnCompleted
	if err := validate(opResolveReturn, res); err == nil || err.Reason != ReasonReturnNotWaiting {
		t.Fatalf("expected RETURN_NOT_WAITING, got %v", err)
	}
}

func TestDeletePipeline(t *testing.T) {
	s := &snapshot{
		caller:     Caller{ID: "SD0001", Role: RoleAdmin, Location: "HCM"},
		assignment: &Assignment{ID: "AS1", State: StateAccepted},
		asset:      &Asset{ID: "A1", Location: "DN"},
	}
	s.caller.Role = RoleStaff
	if err := validate(opDelete, s); err == nil || err.Reason != ReasonNotAdmin {
		t.Fatalf("expected NOT_ADMIN first, got %v", err)
	}
	s.caller.Role = RoleAdmin
	if err := validate(opDelete, s); err == nil || err.Reason != ReasonNotDeletable {
		t.Fatalf("expected ASSIGNMENT_NOT_DELETABLE, got %v", err)
	}
	s.assignment.State = StateDeclined
	if err := validate(opDelete, s); err == nil || err.Reason != ReasonAdminLocation {
		t.Fatalf("expected ADMIN_LOCATION_MISMATCH, got %v", err)
	}
}

func TestStartOfYesterday(t *testing.T) {
	hcm, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-10-17 20:00 UTC is already 2026-10-18 03:00 in HCM
	now := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)
	got := startOfYesterday(now, hcm)
	want := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if got := startOfYesterday(now, time.UTC); !got.Equal(want.AddDate(0, 0, -1)) {
		t.Fatalf("utc: got %s", got)
	}
}

func TestPipelinesCoverEveryOperation(t *testing.T) {
	for _, op := range []operation{opCreate, opEdit, opRespond, opRequestReturn, opResolveReturn, opDelete} {
		if len(pipelines[op]) == 0 {
			t.Fatalf("no rules for %s", op)
		}
	}
	for _, op := range []operation{opCreate, opEdit, opResolveReturn, opDelete} {
		if pipelines[op][0].name != "caller_is_admin" {
			t.Fatalf("%s must check role first, got %s", op, pipelines[op][0].name)
		}
	}
	if pipelines[opEdit][1].name != "assignment_editable" {
		t.Fatalf("edit must check state right after role, got %s", pipelines[opEdit][1].name)
	}
}

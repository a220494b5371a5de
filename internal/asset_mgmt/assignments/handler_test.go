package assignments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ASSET-backend/internal/platform/auth"
)

var handlerSecret = []byte("handler-secret")

func newTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	e := newTestEnv(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v2", auth.RequireAuth(handlerSecret))
	RegisterRoutes(api, e.svc)
	return r, e
}

func tokenFor(t *testing.T, c Caller) string {
	t.Helper()
	tok, err := auth.IssueToken(handlerSecret, auth.Identity{UserID: c.ID, Role: string(c.Role), Location: c.Location}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func call(t *testing.T, r http.Handler, c *Caller, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *c))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorDTO {
	t.Helper()
	var e errorDTO
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

func TestHandlerLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := call(t, r, &adminHCM, http.MethodPost, "/api/v2/assignments",
		`{"asset_code":"LA100001","assignee_id":"SD0002","assigned_on":"`+today+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created AssignmentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if loc := w.Header().Get("Location"); loc != "/assignments/"+created.ID {
		t.Fatalf("location header %q", loc)
	}

	w = call(t, r, &staffHCM, http.MethodGet, "/api/v2/assignments/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}

	// the token round-trips through JSON unchanged
	tok, _ := json.Marshal(created.UpdatedAt)
	w = call(t, r, &staffHCM, http.MethodPost, "/api/v2/assignments/"+created.ID+"/response",
		`{"accept":true,"updated_at":`+string(tok)+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("respond: %d %s", w.Code, w.Body.String())
	}

	w = call(t, r, &staffHCM, http.MethodPost, "/api/v2/assignments/"+created.ID+"/returning-requests", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("request return: %d %s", w.Code, w.Body.String())
	}
	var requested RequestReturnResult
	if err := json.Unmarshal(w.Body.Bytes(), &requested); err != nil {
		t.Fatal(err)
	}

	w = call(t, r, &staffHCM, http.MethodPost, "/api/v2/returning-requests/"+requested.Request.ID+"/resolution", `{"confirm":true}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("staff must not resolve returns, got %d", w.Code)
	}
	w = call(t, r, &adminHCM, http.MethodPost, "/api/v2/returning-requests/"+requested.Request.ID+"/resolution", `{"confirm":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}
	var resolved ResolveReturnResult
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatal(err)
	}
	if resolved.Assignment.State != StateReturned {
		t.Fatalf("expected RETURNED, got %s", resolved.Assignment.State)
	}

	w = call(t, r, &staffHCM, http.MethodGet, "/api/v2/returning-requests/"+requested.Request.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get request: %d", w.Code)
	}
	w = call(t, r, &staffDN, http.MethodGet, "/api/v2/returning-requests/"+requested.Request.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("other location must not see the request, got %d", w.Code)
	}
}

func TestHandlerErrors(t *testing.T) {
	r, e := newTestRouter(t)

	w := call(t, r, nil, http.MethodGet, "/api/v2/assignments", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = call(t, r, &staffHCM, http.MethodPost, "/api/v2/assignments",
		`{"asset_code":"LA100001","assignee_id":"SD0003","assigned_on":"`+today+`"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("staff create should be 403, got %d", w.Code)
	}

	w = call(t, r, &adminHCM, http.MethodPost, "/api/v2/assignments", `{"asset_code":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json should be 400, got %d", w.Code)
	}

	w = call(t, r, &adminHCM, http.MethodPost, "/api/v2/assignments",
		`{"asset_code":"LA100001","assignee_id":"SD0001","assigned_on":"`+today+`"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("same user should be 422, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != CodeUnprocessable || body.Error.Reason != ReasonSameUser {
		t.Fatalf("unexpected error body %+v", body)
	}

	a := e.create(t, "LA100001", "SD0002")
	permit, err := e.locks.Acquire(kindAssignment, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	w = call(t, r, &adminHCM, http.MethodPut, "/api/v2/assignments/"+a.ID, `{"note":"busy"}`)
	permit.Release()
	if w.Code != http.StatusConflict {
		t.Fatalf("busy edit should be 409, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Error.Code != CodeConcurrentUpdate {
		t.Fatalf("expected CONCURRENT_UPDATE, got %+v", body)
	}

	w = call(t, r, &adminHCM, http.MethodDelete, "/api/v2/assignments/"+a.ID+"?updated_at=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad updated_at should be 400, got %d", w.Code)
	}
	w = call(t, r, &adminHCM, http.MethodDelete, "/api/v2/assignments/"+a.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = call(t, r, &adminHCM, http.MethodGet, "/api/v2/assignments/"+a.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted assignment should be 404, got %d", w.Code)
	}
}

func TestHandlerList(t *testing.T) {
	r, e := newTestRouter(t)
	e.create(t, "LA100001", "SD0002")
	e.create(t, "LA100002", "SD0002")

	w := call(t, r, &adminHCM, http.MethodGet, "/api/v2/assignments?limit=1&order=asc&state=WAITING_FOR_ACCEPTANCE", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var res ListAssignmentsResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || len(res.Items) != 1 || res.NextOffset != 1 {
		t.Fatalf("unexpected page %+v", res)
	}

	w = call(t, r, &adminDN, http.MethodGet, "/api/v2/assignments", "")
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 || len(res.Items) != 0 {
		t.Fatalf("DN admin should see nothing in HCM: %+v", res)
	}
}

func TestErrorFromErrHidesCause(t *testing.T) {
	body := errorFromErr(ErrStorage(http.ErrServerClosed))
	if body.Error.Message != "storage failure" || body.Error.Reason != ReasonStorageFailure {
		t.Fatalf("unexpected %+v", body)
	}
	body = errorFromErr(http.ErrHandlerTimeout)
	if body.Error.Code != CodeInternal || body.Error.Message != "internal error" {
		t.Fatalf("unexpected %+v", body)
	}
}

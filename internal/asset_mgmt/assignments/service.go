package assignments

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/text/width"

	"ASSET-backend/internal/platform/db"
	"ASSET-backend/internal/platform/lock"
	"ASSET-backend/internal/platform/metrics"
)

const kindAssignment lock.Kind = "assignment"

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }

// ulidGen は同一ミリ秒内でも単調増加する。Monotonic は goroutine セーフではないので mu で守る
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// -------------- Service --------------

type Service struct {
	db      *sql.DB
	dialect db.Dialect
	store   *Store
	locks   *lock.Coordinator
	clock   Clock
	id      IDGen
	loc     *time.Location // 「昨日」「今日」を判定するタイムゾーン
	metrics *metrics.Recorder
}

type Option func(*Service)

func WithDialect(d db.Dialect) Option { return func(s *Service) { s.dialect = d } }

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithIDGen(g IDGen) Option { return func(s *Service) { s.id = g } }

// WithLocks shares a permit coordinator between services in one process.
func WithLocks(c *lock.Coordinator) Option { return func(s *Service) { s.locks = c } }

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option { return func(s *Service) { s.metrics = r } }

func NewService(conn *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:      conn,
		dialect: db.MySQL,
		locks:   lock.New(),
		clock:   realClock{},
		id:      newULIDGen(),
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(conn, s.dialect)
	return s
}

// -------------- execution helpers --------------

// exec は1操作の結果を確定させる。APIError 以外は保存失敗として扱う
func (s *Service) exec(op operation, fn func() error) error {
	start := time.Now()
	err := s.classify(op, fn())
	result := "OK"
	if err != nil {
		result = string(CodeOf(err))
		if c := CodeOf(err); c == CodeConcurrentUpdate || c == CodeStaleData {
			log.Printf("[WARN] assignments %s rejected: %s", op, c)
		}
	}
	s.metrics.Observe(string(op), result, time.Since(start))
	return err
}

func (s *Service) classify(op operation, err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Code: CodeInternal, Message: "request cancelled", Err: err}
	}
	// 検証は通ったのに書けなかった。データ不整合の可能性があるので必ず記録する
	log.Printf("[ERROR] assignments %s: %v", op, err)
	s.metrics.StorageFailure(string(op))
	return ErrStorage(err)
}

// locked は割当の編集許可を取り、1トランザクションで fn を実行する
func (s *Service) locked(ctx context.Context, assignmentID string, fn func(ctx context.Context, tx db.DBTX) error) error {
	err := s.locks.Do(kindAssignment, assignmentID, func() error {
		return db.RunInTx(ctx, s.db, nil, fn)
	})
	if errors.Is(err, lock.ErrBusy) {
		return ErrConcurrentUpdate()
	}
	return err
}

// stamp は updated_at の次の値。µs に丸め、prev より必ず後ろにする
func (s *Service) stamp(prev ...time.Time) time.Time {
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	for _, p := range prev {
		if !now.After(p) {
			now = p.Add(time.Microsecond)
		}
	}
	return now
}

func (s *Service) today() time.Time { return dateOnly(s.clock.Now().In(s.loc)) }

func checkFresh(token *time.Time, current time.Time) error {
	if token != nil && token.Before(current) {
		return ErrStale()
	}
	return nil
}

func errInconsistent(format string, args ...any) error {
	return fmt.Errorf("inconsistent state: "+format, args...)
}

// normalizeCode は全角英数や前後空白を吸収して大文字に揃える（"ｌａ１００００１" → "LA100001"）
func normalizeCode(v string) string {
	return strings.ToUpper(width.Fold.String(strings.TrimSpace(v)))
}

func parseDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(v), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalid("assigned_on must be YYYY-MM-DD")
	}
	return t, nil
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

const maxNoteLen = 1024

func checkNote(p *string) error {
	if p != nil && len([]rune(*p)) > maxNoteLen {
		return ErrInvalid(fmt.Sprintf("note must be at most %d characters", maxNoteLen))
	}
	return nil
}

// -------------- Create --------------

// POST /assignments
func (s *Service) CreateAssignment(ctx context.Context, caller Caller, in CreateAssignmentRequest) (AssignmentResponse, error) {
	assetCode := normalizeCode(in.AssetCode)
	assigneeID := normalizeCode(in.AssigneeID)
	if assetCode == "" {
		return AssignmentResponse{}, ErrInvalid("asset_code required")
	}
	if assigneeID == "" {
		return AssignmentResponse{}, ErrInvalid("assignee_id required")
	}
	assignedOn, err := parseDate(in.AssignedOn)
	if err != nil {
		return AssignmentResponse{}, err
	}
	if err := checkNote(in.Note); err != nil {
		return AssignmentResponse{}, err
	}

	var out *Assignment
	err = s.exec(opCreate, func() error {
		// 新しい割当にはまだ競合相手がいない。資産の取り合いは状態の CAS で決まる
		return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
			snap := &snapshot{
				caller:       caller,
				assignedOn:   assignedOn,
				earliestDate: startOfYesterday(s.clock.Now(), s.loc),
				assetChanged: true,
				dateChanged:  true,
			}
			var err error
			if snap.assigner, err = s.store.GetAccount(ctx, tx, caller.ID); err != nil {
				return err
			}
			if snap.assignee, err = s.store.GetAccount(ctx, tx, assigneeID); err != nil {
				return err
			}
			if snap.asset, err = s.store.GetAssetByCode(ctx, tx, assetCode); err != nil {
				return err
			}
			if v := validate(opCreate, snap); v != nil {
				return v
			}

			now := s.stamp()
			ok, err := s.store.SetAssetState(ctx, tx, snap.asset.ID, AssetAvailable, AssetAssigned, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRule(ReasonAssetNotAvailable, "asset is not available")
			}

			a := &Assignment{
				ID:         s.id.NewULID(now),
				AssetID:    snap.asset.ID,
				AssigneeID: snap.assignee.ID,
				AssignerID: caller.ID,
				AssignedOn: assignedOn,
				Note:       toNullString(in.Note),
				State:      StateWaitingForAcceptance,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.store.InsertAssignment(ctx, tx, a); err != nil {
				return err
			}
			out = a
			return nil
		})
	})
	if err != nil {
		return AssignmentResponse{}, err
	}
	log.Printf("[INFO] assignment %s created: asset=%s assignee=%s by=%s", out.ID, out.AssetID, out.AssigneeID, caller.ID)
	return toAssignmentResponse(out), nil
}

// -------------- Edit --------------

// PUT /assignments/:id
// 状態は変えない。WAITING のまま資産を差し替えたときは旧資産を解放し新資産を押さえる
func (s *Service) EditAssignment(ctx context.Context, caller Caller, id string, in EditAssignmentRequest) (AssignmentResponse, error) {
	var assignedOn *time.Time
	if in.AssignedOn != nil {
		t, err := parseDate(*in.AssignedOn)
		if err != nil {
			return AssignmentResponse{}, err
		}
		assignedOn = &t
	}
	if err := checkNote(in.Note); err != nil {
		return AssignmentResponse{}, err
	}

	var out *Assignment
	err := s.exec(opEdit, func() error {
		return s.locked(ctx, id, func(ctx context.Context, tx db.DBTX) error {
			cur, err := s.store.GetAssignment(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return ErrNotFound(ReasonAssignmentNotFound, "assignment not found")
			}
			if err := checkFresh(in.UpdatedAt, cur.UpdatedAt); err != nil {
				return err
			}

			snap := &snapshot{
				caller:       caller,
				assignment:   cur,
				assignedOn:   cur.AssignedOn,
				earliestDate: startOfYesterday(s.clock.Now(), s.loc),
			}
			if snap.assigner, err = s.store.GetAccount(ctx, tx, caller.ID); err != nil {
				return err
			}

			assigneeID := cur.AssigneeID
			if in.AssigneeID != nil {
				assigneeID = normalizeCode(*in.AssigneeID)
			}
			if snap.assignee, err = s.store.GetAccount(ctx, tx, assigneeID); err != nil {
				return err
			}

			if in.AssetCode != nil {
				snap.asset, err = s.store.GetAssetByCode(ctx, tx, normalizeCode(*in.AssetCode))
			} else {
				snap.asset, err = s.store.GetAssetByID(ctx, tx, cur.AssetID)
			}
			if err != nil {
				return err
			}
			snap.assetChanged = snap.asset != nil && snap.asset.ID != cur.AssetID

			if assignedOn != nil {
				snap.assignedOn = *assignedOn
				snap.dateChanged = !assignedOn.Equal(cur.AssignedOn)
			}

			if v := validate(opEdit, snap); v != nil {
				return v
			}

			next := *cur
			next.AssetID = snap.asset.ID
			next.AssigneeID = snap.assignee.ID
			next.AssignerID = caller.ID
			next.AssignedOn = snap.assignedOn
			if in.Note != nil {
				next.Note = toNullString(in.Note)
			}
			next.UpdatedAt = s.stamp(cur.UpdatedAt)

			if snap.assetChanged && cur.State.holdsAsset() {
				ok, err := s.store.SetAssetState(ctx, tx, cur.AssetID, AssetAssigned, AssetAvailable, next.UpdatedAt)
				if err != nil {
					return err
				}
				if !ok {
					return errInconsistent("asset %s held by assignment %s is not ASSIGNED", cur.AssetID, cur.ID)
				}
				ok, err = s.store.SetAssetState(ctx, tx, next.AssetID, AssetAvailable, AssetAssigned, next.UpdatedAt)
				if err != nil {
					return err
				}
				if !ok {
					return ErrRule(ReasonAssetNotAvailable, "asset is not available")
				}
			}

			ok, err := s.store.UpdateAssignment(ctx, tx, &next, cur.UpdatedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStale()
			}
			out = &next
			return nil
		})
	})
	if err != nil {
		return AssignmentResponse{}, err
	}
	return toAssignmentResponse(out), nil
}

// -------------- Respond --------------

// POST /assignments/:id/response
func (s *Service) RespondAssignment(ctx context.Context, caller Caller, id string, in RespondAssignmentRequest) (AssignmentResponse, error) {
	if in.Accept == nil {
		return AssignmentResponse{}, ErrInvalid("accept required")
	}

	var out *Assignment
	err := s.exec(opRespond, func() error {
		return s.locked(ctx, id, func(ctx context.Context, tx db.DBTX) error {
			cur, asset, err := s.loadHeld(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := checkFresh(in.UpdatedAt, cur.UpdatedAt); err != nil {
				return err
			}
			if v := validate(opRespond, &snapshot{caller: caller, assignment: cur, asset: asset}); v != nil {
				return v
			}

			next := *cur
			next.UpdatedAt = s.stamp(cur.UpdatedAt)
			if *in.Accept {
				next.State = StateAccepted
			} else {
				next.State = StateDeclined
				ok, err := s.store.SetAssetState(ctx, tx, asset.ID, AssetAssigned, AssetAvailable, next.UpdatedAt)
				if err != nil {
					return err
				}
				if !ok {
					return errInconsistent("asset %s held by assignment %s is not ASSIGNED", asset.ID, cur.ID)
				}
			}

			ok, err := s.store.UpdateAssignment(ctx, tx, &next, cur.UpdatedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStale()
			}
			out = &next
			return nil
		})
	})
	if err != nil {
		return AssignmentResponse{}, err
	}
	log.Printf("[INFO] assignment %s %s by %s", out.ID, out.State, caller.ID)
	return toAssignmentResponse(out), nil
}

// loadHeld は割当とその資産を読む。割当があるのに資産が無いのは不整合
func (s *Service) loadHeld(ctx context.Context, tx db.DBTX, id string) (*Assignment, *Asset, error) {
	cur, err := s.store.GetAssignment(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, ErrNotFound(ReasonAssignmentNotFound, "assignment not found")
	}
	asset, err := s.store.GetAssetByID(ctx, tx, cur.AssetID)
	if err != nil {
		return nil, nil, err
	}
	if asset == nil {
		return nil, nil, errInconsistent("asset %s of assignment %s is missing", cur.AssetID, cur.ID)
	}
	return cur, asset, nil
}

// -------------- Returning --------------

// POST /assignments/:id/returning-requests
func (s *Service) RequestReturn(ctx context.Context, caller Caller, id string, in RequestReturnRequest) (RequestReturnResult, error) {
	var (
		req  *ReturningRequest
		next Assignment
	)
	err := s.exec(opRequestReturn, func() error {
		return s.locked(ctx, id, func(ctx context.Context, tx db.DBTX) error {
			cur, asset, err := s.loadHeld(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := checkFresh(in.UpdatedAt, cur.UpdatedAt); err != nil {
				return err
			}
			if v := validate(opRequestReturn, &snapshot{caller: caller, assignment: cur, asset: asset}); v != nil {
				return v
			}

			existing, err := s.store.GetReturningRequestByAssignment(ctx, tx, cur.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return ErrConflict(ReasonReturnAlreadyRequested, "a returning request already exists for this assignment")
			}

			now := s.stamp(cur.UpdatedAt)
			req = &ReturningRequest{
				ID:            s.id.NewULID(now),
				AssignmentID:  cur.ID,
				RequestedByID: caller.ID,
				State:         ReturnWaiting,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.store.InsertReturningRequest(ctx, tx, req); err != nil {
				if db.IsDuplicateKey(err) {
					return ErrConflict(ReasonReturnAlreadyRequested, "a returning request already exists for this assignment")
				}
				return err
			}

			next = *cur
			next.State = StateIsRequested
			next.UpdatedAt = now
			ok, err := s.store.UpdateAssignment(ctx, tx, &next, cur.UpdatedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStale()
			}
			return nil
		})
	})
	if err != nil {
		return RequestReturnResult{}, err
	}
	log.Printf("[INFO] returning request %s created for assignment %s by %s", req.ID, next.ID, caller.ID)
	return RequestReturnResult{Request: toReturningResponse(req), Assignment: toAssignmentResponse(&next)}, nil
}

// POST /returning-requests/:id/resolution
// confirm=true で返却完了（資産は AVAILABLE へ）、false で申請を取り消して ACCEPTED に戻す
func (s *Service) ResolveReturn(ctx context.Context, caller Caller, requestID string, in ResolveReturnRequest) (ResolveReturnResult, error) {
	if in.Confirm == nil {
		return ResolveReturnResult{}, ErrInvalid("confirm required")
	}
	confirm := *in.Confirm

	var res ResolveReturnResult
	err := s.exec(opResolveReturn, func() error {
		// 許可は割当単位なので、まず申請から割当 ID を引く
		pre, err := s.store.GetReturningRequest(ctx, s.db, requestID)
		if err != nil {
			return err
		}
		if pre == nil {
			return ErrNotFound(ReasonReturningRequestMissing, "returning request not found")
		}

		return s.locked(ctx, pre.AssignmentID, func(ctx context.Context, tx db.DBTX) error {
			req, err := s.store.GetReturningRequest(ctx, tx, requestID)
			if err != nil {
				return err
			}
			if req == nil {
				return ErrNotFound(ReasonReturningRequestMissing, "returning request not found")
			}
			cur, asset, err := s.loadHeld(ctx, tx, req.AssignmentID)
			if err != nil {
				return err
			}
			if v := validate(opResolveReturn, &snapshot{caller: caller, assignment: cur, asset: asset, request: req}); v != nil {
				return v
			}
			if cur.State != StateIsRequested {
				return errInconsistent("assignment %s is %s while request %s is waiting", cur.ID, cur.State, req.ID)
			}

			next := *cur
			next.UpdatedAt = s.stamp(cur.UpdatedAt, req.UpdatedAt)

			if confirm {
				done := *req
				done.State = ReturnCompleted
				done.AcceptedByID = sql.NullString{String: caller.ID, Valid: true}
				done.ReturnedOn = sql.NullTime{Time: s.today(), Valid: true}
				done.UpdatedAt = next.UpdatedAt
				ok, err := s.store.CompleteReturningRequest(ctx, tx, &done)
				if err != nil {
					return err
				}
				if !ok {
					return ErrStale()
				}
				ok, err = s.store.SetAssetState(ctx, tx, asset.ID, AssetAssigned, AssetAvailable, next.UpdatedAt)
				if err != nil {
					return err
				}
				if !ok {
					return errInconsistent("asset %s held by assignment %s is not ASSIGNED", asset.ID, cur.ID)
				}
				next.State = StateReturned
				r := toReturningResponse(&done)
				res.Request = &r
			} else {
				ok, err := s.store.DeleteReturningRequest(ctx, tx, req.ID)
				if err != nil {
					return err
				}
				if !ok {
					return ErrStale()
				}
				next.State = StateAccepted
				res.Cancelled = true
			}

			ok, err := s.store.UpdateAssignment(ctx, tx, &next, cur.UpdatedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStale()
			}
			res.Assignment = toAssignmentResponse(&next)
			return nil
		})
	})
	if err != nil {
		return ResolveReturnResult{}, err
	}
	log.Printf("[INFO] returning request %s resolved (confirm=%t) by %s", requestID, confirm, caller.ID)
	return res, nil
}

// -------------- Delete --------------

// DELETE /assignments/:id
// updatedAt は任意。指定があれば古いとき STALE_DATA
func (s *Service) DeleteAssignment(ctx context.Context, caller Caller, id string, updatedAt *time.Time) error {
	err := s.exec(opDelete, func() error {
		return s.locked(ctx, id, func(ctx context.Context, tx db.DBTX) error {
			cur, asset, err := s.loadHeld(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := checkFresh(updatedAt, cur.UpdatedAt); err != nil {
				return err
			}
			if v := validate(opDelete, &snapshot{caller: caller, assignment: cur, asset: asset}); v != nil {
				return v
			}

			if cur.State.holdsAsset() {
				ok, err := s.store.SetAssetState(ctx, tx, asset.ID, AssetAssigned, AssetAvailable, s.stamp())
				if err != nil {
					return err
				}
				if !ok {
					return errInconsistent("asset %s held by assignment %s is not ASSIGNED", asset.ID, cur.ID)
				}
			}
			ok, err := s.store.DeleteAssignment(ctx, tx, cur.ID, cur.UpdatedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrStale()
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] assignment %s deleted by %s", id, caller.ID)
	return nil
}

// -------------- Reads --------------

// GET /assignments/:id
// staff は自分宛てのみ、admin は自拠点の資産のみ見える。見えないものは NOT_FOUND
func (s *Service) GetAssignment(ctx context.Context, caller Caller, id string) (AssignmentResponse, error) {
	a, err := s.store.GetAssignment(ctx, s.db, id)
	if err != nil {
		return AssignmentResponse{}, s.classify("get", err)
	}
	if a == nil {
		return AssignmentResponse{}, ErrNotFound(ReasonAssignmentNotFound, "assignment not found")
	}
	ok, err := s.visible(ctx, caller, a, "")
	if err != nil {
		return AssignmentResponse{}, s.classify("get", err)
	}
	if !ok {
		return AssignmentResponse{}, ErrNotFound(ReasonAssignmentNotFound, "assignment not found")
	}
	return toAssignmentResponse(a), nil
}

// visible は caller がこの割当を読めるか。requester が空でなければ staff の本人にも見せる
func (s *Service) visible(ctx context.Context, caller Caller, a *Assignment, requester string) (bool, error) {
	switch caller.Role {
	case RoleRoot:
		return true, nil
	case RoleAdmin:
		asset, err := s.store.GetAssetByID(ctx, s.db, a.AssetID)
		if err != nil {
			return false, err
		}
		return asset != nil && asset.Location == caller.Location, nil
	default:
		return a.AssigneeID == caller.ID || (requester != "" && requester == caller.ID), nil
	}
}

// GET /assignments
func (s *Service) ListAssignments(ctx context.Context, caller Caller, f AssignmentFilter, p Page) (ListAssignmentsResult, error) {
	switch caller.Role {
	case RoleRoot:
	case RoleAdmin:
		loc := caller.Location
		f.Location = &loc
	default:
		me := caller.ID
		f.AssigneeID = &me
	}
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	items, total, err := s.store.ListAssignments(ctx, s.db, f, p)
	if err != nil {
		return ListAssignmentsResult{}, s.classify("list", err)
	}
	out := make([]AssignmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAssignmentResponse(&items[i]))
	}
	next := p.Offset + len(out)
	if int64(next) >= total {
		next = 0
	}
	return ListAssignmentsResult{Items: out, Total: total, NextOffset: next}, nil
}

// GET /returning-requests/:id
// 見える範囲は元の割当と同じ
func (s *Service) GetReturningRequest(ctx context.Context, caller Caller, id string) (ReturningRequestResponse, error) {
	r, err := s.store.GetReturningRequest(ctx, s.db, id)
	if err != nil {
		return ReturningRequestResponse{}, s.classify("get", err)
	}
	if r == nil {
		return ReturningRequestResponse{}, ErrNotFound(ReasonReturningRequestMissing, "returning request not found")
	}
	a, err := s.store.GetAssignment(ctx, s.db, r.AssignmentID)
	if err != nil {
		return ReturningRequestResponse{}, s.classify("get", err)
	}
	if a == nil {
		return ReturningRequestResponse{}, ErrNotFound(ReasonReturningRequestMissing, "returning request not found")
	}
	ok, err := s.visible(ctx, caller, a, r.RequestedByID)
	if err != nil {
		return ReturningRequestResponse{}, s.classify("get", err)
	}
	if !ok {
		return ReturningRequestResponse{}, ErrNotFound(ReasonReturningRequestMissing, "returning request not found")
	}
	return toReturningResponse(r), nil
}

package assignments

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model =====

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnprocessable    Code = "UNPROCESSABLE_ENTITY" // 業務ルール違反
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"    // 同じ割当を別リクエストが編集中
	CodeStaleData        Code = "STALE_DATA"           // 読んだ後に他の人が更新した
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
)

// Reason は違反したルールを機械的に判別するためのコード
type Reason string

const (
	ReasonAssignerDisabled        Reason = "ASSIGNER_DISABLED"
	ReasonAssigneeNotFound        Reason = "ASSIGNEE_NOT_FOUND"
	ReasonAssigneeDisabled        Reason = "ASSIGNEE_DISABLED"
	ReasonAssigneeIsRoot          Reason = "ASSIGNEE_IS_ROOT"
	ReasonAssetNotFound           Reason = "ASSET_NOT_FOUND"
	ReasonAssetNotAvailable       Reason = "ASSET_NOT_AVAILABLE"
	ReasonSameUser                Reason = "SAME_USER"
	ReasonAssigneeLocation        Reason = "ASSIGNEE_LOCATION_MISMATCH"
	ReasonAssetLocation           Reason = "ASSET_LOCATION_MISMATCH"
	ReasonDateInPast              Reason = "DATE_IN_PAST"
	ReasonAssignmentNotFound      Reason = "ASSIGNMENT_NOT_FOUND"
	ReasonNotEditable             Reason = "ASSIGNMENT_NOT_EDITABLE"
	ReasonNotDeletable            Reason = "ASSIGNMENT_NOT_DELETABLE"
	ReasonNotAdmin                Reason = "NOT_ADMIN"
	ReasonNotAssignee             Reason = "NOT_ASSIGNEE"
	ReasonNotWaiting              Reason = "ASSIGNMENT_NOT_WAITING"
	ReasonNotAccepted             Reason = "ASSIGNMENT_NOT_ACCEPTED"
	ReasonCallerLocation          Reason = "CALLER_LOCATION_MISMATCH"
	ReasonAdminLocation           Reason = "ADMIN_LOCATION_MISMATCH"
	ReasonReturningRequestMissing Reason = "RETURNING_REQUEST_NOT_FOUND"
	ReasonReturnNotWaiting        Reason = "RETURN_NOT_WAITING"
	ReasonReturnAlreadyRequested  Reason = "RETURN_ALREADY_REQUESTED"
	ReasonConcurrentUpdate        Reason = "CONCURRENT_UPDATE"
	ReasonStaleData               Reason = "STALE_DATA"
	ReasonStorageFailure          Reason = "STORAGE_FAILURE"
)

type APIError struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error // 内部原因（レスポンスには出さない）
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func ErrInvalid(msg string) *APIError { return &APIError{Code: CodeInvalidArgument, Message: msg} }

func ErrNotFound(reason Reason, msg string) *APIError {
	return &APIError{Code: CodeNotFound, Reason: reason, Message: msg}
}

func ErrRule(reason Reason, msg string) *APIError {
	return &APIError{Code: CodeUnprocessable, Reason: reason, Message: msg}
}

func ErrConflict(reason Reason, msg string) *APIError {
	return &APIError{Code: CodeConflict, Reason: reason, Message: msg}
}

func ErrConcurrentUpdate() *APIError {
	return &APIError{
		Code:    CodeConcurrentUpdate,
		Reason:  ReasonConcurrentUpdate,
		Message: "the assignment is being updated by another request, please retry",
	}
}

func ErrStale() *APIError {
	return &APIError{
		Code:    CodeStaleData,
		Reason:  ReasonStaleData,
		Message: "data was edited by someone else, please reload and try again",
	}
}

func ErrStorage(err error) *APIError {
	return &APIError{Code: CodeInternal, Reason: ReasonStorageFailure, Message: "storage failure", Err: err}
}

// ReasonOf returns the rule reason carried by err, or "" when there is none.
func ReasonOf(err error) Reason {
	var api *APIError
	if errors.As(err, &api) {
		return api.Reason
	}
	return ""
}

// CodeOf returns the error code carried by err; unknown errors are INTERNAL.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnprocessable:
		return http.StatusUnprocessableEntity
	case CodeConcurrentUpdate, CodeStaleData, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package assignments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ASSET-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes は認証済みグループ（auth.RequireAuth の後ろ）に割当 API を登録する
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	adminOnly := auth.RequireRole(string(RoleAdmin), string(RoleRoot))

	// 割当
	r.POST("/assignments", adminOnly, h.CreateAssignment)
	r.GET("/assignments", h.ListAssignments)
	r.GET("/assignments/:id", h.GetAssignment)
	r.PUT("/assignments/:id", adminOnly, h.EditAssignment)
	r.DELETE("/assignments/:id", adminOnly, h.DeleteAssignment)

	// 承諾・辞退（担当者本人）
	r.POST("/assignments/:id/response", h.RespondAssignment)

	// 返却
	r.POST("/assignments/:id/returning-requests", h.RequestReturn)
	r.GET("/returning-requests/:id", h.GetReturningRequest)
	r.POST("/returning-requests/:id/resolution", adminOnly, h.ResolveReturn)
}

// ---------- handlers ----------

// CreateAssignment godoc
// @Summary  資産を割り当てる
// @Tags     assignments
// @Accept   json
// @Produce  json
// @Param    body body CreateAssignmentRequest true "assignment"
// @Success  201 {object} AssignmentResponse
// @Failure  422 {object} errorDTO
// @Router   /assignments [post]
func (h *Handler) CreateAssignment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "invalid json"))
		return
	}
	res, err := h.svc.CreateAssignment(c.Request.Context(), caller, req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/assignments/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

// EditAssignment godoc
// @Summary  割当を編集する（WAITING_FOR_ACCEPTANCE / DECLINED のみ）
// @Tags     assignments
// @Accept   json
// @Produce  json
// @Param    id   path string true "assignment id"
// @Param    body body EditAssignmentRequest true "changes"
// @Success  200 {object} AssignmentResponse
// @Failure  409 {object} errorDTO
// @Router   /assignments/{id} [put]
func (h *Handler) EditAssignment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req EditAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "invalid json"))
		return
	}
	res, err := h.svc.EditAssignment(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// RespondAssignment godoc
// @Summary  割当を承諾または辞退する
// @Tags     assignments
// @Accept   json
// @Produce  json
// @Param    id   path string true "assignment id"
// @Param    body body RespondAssignmentRequest true "accept or decline"
// @Success  200 {object} AssignmentResponse
// @Router   /assignments/{id}/response [post]
func (h *Handler) RespondAssignment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req RespondAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "invalid json"))
		return
	}
	res, err := h.svc.RespondAssignment(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// RequestReturn godoc
// @Summary  返却を申請する
// @Tags     returning-requests
// @Produce  json
// @Param    id path string true "assignment id"
// @Success  201 {object} RequestReturnResult
// @Router   /assignments/{id}/returning-requests [post]
func (h *Handler) RequestReturn(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req RequestReturnRequest
	// 本文は任意
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "invalid json"))
			return
		}
	}
	res, err := h.svc.RequestReturn(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/returning-requests/"+res.Request.ID)
	c.JSON(http.StatusCreated, res)
}

// ResolveReturn godoc
// @Summary  返却申請を完了または取消する
// @Tags     returning-requests
// @Accept   json
// @Produce  json
// @Param    id   path string true "returning request id"
// @Param    body body ResolveReturnRequest true "confirm or cancel"
// @Success  200 {object} ResolveReturnResult
// @Router   /returning-requests/{id}/resolution [post]
func (h *Handler) ResolveReturn(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req ResolveReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "invalid json"))
		return
	}
	res, err := h.svc.ResolveReturn(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteAssignment godoc
// @Summary  割当を削除する（WAITING_FOR_ACCEPTANCE / DECLINED のみ）
// @Tags     assignments
// @Param    id         path  string true  "assignment id"
// @Param    updated_at query string false "RFC3339 timestamp last read by the client"
// @Success  204
// @Router   /assignments/{id} [delete]
func (h *Handler) DeleteAssignment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var token *time.Time
	if v := c.Query("updated_at"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "", "updated_at must be RFC3339"))
			return
		}
		token = &t
	}
	if err := h.svc.DeleteAssignment(c.Request.Context(), caller, c.Param("id"), token); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetAssignment(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	res, err := h.svc.GetAssignment(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListAssignments(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	f := AssignmentFilter{}
	if v := c.Query("state"); v != "" {
		st := State(v)
		f.State = &st
	}
	if v := c.Query("assignee_id"); v != "" {
		id := normalizeCode(v)
		f.AssigneeID = &id
	}
	if v := c.Query("asset_id"); v != "" {
		f.AssetID = &v
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(DateLayout, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(DateLayout, v); err == nil {
			f.To = &t
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, err := h.svc.ListAssignments(c.Request.Context(), caller, f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetReturningRequest(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	res, err := h.svc.GetReturningRequest(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

// callerFrom は RequireAuth が詰めた値から Caller を作る。無ければ 401 を返して false
func callerFrom(c *gin.Context) (Caller, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeInvalidArgument, "", "unauthenticated"))
		return Caller{}, false
	}
	return Caller{ID: normalizeCode(id.UserID), Role: Role(id.Role), Location: id.Location}, true
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Reason  Reason `json:"reason,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, reason Reason, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Reason = reason
	e.Error.Message = msg
	return e
}

// 内部原因（DB エラー等）はレスポンスに出さない
func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Reason, api.Message)
	}
	return errorBody(CodeInternal, "", "internal error")
}

package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/models"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/monitoring"
	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/service"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

type Handler struct {
	tokenAuth       *jwtauth.JWTAuth
	verification    *service.VerificationService
	audit           *service.AuditService
	bindings        *service.BindingService
	metrics         *monitoring.Metrics
	defaultSoftware string
}

func NewHandler(verification *service.VerificationService, audit *service.AuditService,
	bindings *service.BindingService, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		verification:    verification,
		audit:           audit,
		bindings:        bindings,
		metrics:         metrics,
		defaultSoftware: os.Getenv("TARGET_SOFTWARE"),
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (rs *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "verify service is running at port " + os.Getenv("VERIFY_SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}

type verifyRequest struct {
	CardKey  string `json:"cardKey"`
	Software string `json:"software"`
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: 400, Error: err.Error()})
		return
	}

	if strings.TrimSpace(req.CardKey) == "" {
		h.CreateResponse(w, Response{Message: "card key must not be empty", Code: 400})
		return
	}

	software := strings.TrimSpace(req.Software)
	if software == "" {
		software = h.defaultSoftware
	}
	if software == "" {
		h.CreateResponse(w, Response{Message: "no software identity specified", Code: 400})
		return
	}

	result := h.verification.Verify(r.Context(), software, req.CardKey, clientIP(r))

	if h.metrics != nil {
		outcome := "rejected"
		if result.VerificationPassed {
			outcome = "passed"
		}
		h.metrics.IncAttempt(outcome)
		if result.Download != nil && result.Download.IsNew {
			h.metrics.IncAssignment()
		}
	}

	h.CreateResponse(w, Response{Message: result.Message, Code: 200, Data: result})
}

func (h *Handler) ContextHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		h.CreateResponse(w, Response{Message: "binding code must not be empty", Code: 400})
		return
	}

	software, err := h.bindings.ResolveSoftware(r.Context(), code)
	if err != nil {
		h.CreateResponse(w, Response{Message: "failed to resolve binding code", Code: 500, Error: err.Error()})
		return
	}
	if software == "" {
		h.CreateResponse(w, Response{Message: "unknown binding code", Code: 404})
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: 200, Data: map[string]string{"software": software}})
}

type logListRequest struct {
	CardKey       string `json:"cardKey"`
	IPAddress     string `json:"ipAddress"`
	Keyword       string `json:"keyword"`
	WasSuccessful *bool  `json:"wasSuccessful"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	Page          int    `json:"page"`
	Limit         int    `json:"limit"`
}

type listResponse struct {
	Total int64       `json:"total"`
	Items interface{} `json:"items"`
}

func (h *Handler) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	var req logListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: 400, Error: err.Error()})
		return
	}

	query := models.AttemptQuery{
		CardKey:       req.CardKey,
		IPAddress:     req.IPAddress,
		Keyword:       req.Keyword,
		WasSuccessful: req.WasSuccessful,
		StartTime:     parseTime(req.StartTime),
		EndTime:       parseTime(req.EndTime),
		Page:          req.Page,
		PageSize:      req.Limit,
	}

	items, total, err := h.audit.QueryLogs(r.Context(), query)
	if err != nil {
		h.CreateResponse(w, Response{Message: "failed to query verification logs", Code: 500, Error: err.Error()})
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: 200, Data: listResponse{Total: total, Items: items}})
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) DeleteLogsHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: 400, Error: err.Error()})
		return
	}

	deleted, err := h.audit.DeleteLogs(r.Context(), req.IDs)
	if err != nil {
		h.CreateResponse(w, Response{Message: "failed to delete verification logs", Code: 500, Error: err.Error()})
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: 200, Data: map[string]int64{"deleted": deleted}})
}

type linkListRequest struct {
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

func (h *Handler) ListLinksHandler(w http.ResponseWriter, r *http.Request) {
	var req linkListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: 400, Error: err.Error()})
		return
	}

	items, total, err := h.audit.QueryLinks(r.Context(), req.Keyword, req.Page, req.Limit)
	if err != nil {
		h.CreateResponse(w, Response{Message: "failed to query links", Code: 500, Error: err.Error()})
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: 200, Data: listResponse{Total: total, Items: items}})
}

func (h *Handler) DeleteLinksHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: 400, Error: err.Error()})
		return
	}

	deleted, err := h.audit.DeleteLinks(r.Context(), req.IDs)
	if err != nil {
		h.CreateResponse(w, Response{Message: "failed to delete links", Code: 500, Error: err.Error()})
		return
	}

	h.CreateResponse(w, Response{Message: "ok", Code: 200, Data: map[string]int64{"deleted": deleted}})
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr
// from the forwarding headers; the port is stripped when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}

	return nil
}

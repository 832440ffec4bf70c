package http

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ers-reimbursement/internal/application/service"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/garyjia/ers-reimbursement/internal/domain/workflow"
	"github.com/garyjia/ers-reimbursement/internal/report"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	reimbService   service.ReimbursementService
	exporter       *report.ExcelExporter
	health         HealthChecker
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	reimbService service.ReimbursementService,
	exporter *report.ExcelExporter,
	health HealthChecker,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	return &Handlers{
		reimbService:   reimbService,
		exporter:       exporter,
		health:         health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ResolveRequest is the body of PATCH /reimbs/:id/resolve
type ResolveRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: "service unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListReimbursements handles GET /reimbs
func (h *Handlers) ListReimbursements(c *gin.Context) {
	status := c.Query("status")
	reimbType := c.Query("type")

	var (
		list []*entity.Reimbursement
		err  error
	)
	if status == "" && reimbType == "" {
		list, err = h.reimbService.List(c.Request.Context())
	} else {
		list, err = h.reimbService.Filter(c.Request.Context(), status, reimbType)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ListMine handles GET /reimbs/mine
func (h *Handlers) ListMine(c *gin.Context) {
	list, err := h.reimbService.ListForAuthor(c.Request.Context(), principalFrom(c).Username)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// Lookup handles GET /reimbs/lookup?key=&value=
func (h *Handlers) Lookup(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		h.badRequest(c, "key is required")
		return
	}

	r, err := h.reimbService.FindBy(c.Request.Context(), entity.LookupKey(key), c.Query("value"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// Export handles GET /reimbs/export, honouring the same filters as GET /reimbs
func (h *Handlers) Export(c *gin.Context) {
	status := c.Query("status")
	reimbType := c.Query("type")

	var (
		list []*entity.Reimbursement
		err  error
	)
	if status == "" && reimbType == "" {
		list, err = h.reimbService.List(c.Request.Context())
	} else {
		list, err = h.reimbService.Filter(c.Request.Context(), status, reimbType)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, list); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("reimbursements-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

// GetReimbursement handles GET /reimbs/:id
func (h *Handlers) GetReimbursement(c *gin.Context) {
	r, ok := h.loadOwned(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// SubmitReimbursement handles POST /reimbs
func (h *Handlers) SubmitReimbursement(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	r, err := h.reimbService.Submit(c.Request.Context(), principalFrom(c).Username, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: r})
}

// UpdateReimbursement handles PUT /reimbs/:id
func (h *Handlers) UpdateReimbursement(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var body entity.Reimbursement
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	body.ID = id

	r, err := h.reimbService.Update(c.Request.Context(), &body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// ResolveReimbursement handles PATCH /reimbs/:id/resolve
func (h *Handlers) ResolveReimbursement(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "decision is required")
		return
	}

	r, err := h.reimbService.Resolve(c.Request.Context(), id, req.Decision, principalFrom(c).Username)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// DeleteReimbursement handles DELETE /reimbs/:id
func (h *Handlers) DeleteReimbursement(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.reimbService.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadReceipt handles POST /reimbs/:id/receipt (multipart field "file")
func (h *Handlers) UploadReceipt(c *gin.Context) {
	r, ok := h.loadOwned(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "receipt too large"})
			return
		}
		h.badRequest(c, "file is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	updated, err := h.reimbService.AttachReceipt(c.Request.Context(), r.ID, header.Filename, file)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DownloadReceipt handles GET /reimbs/:id/receipt
func (h *Handlers) DownloadReceipt(c *gin.Context) {
	r, ok := h.loadOwned(c)
	if !ok {
		return
	}

	content, ref, err := h.reimbService.OpenReceipt(c.Request.Context(), r.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(ref))
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": path.Base(ref)}))
	c.Data(http.StatusOK, contentType, content)
}

// loadOwned loads the :id record and checks the caller is its author or an admin
func (h *Handlers) loadOwned(c *gin.Context) (*entity.Reimbursement, bool) {
	id, ok := h.parseID(c)
	if !ok {
		return nil, false
	}

	r, err := h.reimbService.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}

	p := principalFrom(c)
	if !p.IsAdmin() && r.Author != p.Username {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "not the author of this reimbursement"})
		return nil, false
	}
	return r, true
}

func (h *Handlers) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid reimbursement id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps domain errors to status codes; 500s never expose the cause
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.FullPath(),
			"request_id", c.GetString(ctxRequestID),
			"error", err)
		msg = "internal server error"
	}

	c.JSON(status, Response{Success: false, Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrInvalidLookupKey),
		errors.Is(err, entity.ErrUnresolvedName),
		errors.Is(err, workflow.ErrUnknownTrigger):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrGuardFailed),
		errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

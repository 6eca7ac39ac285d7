package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/models"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/services"
)

// SessionHandler exposes the booking wizard's draft sessions over HTTP
type SessionHandler struct {
	sessions *services.SessionService
	logger   *logrus.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions *services.SessionService, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Create opens a new draft session
// POST /api/v1/draft-sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.CreateDraftSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.Create(&req, c.Request.UserAgent())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

// Get returns the current state of a session
// GET /api/v1/draft-sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	snap, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// UpdateWindow changes the candidate window
// PUT /api/v1/draft-sessions/:id/window
func (h *SessionHandler) UpdateWindow(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.UpdateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.UpdateWindow(id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// AddItem adds a line item to the cart
// POST /api/v1/draft-sessions/:id/items
func (h *SessionHandler) AddItem(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.AddLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.AddItem(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// RemoveItem removes a line item from the cart
// DELETE /api/v1/draft-sessions/:id/items/:resourceId/:variationKey
func (h *SessionHandler) RemoveItem(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	snap, err := h.sessions.RemoveItem(id, c.Param("resourceId"), c.Param("variationKey"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// SetCustomer records customer details
// PUT /api/v1/draft-sessions/:id/customer
func (h *SessionHandler) SetCustomer(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.SetCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.SetCustomer(id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// StagePayment stages the deposit payment
// PUT /api/v1/draft-sessions/:id/payment
func (h *SessionHandler) StagePayment(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.StagePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.StagePayment(id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// Navigate moves the wizard one step forward or backward
// POST /api/v1/draft-sessions/:id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req models.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.sessions.Navigate(id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// Submit runs the authoritative commit for the draft
// POST /api/v1/draft-sessions/:id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), id)
	if err != nil {
		h.respondSubmitError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Cancel abandons a draft session
// DELETE /api/v1/draft-sessions/:id
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.sessions.Cancel(id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Draft session cancelled"})
}

// sessionID parses the :id path parameter, responding 400 on failure
func (h *SessionHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP responses
func (h *SessionHandler) respondError(c *gin.Context, err error) {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"fields": vErr.Fields,
		})
		return
	}

	if errors.Is(err, services.ErrConfirmRequired) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Changing the date will clear the selected items",
			"code":  "confirm_required",
		})
		return
	}

	var blocked *services.StepBlockedError
	if errors.As(err, &blocked) {
		c.JSON(http.StatusConflict, gin.H{
			"error":        blocked.Error(),
			"code":         "verification_blocked",
			"verification": blocked.Verification,
		})
		return
	}

	if errors.Is(err, services.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draft session not found"})
		return
	}

	if errors.Is(err, services.ErrSessionClosed) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Draft session is already committed or cancelled",
			"code":  "session_closed",
		})
		return
	}

	h.logger.WithError(err).Error("Draft session operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// respondSubmitError additionally maps the commit conflict outcome, which
// carries the authoritative unavailable lines
func (h *SessionHandler) respondSubmitError(c *gin.Context, id uuid.UUID, err error) {
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		h.logger.WithFields(logrus.Fields{
			"session_id": id,
			"lines":      len(conflict.Lines),
		}).Info("Commit rejected with conflicts")
		c.JSON(http.StatusConflict, gin.H{
			"error":       "Some items are no longer available",
			"code":        "unavailable",
			"unavailable": conflict.Lines,
		})
		return
	}
	h.respondError(c, err)
}

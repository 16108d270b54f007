package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/recon"
	"github.com/your-org/marina/internal/storage"
	"github.com/your-org/marina/pkg/dto"
)

type StateHandler struct {
	db         *storage.PostgresStore
	reconciler *recon.Reconciler
}

func NewStateHandler(db *storage.PostgresStore, reconciler *recon.Reconciler) *StateHandler {
	return &StateHandler{db: db, reconciler: reconciler}
}

// Create adds a state by hand, bypassing reconciliation. Used when an
// operator records a vessel the cameras missed.
func (h *StateHandler) Create(c *gin.Context) {
	var req dto.CreateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	st := &models.State{
		ArrivalTime:            req.ArrivalTime,
		DepartureTime:          req.DepartureTime,
		BestDetectedIdentifier: req.BestDetectedIdentifier,
		BestDetectedBoatLength: req.BestDetectedBoatLength,
		PaymentStatus:          models.PaymentStatusUnpaid,
		TimeInMarina:           req.TimeInMarina,
		StateOfBoat:            models.StateOfBoatTransiting,
		AddedManually:          true,
		EditTimestamp:          &now,
	}
	if req.PaymentStatus != nil {
		st.PaymentStatus = *req.PaymentStatus
	}
	if req.StateOfBoat != nil {
		st.StateOfBoat = *req.StateOfBoat
	}

	if err := h.db.CreateState(c.Request.Context(), st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.StateToResponse(st))
}

func (h *StateHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	states, total, err := h.db.ListStates(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.StateResponse, 0, len(states))
	for i := range states {
		out = append(out, dto.StateToResponse(&states[i]))
	}

	c.JSON(http.StatusOK, dto.StateListResponse{States: out, Total: total})
}

func (h *StateHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state id"})
		return
	}

	st, err := h.db.GetState(c.Request.Context(), id)
	if err != nil {
		respondStateError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateToResponse(st))
}

// UpdatePayment sets payment_status only.
func (h *StateHandler) UpdatePayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state id"})
		return
	}

	var req dto.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.reconciler.ApplyPayment(c.Request.Context(), id, req.PaymentStatus)
	if err != nil {
		respondStateError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateToResponse(st))
}

// UpdateIdentifier sets best_detected_identifier only.
func (h *StateHandler) UpdateIdentifier(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state id"})
		return
	}

	var req dto.IdentifierUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.reconciler.ApplyIdentifier(c.Request.Context(), id, req.BestDetectedIdentifier)
	if err != nil {
		respondStateError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateToResponse(st))
}

// Update merges a partial patch; absent fields stay untouched.
func (h *StateHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state id"})
		return
	}

	var patch models.StatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.reconciler.ApplyPatch(c.Request.Context(), id, patch)
	if err != nil {
		respondStateError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateToResponse(st))
}

func respondStateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "state not found"})
	case errors.Is(err, recon.ErrInvalidUpdate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

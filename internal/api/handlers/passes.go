package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/marina/internal/ingest"
	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/recon"
	"github.com/your-org/marina/internal/storage"
	"github.com/your-org/marina/pkg/dto"
)

type PassHandler struct {
	ingest     *ingest.Service
	reconciler *recon.Reconciler
	db         *storage.PostgresStore
	images     *storage.MinIOStore
}

func NewPassHandler(ing *ingest.Service, rec *recon.Reconciler, db *storage.PostgresStore, images *storage.MinIOStore) *PassHandler {
	return &PassHandler{ingest: ing, reconciler: rec, db: db, images: images}
}

// Create records a detection and runs reconciliation on it. Evidence persist
// and lifecycle decision stay separable steps behind one endpoint.
func (h *PassHandler) Create(c *gin.Context) {
	var req dto.CreateBoatPassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
		return
	}

	var image []byte
	if req.Image != "" {
		image, err = base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64"})
			return
		}
	}

	detection := ingest.Detection{
		CameraID:           req.CameraID,
		Timestamp:          ts,
		RawText:            req.RawText,
		DetectedIdentifier: req.DetectedIdentifier,
		BoatLength:         req.BoatLength,
		VisitStart:         req.VisitStart,
		BoundingBoxes:      boxesFromRequest(req.BoundingBoxes),
		Image:              image,
	}

	pass, err := h.ingest.Record(c.Request.Context(), detection)
	if err != nil {
		if errors.Is(err, ingest.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.reconciler.OpenOrAttach(c.Request.Context(), pass); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, passToResponse(pass))
}

func (h *PassHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	passes, total, err := h.db.ListBoatPasses(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.BoatPassResponse, 0, len(passes))
	for i := range passes {
		resp = append(resp, passToResponse(&passes[i]))
	}

	c.JSON(http.StatusOK, dto.BoatPassListResponse{BoatPasses: resp, Total: total})
}

func (h *PassHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid boat pass id"})
		return
	}

	pass, err := h.db.GetBoatPass(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "boat pass not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, passToResponse(pass))
}

// Image proxies the evidence image from the content store.
func (h *PassHandler) Image(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid boat pass id"})
		return
	}

	pass, err := h.db.GetBoatPass(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "boat pass not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pass.ImageFilename == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "boat pass has no image"})
		return
	}

	data, err := h.images.GetObject(c.Request.Context(), pass.ImageFilename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func boxesFromRequest(boxes []dto.BoundingBoxRequest) []models.BoundingBox {
	out := make([]models.BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		box := models.BoundingBox{
			Left:            b.Left,
			Top:             b.Top,
			Right:           b.Right,
			Bottom:          b.Bottom,
			Confidence:      b.Confidence,
			ClassIdentifier: b.ClassIdentifier,
		}
		for _, o := range b.OcrResults {
			box.OcrResults = append(box.OcrResults, models.OcrResult{
				Left:       o.Left,
				Top:        o.Top,
				Right:      o.Right,
				Bottom:     o.Bottom,
				Text:       o.Text,
				Confidence: o.Confidence,
			})
		}
		out = append(out, box)
	}
	return out
}

func passToResponse(bp *models.BoatPass) dto.BoatPassResponse {
	r := dto.BoatPassResponse{
		ID:                 bp.ID,
		CameraID:           bp.CameraID,
		Timestamp:          bp.Timestamp.Format(time.RFC3339),
		RawText:            bp.RawText,
		DetectedIdentifier: bp.DetectedIdentifier,
		BoatLength:         bp.BoatLength,
		VisitStart:         bp.VisitStart,
		BoundingBoxes:      bp.BoundingBoxes,
		CreatedAt:          bp.CreatedAt.Format(time.RFC3339),
	}
	if bp.ImageFilename != "" {
		r.ImageURL = "/api/v1/boat-passes/" + strconv.FormatInt(bp.ID, 10) + "/image"
	}
	return r
}

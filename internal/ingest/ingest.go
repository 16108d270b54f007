// Package ingest validates and persists incoming boat pass detections.
// Evidence capture is kept separate from the lifecycle decision: Record
// never creates or touches a State.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/observability"
	"github.com/your-org/marina/internal/storage"
)

// ErrValidation marks a rejected payload. Nothing is persisted for it.
var ErrValidation = errors.New("validation failed")

// PassStore persists a boat pass and its evidence tree atomically. The
// image-key lookup makes relay redeliveries detectable.
type PassStore interface {
	CreateBoatPass(ctx context.Context, bp *models.BoatPass) error
	GetBoatPassByImageKey(ctx context.Context, key string) (*models.BoatPass, error)
}

// ImageStore holds evidence images keyed by filename.
type ImageStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Detection is one incoming boat pass. Image carries raw bytes when the
// caller has them (HTTP boundary); ImageKey names an already-stored object
// (relay boundary). At most one of the two is used.
type Detection struct {
	CameraID           int
	Timestamp          time.Time
	RawText            string
	DetectedIdentifier string
	BoatLength         *models.BoatLength
	VisitStart         bool
	BoundingBoxes      []models.BoundingBox
	Image              []byte
	ImageKey           string
}

type Service struct {
	store  PassStore
	images ImageStore
}

func NewService(store PassStore, images ImageStore) *Service {
	return &Service{store: store, images: images}
}

// Record validates the detection and persists the pass with its full
// evidence tree as one unit. The image write is best-effort: a content-store
// failure is logged and never fails the detection.
func (s *Service) Record(ctx context.Context, d Detection) (*models.BoatPass, error) {
	if err := validate(d); err != nil {
		return nil, err
	}

	// Relay events arrive at least once. A key that already has a pass is a
	// redelivery, not a new detection.
	if d.ImageKey != "" {
		existing, err := s.store.GetBoatPassByImageKey(ctx, d.ImageKey)
		if err == nil {
			slog.Debug("detection already recorded for image key",
				"boat_pass_id", existing.ID, "image_key", d.ImageKey)
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("look up boat pass by image key: %w", err)
		}
	}

	key := d.ImageKey
	if len(d.Image) > 0 {
		key = fmt.Sprintf("passes/%s.jpg", uuid.New().String())
	}

	bp := &models.BoatPass{
		CameraID:           d.CameraID,
		Timestamp:          d.Timestamp,
		ImageFilename:      key,
		RawText:            d.RawText,
		DetectedIdentifier: d.DetectedIdentifier,
		BoatLength:         d.BoatLength,
		VisitStart:         d.VisitStart,
		BoundingBoxes:      d.BoundingBoxes,
	}

	if err := s.store.CreateBoatPass(ctx, bp); err != nil {
		return nil, fmt.Errorf("persist boat pass: %w", err)
	}

	if len(d.Image) > 0 {
		if err := s.images.PutObject(ctx, key, d.Image, "image/jpeg"); err != nil {
			slog.Error("store pass image", "key", key, "boat_pass_id", bp.ID, "error", err)
		}
	}

	observability.PassesIngested.WithLabelValues(fmt.Sprintf("%d", bp.CameraID)).Inc()
	slog.Debug("boat pass recorded", "boat_pass_id", bp.ID, "camera_id", bp.CameraID,
		"boxes", len(bp.BoundingBoxes))
	return bp, nil
}

func validate(d Detection) error {
	if d.CameraID <= 0 {
		return fmt.Errorf("%w: camera_id is required", ErrValidation)
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	for _, box := range d.BoundingBoxes {
		if box.Confidence < 0 || box.Confidence > 1 {
			return fmt.Errorf("%w: bounding box confidence out of range", ErrValidation)
		}
		for _, ocr := range box.OcrResults {
			if ocr.Confidence < 0 || ocr.Confidence > 1 {
				return fmt.Errorf("%w: ocr confidence out of range", ErrValidation)
			}
		}
	}
	return nil
}

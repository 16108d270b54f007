package dto

import "github.com/your-org/marina/internal/models"

type OcrResultRequest struct {
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	Right      float64 `json:"right"`
	Bottom     float64 `json:"bottom"`
	Text       string  `json:"text" binding:"required"`
	Confidence float64 `json:"confidence"`
}

type BoundingBoxRequest struct {
	Left            float64            `json:"left"`
	Top             float64            `json:"top"`
	Right           float64            `json:"right"`
	Bottom          float64            `json:"bottom"`
	Confidence      float64            `json:"confidence"`
	ClassIdentifier int                `json:"class_identifier"`
	OcrResults      []OcrResultRequest `json:"ocr_results,omitempty"`
}

type CreateBoatPassRequest struct {
	CameraID           int                  `json:"camera_id" binding:"required"`
	Timestamp          string               `json:"timestamp" binding:"required"`
	RawText            string               `json:"raw_text,omitempty"`
	DetectedIdentifier string               `json:"detected_identifier,omitempty"`
	BoatLength         *models.BoatLength   `json:"boat_length,omitempty" binding:"omitempty,oneof=under_8m over_8m"`
	VisitStart         bool                 `json:"visit_start"`
	Image              string               `json:"image,omitempty"` // base64 JPEG
	BoundingBoxes      []BoundingBoxRequest `json:"bounding_boxes,omitempty"`
}

type BoatPassResponse struct {
	ID                 int64                 `json:"id"`
	CameraID           int                   `json:"camera_id"`
	Timestamp          string                `json:"timestamp"`
	ImageURL           string                `json:"image_url,omitempty"`
	RawText            string                `json:"raw_text,omitempty"`
	DetectedIdentifier string                `json:"detected_identifier,omitempty"`
	BoatLength         *models.BoatLength    `json:"boat_length,omitempty"`
	VisitStart         bool                  `json:"visit_start"`
	BoundingBoxes      []models.BoundingBox  `json:"bounding_boxes,omitempty"`
	CreatedAt          string                `json:"created_at"`
}

type BoatPassListResponse struct {
	BoatPasses []BoatPassResponse `json:"boat_passes"`
	Total      int                `json:"total"`
}

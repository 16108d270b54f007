package models

import (
	"strings"
	"time"
)

type BoatLength string

const (
	BoatLengthUnder8m BoatLength = "under_8m"
	BoatLengthOver8m  BoatLength = "over_8m"
)

// UnresolvedMarker is the placeholder OCR emits for a character it could not
// confidently read. One marker per unreadable character.
const UnresolvedMarker = "*"

// HasUnresolvedIdentifier reports whether an identifier still contains
// characters OCR failed to resolve.
func HasUnresolvedIdentifier(identifier string) bool {
	return strings.Contains(identifier, UnresolvedMarker)
}

// BoatPass is one camera-triggered detection event. It is immutable after
// creation; States reference passes by id but never own them.
type BoatPass struct {
	ID                 int64         `json:"id" db:"id"`
	CameraID           int           `json:"camera_id" db:"camera_id"`
	Timestamp          time.Time     `json:"timestamp" db:"timestamp"`
	ImageFilename      string        `json:"image_filename" db:"image_filename"`
	RawText            string        `json:"raw_text,omitempty" db:"raw_text"`
	DetectedIdentifier string        `json:"detected_identifier,omitempty" db:"detected_identifier"`
	BoatLength         *BoatLength   `json:"boat_length,omitempty" db:"boat_length"`
	VisitStart         bool          `json:"visit_start" db:"visit_start"`
	BoundingBoxes      []BoundingBox `json:"bounding_boxes" db:"-"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
}

// BoundingBox is a detected region within a boat pass image. Coordinates are
// fractional (0..1) relative to the frame.
type BoundingBox struct {
	ID              int64       `json:"id" db:"id"`
	BoatPassID      int64       `json:"boat_pass_id" db:"boat_pass_id"`
	Left            float64     `json:"left" db:"box_left"`
	Top             float64     `json:"top" db:"box_top"`
	Right           float64     `json:"right" db:"box_right"`
	Bottom          float64     `json:"bottom" db:"box_bottom"`
	Confidence      float64     `json:"confidence" db:"confidence"`
	ClassIdentifier int         `json:"class_identifier" db:"class_identifier"`
	OcrResults      []OcrResult `json:"ocr_results" db:"-"`
}

// OcrResult is one recognized text span within a bounding box.
type OcrResult struct {
	ID            int64   `json:"id" db:"id"`
	BoundingBoxID int64   `json:"bounding_box_id" db:"bounding_box_id"`
	Left          float64 `json:"left" db:"box_left"`
	Top           float64 `json:"top" db:"box_top"`
	Right         float64 `json:"right" db:"box_right"`
	Bottom        float64 `json:"bottom" db:"box_bottom"`
	Text          string  `json:"text" db:"text"`
	Confidence    float64 `json:"confidence" db:"confidence"`
}

// PassEvent is the message the capture relay publishes to NATS for each
// detection. Image bytes travel separately through the content store; the
// event carries the object key.
type PassEvent struct {
	CameraID           int           `json:"camera_id"`
	Timestamp          time.Time     `json:"timestamp"`
	ImageKey           string        `json:"image_key"`
	RawText            string        `json:"raw_text,omitempty"`
	DetectedIdentifier string        `json:"detected_identifier,omitempty"`
	BoatLength         *BoatLength   `json:"boat_length,omitempty"`
	VisitStart         bool          `json:"visit_start"`
	BoundingBoxes      []BoundingBox `json:"bounding_boxes,omitempty"`
}

// PreviewFrame is the message the capture relay publishes for live preview
// fan-out. The payload is a JPEG, base64-encoded on the websocket side.
type PreviewFrame struct {
	CameraID  int       `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	Image     []byte    `json:"image"`
}

package dto

import (
	"time"

	"github.com/your-org/marina/internal/models"
)

type CreateStateRequest struct {
	ArrivalTime            *time.Time            `json:"arrival_time,omitempty"`
	DepartureTime          *time.Time            `json:"departure_time,omitempty"`
	BestDetectedIdentifier *string               `json:"best_detected_identifier,omitempty"`
	BestDetectedBoatLength *models.BoatLength    `json:"best_detected_boat_length,omitempty" binding:"omitempty,oneof=under_8m over_8m"`
	PaymentStatus          *models.PaymentStatus `json:"payment_status,omitempty" binding:"omitempty,oneof=paid unpaid exempt"`
	TimeInMarina           *int                  `json:"time_in_marina,omitempty"`
	StateOfBoat            *models.StateOfBoat   `json:"state_of_boat,omitempty" binding:"omitempty,oneof=moored transiting"`
}

type PaymentUpdateRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required,oneof=paid unpaid exempt"`
}

type IdentifierUpdateRequest struct {
	BestDetectedIdentifier string `json:"best_detected_identifier" binding:"required"`
}

type StateResponse struct {
	ID                     int64                 `json:"id"`
	ArrivalTime            *time.Time            `json:"arrival_time,omitempty"`
	DepartureTime          *time.Time            `json:"departure_time,omitempty"`
	BestDetectedIdentifier *string               `json:"best_detected_identifier,omitempty"`
	BestDetectedBoatLength *models.BoatLength    `json:"best_detected_boat_length,omitempty"`
	PaymentStatus          models.PaymentStatus  `json:"payment_status"`
	TimeInMarina           *int                  `json:"time_in_marina,omitempty"`
	StateOfBoat            models.StateOfBoat    `json:"state_of_boat"`
	AddedManually          bool                  `json:"added_manually"`
	WeirdState             bool                  `json:"weird_state"`
	EditTimestamp          *time.Time            `json:"edit_timestamp,omitempty"`
	FirstBoatPassID        *int64                `json:"first_boat_pass_id,omitempty"`
	LastBoatPassID         *int64                `json:"last_boat_pass_id,omitempty"`
}

type StateListResponse struct {
	States []StateResponse `json:"states"`
	Total  int             `json:"total"`
}

func StateToResponse(st *models.State) StateResponse {
	return StateResponse{
		ID:                     st.ID,
		ArrivalTime:            st.ArrivalTime,
		DepartureTime:          st.DepartureTime,
		BestDetectedIdentifier: st.BestDetectedIdentifier,
		BestDetectedBoatLength: st.BestDetectedBoatLength,
		PaymentStatus:          st.PaymentStatus,
		TimeInMarina:           st.TimeInMarina,
		StateOfBoat:            st.StateOfBoat,
		AddedManually:          st.AddedManually,
		WeirdState:             st.WeirdState,
		EditTimestamp:          st.EditTimestamp,
		FirstBoatPassID:        st.FirstBoatPassID,
		LastBoatPassID:         st.LastBoatPassID,
	}
}

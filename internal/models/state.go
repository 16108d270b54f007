package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusExempt PaymentStatus = "exempt"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentStatusPaid, PaymentStatusUnpaid, PaymentStatusExempt:
		return true
	}
	return false
}

type StateOfBoat string

const (
	StateOfBoatMoored     StateOfBoat = "moored"
	StateOfBoatTransiting StateOfBoat = "transiting"
)

func (s StateOfBoat) Valid() bool {
	return s == StateOfBoatMoored || s == StateOfBoatTransiting
}

// State is the consolidated presence record for one vessel visit.
// FirstBoatPassID is the pass that opened the record, LastBoatPassID the one
// that closed it; both are associative links, never ownership. A State with
// only a first pass is a still-present vessel. Records are retained for
// reporting, never physically deleted in normal operation.
//
// Invariant: LastBoatPassID set implies DepartureTime >= ArrivalTime.
type State struct {
	ID                     int64          `json:"id" db:"id"`
	ArrivalTime            *time.Time     `json:"arrival_time,omitempty" db:"arrival_time"`
	DepartureTime          *time.Time     `json:"departure_time,omitempty" db:"departure_time"`
	BestDetectedIdentifier *string        `json:"best_detected_identifier,omitempty" db:"best_detected_identifier"`
	BestDetectedBoatLength *BoatLength    `json:"best_detected_boat_length,omitempty" db:"best_detected_boat_length"`
	PaymentStatus          PaymentStatus  `json:"payment_status" db:"payment_status"`
	TimeInMarina           *int           `json:"time_in_marina,omitempty" db:"time_in_marina"`
	StateOfBoat            StateOfBoat    `json:"state_of_boat" db:"state_of_boat"`
	AddedManually          bool           `json:"added_manually" db:"added_manually"`
	WeirdState             bool           `json:"weird_state" db:"weird_state"`
	EditTimestamp          *time.Time     `json:"edit_timestamp,omitempty" db:"edit_timestamp"`
	FirstBoatPassID        *int64         `json:"first_boat_pass_id,omitempty" db:"first_boat_pass_id"`
	LastBoatPassID         *int64         `json:"last_boat_pass_id,omitempty" db:"last_boat_pass_id"`
}

// StatePatch carries a partial update: nil fields are left untouched, not
// reset. Applied as a single critical section per State id.
type StatePatch struct {
	ArrivalTime            *time.Time     `json:"arrival_time,omitempty"`
	DepartureTime          *time.Time     `json:"departure_time,omitempty"`
	BestDetectedIdentifier *string        `json:"best_detected_identifier,omitempty"`
	BestDetectedBoatLength *BoatLength    `json:"best_detected_boat_length,omitempty"`
	PaymentStatus          *PaymentStatus `json:"payment_status,omitempty"`
	TimeInMarina           *int           `json:"time_in_marina,omitempty"`
	StateOfBoat            *StateOfBoat   `json:"state_of_boat,omitempty"`
	WeirdState             *bool          `json:"weird_state,omitempty"`
	LastBoatPassID         *int64         `json:"last_boat_pass_id,omitempty"`
}

// IsZero reports whether the patch carries no fields at all.
func (p StatePatch) IsZero() bool {
	return p.ArrivalTime == nil && p.DepartureTime == nil &&
		p.BestDetectedIdentifier == nil && p.BestDetectedBoatLength == nil &&
		p.PaymentStatus == nil && p.TimeInMarina == nil &&
		p.StateOfBoat == nil && p.WeirdState == nil && p.LastBoatPassID == nil
}

// Apply merges the patch into a copy of s and returns it. EditTimestamp is
// the caller's responsibility.
func (p StatePatch) Apply(s State) State {
	if p.ArrivalTime != nil {
		s.ArrivalTime = p.ArrivalTime
	}
	if p.DepartureTime != nil {
		s.DepartureTime = p.DepartureTime
	}
	if p.BestDetectedIdentifier != nil {
		s.BestDetectedIdentifier = p.BestDetectedIdentifier
	}
	if p.BestDetectedBoatLength != nil {
		s.BestDetectedBoatLength = p.BestDetectedBoatLength
	}
	if p.PaymentStatus != nil {
		s.PaymentStatus = *p.PaymentStatus
	}
	if p.TimeInMarina != nil {
		s.TimeInMarina = p.TimeInMarina
	}
	if p.StateOfBoat != nil {
		s.StateOfBoat = *p.StateOfBoat
	}
	if p.WeirdState != nil {
		s.WeirdState = *p.WeirdState
	}
	if p.LastBoatPassID != nil {
		s.LastBoatPassID = p.LastBoatPassID
	}
	return s
}

package model

import (
	"fmt"
	"strings"

	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	switch AppointmentStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", apperrors.NewShape("appointment", fmt.Errorf("unrecognized status %q", s))
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether s accepts a mutation to target. Only
// PENDING appointments may change, and only into a terminal state.
func (s AppointmentStatus) CanTransitionTo(target AppointmentStatus) bool {
	return s == StatusPending && target.Terminal()
}

// PersonSummary is the counterpart summary embedded in an appointment: the
// doctor on the patient view, the patient on the doctor view.
type PersonSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	PhotoURL       string `json:"photo_url,omitempty"`
}

type Appointment struct {
	ID      string            `json:"id"`
	Date    string            `json:"date"`
	Status  AppointmentStatus `json:"status"`
	Doctor  *PersonSummary    `json:"doctor,omitempty"`
	Patient *PersonSummary    `json:"patient,omitempty"`
}

// WithStatus returns a copy of a with the status replaced. Optimistic
// updates build new values so cache snapshots stay untouched.
func (a Appointment) WithStatus(status AppointmentStatus) Appointment {
	a.Status = status
	return a
}

type Doctor struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	PhotoURL       string `json:"photo_url,omitempty"`
}

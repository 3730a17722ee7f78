package model

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
)

// Page is one cached page of a server collection, plus the total count when
// the server supplied one.
type Page[T any] struct {
	Items []T  `json:"items"`
	Total *int `json:"total,omitempty"`
}

// TotalPages derives the page count for limit-sized pages. The second return
// is false when the server sent no total.
func (p *Page[T]) TotalPages(limit int) (int, bool) {
	if p.Total == nil || limit <= 0 {
		return 0, false
	}
	pages := (*p.Total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return pages, true
}

// HasNext reports whether another page is worth requesting. Without a total,
// a full page is taken as "probably more".
func (p *Page[T]) HasNext(page, limit int) bool {
	if pages, ok := p.TotalPages(limit); ok {
		return page < pages
	}
	return len(p.Items) >= limit
}

// collectionEnvelope enumerates the wrappings the upstream uses for
// collections. Exactly one of the array fields is expected to be set; meta
// carries an alternative home for the total.
type collectionEnvelope struct {
	Appointments []json.RawMessage `json:"appointments"`
	Doctors      []json.RawMessage `json:"doctors"`
	Data         []json.RawMessage `json:"data"`
	Items        []json.RawMessage `json:"items"`
	Total        *int              `json:"total"`
	Meta         struct {
		Total *int `json:"total"`
	} `json:"meta"`
}

func (e *collectionEnvelope) total() *int {
	if e.Meta.Total != nil {
		return e.Meta.Total
	}
	return e.Total
}

func (e *collectionEnvelope) first(fields ...[]json.RawMessage) []json.RawMessage {
	for _, f := range fields {
		if f != nil {
			return f
		}
	}
	return nil
}

// DecodeAppointments unwraps a paginated appointment response, tolerating
// the collection under appointments, data or items.
func DecodeAppointments(raw []byte) (*Page[Appointment], error) {
	var env collectionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewShape("appointments", err)
	}

	items := env.first(env.Appointments, env.Data, env.Items)
	page := &Page[Appointment]{Items: make([]Appointment, 0, len(items)), Total: env.total()}
	for _, item := range items {
		appt, err := decodeAppointment(item)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *appt)
	}
	return page, nil
}

type appointmentProbe struct {
	ID      interface{}    `json:"id"`
	MongoID interface{}    `json:"_id"`
	Date    string         `json:"date"`
	Status  string         `json:"status"`
	Doctor  *personProbe   `json:"doctor"`
	Patient *personProbe   `json:"patient"`
}

type personProbe struct {
	ID             interface{} `json:"id"`
	MongoID        interface{} `json:"_id"`
	Name           string      `json:"name"`
	FullName       string      `json:"fullName"`
	Email          string      `json:"email"`
	Specialization string      `json:"specialization"`
	PhotoURL       string      `json:"photo_url"`
}

func (p *personProbe) summary() *PersonSummary {
	if p == nil {
		return nil
	}
	id := stringID(p.ID)
	if id == "" {
		id = stringID(p.MongoID)
	}
	name := p.Name
	if name == "" {
		name = p.FullName
	}
	return &PersonSummary{
		ID:             id,
		Name:           name,
		Email:          p.Email,
		Specialization: p.Specialization,
		PhotoURL:       p.PhotoURL,
	}
}

func decodeAppointment(raw json.RawMessage) (*Appointment, error) {
	var probe appointmentProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apperrors.NewShape("appointment", err)
	}

	id := stringID(probe.ID)
	if id == "" {
		id = stringID(probe.MongoID)
	}
	if id == "" {
		return nil, apperrors.NewShape("appointment", fmt.Errorf("missing id"))
	}

	status, err := ParseStatus(probe.Status)
	if err != nil {
		return nil, err
	}

	return &Appointment{
		ID:      id,
		Date:    probe.Date,
		Status:  status,
		Doctor:  probe.Doctor.summary(),
		Patient: probe.Patient.summary(),
	}, nil
}

// DecodeDoctors unwraps a paginated doctor response, tolerating the
// collection under doctors, data or items.
func DecodeDoctors(raw []byte) (*Page[Doctor], error) {
	var env collectionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewShape("doctors", err)
	}

	items := env.first(env.Doctors, env.Data, env.Items)
	page := &Page[Doctor]{Items: make([]Doctor, 0, len(items)), Total: env.total()}
	for _, item := range items {
		var probe personProbe
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, apperrors.NewShape("doctors", err)
		}
		s := (&probe).summary()
		if s.ID == "" {
			return nil, apperrors.NewShape("doctors", fmt.Errorf("missing id"))
		}
		page.Items = append(page.Items, Doctor{
			ID:             s.ID,
			Name:           s.Name,
			Email:          s.Email,
			Specialization: s.Specialization,
			PhotoURL:       s.PhotoURL,
		})
	}
	return page, nil
}

// DecodeSpecializations accepts a bare string array or the array wrapped
// under data, items or specializations.
func DecodeSpecializations(raw []byte) ([]string, error) {
	var bare []string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var env struct {
		Data            []string `json:"data"`
		Items           []string `json:"items"`
		Specializations []string `json:"specializations"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewShape("specializations", err)
	}
	switch {
	case env.Data != nil:
		return env.Data, nil
	case env.Items != nil:
		return env.Items, nil
	case env.Specializations != nil:
		return env.Specializations, nil
	}
	return []string{}, nil
}

// DecodeLoginPayload extracts token and raw user from a login response,
// accepting {token,user} or {data:{token,user}}. Sentinel token strings are
// rejected as absent.
func DecodeLoginPayload(raw []byte) (string, json.RawMessage, error) {
	type payload struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	var env struct {
		payload
		Data *payload `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, apperrors.NewShape("login", err)
	}

	inner := env.payload
	if inner.Token == "" && env.Data != nil {
		inner = *env.Data
	}

	switch inner.Token {
	case "", "undefined", "null":
		return "", nil, apperrors.NewShape("login", fmt.Errorf("no valid token in response"))
	}
	if len(inner.User) == 0 {
		return "", nil, apperrors.NewShape("login", fmt.Errorf("no user in response"))
	}
	return inner.Token, inner.User, nil
}

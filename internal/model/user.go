package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
)

// Role is the canonical account role. The upstream API reports roles in
// assorted casings; everything inside the client uses these two values.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

// ParseRole upper-cases s and maps it onto the role enum. Unrecognized roles
// are a normalization failure, never silently coerced.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	default:
		return "", apperrors.NewShape("user", fmt.Errorf("unrecognized role %q", s))
	}
}

// Profile is the canonical user shape stored in the session.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// profileProbe enumerates every raw user shape the upstream is known to
// emit: ids under id or _id (string or number), names under name or
// fullName, roles in any casing.
type profileProbe struct {
	ID             interface{} `json:"id"`
	MongoID        interface{} `json:"_id"`
	Name           string      `json:"name"`
	FullName       string      `json:"fullName"`
	Email          string      `json:"email"`
	Role           string      `json:"role"`
	PhotoURL       string      `json:"photo_url"`
	Specialization string      `json:"specialization"`
}

// ProfileFromRaw normalizes a raw server user payload into a canonical
// Profile, or fails with a shape error when no tolerated shape matches.
func ProfileFromRaw(raw []byte) (*Profile, error) {
	var probe profileProbe
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil {
		return nil, apperrors.NewShape("user", err)
	}

	id := stringID(probe.ID)
	if id == "" {
		id = stringID(probe.MongoID)
	}
	if id == "" {
		return nil, apperrors.NewShape("user", fmt.Errorf("missing id"))
	}

	name := probe.Name
	if name == "" {
		name = probe.FullName
	}

	if probe.Email == "" {
		return nil, apperrors.NewShape("user", fmt.Errorf("missing email"))
	}

	role, err := ParseRole(probe.Role)
	if err != nil {
		return nil, err
	}

	return &Profile{
		ID:             id,
		Name:           name,
		Email:          probe.Email,
		Role:           role,
		PhotoURL:       probe.PhotoURL,
		Specialization: probe.Specialization,
	}, nil
}

func stringID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

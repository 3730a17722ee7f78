package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-client/internal/httpclient"
	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/session"
	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
	"github.com/jwalitptl/booking-client/pkg/notifier"
	"github.com/jwalitptl/booking-client/pkg/validator"
)

// ErrRoleMismatch is returned when the server-reported role differs from
// the role selected on the form. The login is rejected client-side before
// any session state is touched.
var ErrRoleMismatch = errors.New("account role does not match selected role")

type Service struct {
	client   *httpclient.Client
	session  *session.Store
	validate *validator.Validator
	notifier notifier.Notifier
	logger   *zerolog.Logger

	doctorLanding  string
	patientLanding string
}

func NewService(client *httpclient.Client, s *session.Store, v *validator.Validator,
	n notifier.Notifier, logger *zerolog.Logger, doctorLanding, patientLanding string) *Service {
	return &Service{
		client:         client,
		session:        s,
		validate:       v,
		notifier:       n,
		logger:         logger,
		doctorLanding:  doctorLanding,
		patientLanding: patientLanding,
	}
}

type LoginRequest struct {
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required,min=6"`
	Role     model.Role `json:"role" validate:"required,oneof=PATIENT DOCTOR"`
}

// LoginResult carries the normalized profile and the post-login navigation
// target: the redirect parameter when one was given, else the role landing.
type LoginResult struct {
	Profile  *model.Profile
	Redirect string
}

func (s *Service) Login(ctx context.Context, req LoginRequest, redirect string) (*LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := s.client.Post(ctx, "/auth/login", req, &raw); err != nil {
		s.notifier.Notify(notifier.Error(apperrors.Message(err)))
		return nil, err
	}

	token, rawUser, err := model.DecodeLoginPayload(raw)
	if err != nil {
		s.notifier.Notify(notifier.Error(apperrors.GenericMessage))
		return nil, err
	}
	profile, err := model.ProfileFromRaw(rawUser)
	if err != nil {
		s.notifier.Notify(notifier.Error(apperrors.GenericMessage))
		return nil, err
	}

	if profile.Role != req.Role {
		// Hard rejection: session stays unset, no navigation happens, and
		// the message names the account's actual role.
		msg := fmt.Sprintf("this account is %s, select %s to sign in", profile.Role, profile.Role)
		s.notifier.Notify(notifier.Error(msg))
		return nil, fmt.Errorf("%s: %w", msg, ErrRoleMismatch)
	}

	if err := s.session.Set(ctx, token, profile.Role, profile); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist session")
		return nil, err
	}

	s.notifier.Notify(notifier.Success("logged in"))

	target := redirect
	if target == "" {
		target = s.landing(profile.Role)
	}
	return &LoginResult{Profile: profile, Redirect: target}, nil
}

type PatientRegistration struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

type DoctorRegistration struct {
	Name           string `json:"name" validate:"required,min=2"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6"`
	Specialization string `json:"specialization" validate:"required"`
	PhotoURL       string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

// RegisterPatient creates a patient account. The caller follows up with
// Login; registration itself sets no session.
func (s *Service) RegisterPatient(ctx context.Context, req PatientRegistration) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if err := s.client.Post(ctx, "/auth/register/patient", req, nil); err != nil {
		s.notifier.Notify(notifier.Error(apperrors.Message(err)))
		return err
	}
	s.notifier.Notify(notifier.Success("registration successful, please log in"))
	return nil
}

func (s *Service) RegisterDoctor(ctx context.Context, req DoctorRegistration) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if err := s.client.Post(ctx, "/auth/register/doctor", req, nil); err != nil {
		s.notifier.Notify(notifier.Error(apperrors.Message(err)))
		return err
	}
	s.notifier.Notify(notifier.Success("registration successful, please log in"))
	return nil
}

// Logout clears the session and returns the login path to navigate to.
func (s *Service) Logout(ctx context.Context, loginPath string) string {
	s.session.Clear(ctx)
	s.notifier.Notify(notifier.Success("logged out"))
	return loginPath
}

func (s *Service) landing(role model.Role) string {
	if role == model.RoleDoctor {
		return s.doctorLanding
	}
	return s.patientLanding
}

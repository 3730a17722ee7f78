// Package appointment synchronizes appointment state: paginated listings
// for both roles, booking creation and optimistic status transitions.
package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-client/internal/httpclient"
	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/query"
	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
	"github.com/jwalitptl/booking-client/pkg/notifier"
	"github.com/jwalitptl/booking-client/pkg/validator"
)

// Key families. All keys for a role share the prefix, so one invalidation
// converges every open page/filter combination of that view.
const (
	FamilyPatient = "appointments/patient"
	FamilyDoctor  = "appointments/doctor"
)

type Config struct {
	PatientLimit int
	DoctorLimit  int
}

type Service struct {
	client   *httpclient.Client
	cache    *query.Cache
	mutator  *query.Mutator
	validate *validator.Validator
	notifier notifier.Notifier
	cfg      Config
	logger   *zerolog.Logger
}

func NewService(client *httpclient.Client, cache *query.Cache, mutator *query.Mutator,
	v *validator.Validator, n notifier.Notifier, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.PatientLimit <= 0 {
		cfg.PatientLimit = 6
	}
	if cfg.DoctorLimit <= 0 {
		cfg.DoctorLimit = 8
	}
	return &Service{
		client:   client,
		cache:    cache,
		mutator:  mutator,
		validate: v,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
	}
}

// ListScope is the page/filter context a listing or mutation is scoped to.
// Date applies to the doctor view only.
type ListScope struct {
	Status model.AppointmentStatus
	Date   string
	Page   int
}

func (s *Service) scopeKey(role model.Role, scope ListScope) query.Key {
	if scope.Page < 1 {
		scope.Page = 1
	}
	family := FamilyPatient
	if role == model.RoleDoctor {
		family = FamilyDoctor
	}
	var filters []query.Filter
	if scope.Status != "" {
		filters = append(filters, query.F("status", string(scope.Status)))
	}
	if role == model.RoleDoctor && scope.Date != "" {
		filters = append(filters, query.F("date", scope.Date))
	}
	filters = append(filters, query.F("page", strconv.Itoa(scope.Page)))
	return query.NewKey(family, filters...)
}

func (s *Service) fetcher(role model.Role, scope ListScope) query.Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		if scope.Page < 1 {
			scope.Page = 1
		}
		path := "/appointments/patient"
		if role == model.RoleDoctor {
			path = "/appointments/doctor"
		}
		params := url.Values{}
		if scope.Status != "" {
			params.Set("status", string(scope.Status))
		}
		if role == model.RoleDoctor && scope.Date != "" {
			params.Set("date", scope.Date)
		}
		params.Set("page", strconv.Itoa(scope.Page))

		var raw json.RawMessage
		if err := s.client.Get(ctx, path, params, &raw); err != nil {
			return nil, err
		}
		return model.DecodeAppointments(raw)
	}
}

// List returns one resolved page of appointments for the role.
func (s *Service) List(ctx context.Context, role model.Role, scope ListScope) (*model.Page[model.Appointment], error) {
	value, err := s.cache.GetWait(ctx, s.scopeKey(role, scope), s.fetcher(role, scope), query.Options{KeepPrevious: true})
	if err != nil {
		return nil, err
	}
	return value.(*model.Page[model.Appointment]), nil
}

// View is the non-blocking read backing a rendered list: possibly stale,
// refreshing in the background.
func (s *Service) View(ctx context.Context, role model.Role, scope ListScope) query.Result {
	return s.cache.Get(ctx, s.scopeKey(role, scope), s.fetcher(role, scope), query.Options{KeepPrevious: true})
}

// Limit returns the page size of the role's listing.
func (s *Service) Limit(role model.Role) int {
	if role == model.RoleDoctor {
		return s.cfg.DoctorLimit
	}
	return s.cfg.PatientLimit
}

type BookingRequest struct {
	DoctorID string `json:"doctorId" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

// Book creates an appointment and invalidates the patient listing so the
// next read includes the new entry.
func (s *Service) Book(ctx context.Context, req BookingRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if err := s.client.Post(ctx, "/appointments", req, nil); err != nil {
		if apperrors.IsSessionExpired(err) {
			s.notifier.Notify(notifier.Error("please log in as a patient to book"))
		} else {
			s.notifier.Notify(notifier.Error(apperrors.Message(err)))
		}
		return err
	}
	s.notifier.Notify(notifier.Success("appointment booked"))
	s.cache.Invalidate(FamilyPatient)
	return nil
}

// UpdateStatus transitions an appointment through the optimistic-update
// protocol, scoped to the page/filter the action came from. Doctors complete
// or cancel; patients cancel.
func (s *Service) UpdateStatus(ctx context.Context, role model.Role, scope ListScope, appointmentID string, target model.AppointmentStatus) error {
	if !target.Terminal() {
		return apperrors.NewValidation(map[string]string{
			"status": fmt.Sprintf("cannot transition to %s", target),
		})
	}

	key := s.scopeKey(role, scope)
	if current, ok := s.currentStatus(key, appointmentID); ok && !current.CanTransitionTo(target) {
		return apperrors.NewValidation(map[string]string{
			"status": "only pending appointments can be updated",
		})
	}

	family := FamilyPatient
	if role == model.RoleDoctor {
		family = FamilyDoctor
	}

	return s.mutator.Run(ctx, query.Mutation{
		Family: family,
		Key:    key,
		Apply:  applyStatus(appointmentID, target),
		Call: func(ctx context.Context) error {
			payload := map[string]string{
				"appointment_id": appointmentID,
				"status":         string(target),
			}
			return s.client.Patch(ctx, "/appointments/update-status", payload, nil)
		},
		SuccessMessage: "appointment updated",
	})
}

// applyStatus builds a new page with the target entity's status replaced,
// all other entities and their order preserved.
func applyStatus(appointmentID string, target model.AppointmentStatus) func(interface{}) interface{} {
	return func(value interface{}) interface{} {
		page, ok := value.(*model.Page[model.Appointment])
		if !ok {
			return value
		}
		next := &model.Page[model.Appointment]{
			Items: make([]model.Appointment, len(page.Items)),
			Total: page.Total,
		}
		for i, appt := range page.Items {
			if appt.ID == appointmentID {
				next.Items[i] = appt.WithStatus(target)
			} else {
				next.Items[i] = appt
			}
		}
		return next
	}
}

func (s *Service) currentStatus(key query.Key, appointmentID string) (model.AppointmentStatus, bool) {
	value, ok := s.cache.Snapshot(key)
	if !ok {
		return "", false
	}
	page, ok := value.(*model.Page[model.Appointment])
	if !ok {
		return "", false
	}
	for _, appt := range page.Items {
		if appt.ID == appointmentID {
			return appt.Status, true
		}
	}
	return "", false
}

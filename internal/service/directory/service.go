// Package directory serves the public doctor directory: specialization list
// and paginated doctor search, both through the query cache.
package directory

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-client/internal/httpclient"
	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/query"
)

const (
	resourceSpecializations = "specializations"
	resourceDoctors         = "doctors"
)

type Config struct {
	DoctorsLimit         int
	SpecializationsStale time.Duration
}

type Service struct {
	client *httpclient.Client
	cache  *query.Cache
	cfg    Config
	logger *zerolog.Logger
}

func NewService(client *httpclient.Client, cache *query.Cache, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.DoctorsLimit <= 0 {
		cfg.DoctorsLimit = 6
	}
	if cfg.SpecializationsStale <= 0 {
		cfg.SpecializationsStale = time.Minute
	}
	return &Service{client: client, cache: cache, cfg: cfg, logger: logger}
}

// Specializations returns the cached specialization list. It changes rarely,
// so it gets a longer freshness window than the default.
func (s *Service) Specializations(ctx context.Context) ([]string, error) {
	key := query.NewKey(resourceSpecializations)
	value, err := s.cache.GetWait(ctx, key, func(ctx context.Context) (interface{}, error) {
		var raw json.RawMessage
		if err := s.client.Get(ctx, "/specializations", nil, &raw); err != nil {
			return nil, err
		}
		return model.DecodeSpecializations(raw)
	}, query.Options{StaleTime: s.cfg.SpecializationsStale})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

type DoctorQuery struct {
	Page           int
	Search         string
	Specialization string
}

// DoctorsKey is the cache key for a doctor search page. Filters are ordered
// page, limit, search, specialization so equal queries share a slot.
func (s *Service) DoctorsKey(q DoctorQuery) query.Key {
	if q.Page < 1 {
		q.Page = 1
	}
	filters := []query.Filter{
		query.F("page", strconv.Itoa(q.Page)),
		query.F("limit", strconv.Itoa(s.cfg.DoctorsLimit)),
	}
	if q.Search != "" {
		filters = append(filters, query.F("search", q.Search))
	}
	if q.Specialization != "" {
		filters = append(filters, query.F("specialization", q.Specialization))
	}
	return query.NewKey(resourceDoctors, filters...)
}

// Doctors returns one page of the doctor directory.
func (s *Service) Doctors(ctx context.Context, q DoctorQuery) (*model.Page[model.Doctor], error) {
	if q.Page < 1 {
		q.Page = 1
	}
	value, err := s.cache.GetWait(ctx, s.DoctorsKey(q), s.doctorsFetcher(q), query.Options{KeepPrevious: true})
	if err != nil {
		return nil, err
	}
	return value.(*model.Page[model.Doctor]), nil
}

// DoctorsView is the non-blocking read used while a page navigation is in
// flight: it may return the previous page flagged stale instead of blanking.
func (s *Service) DoctorsView(ctx context.Context, q DoctorQuery) (query.Result, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	res := s.cache.Get(ctx, s.DoctorsKey(q), s.doctorsFetcher(q), query.Options{KeepPrevious: true})
	return res, res.Err
}

func (s *Service) doctorsFetcher(q DoctorQuery) query.Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(q.Page))
		params.Set("limit", strconv.Itoa(s.cfg.DoctorsLimit))
		if q.Search != "" {
			params.Set("search", q.Search)
		}
		if q.Specialization != "" {
			params.Set("specialization", q.Specialization)
		}

		var raw json.RawMessage
		if err := s.client.Get(ctx, "/doctors", params, &raw); err != nil {
			return nil, err
		}
		return model.DecodeDoctors(raw)
	}
}

// Limit exposes the page size for pagination math on the caller side.
func (s *Service) Limit() int {
	return s.cfg.DoctorsLimit
}

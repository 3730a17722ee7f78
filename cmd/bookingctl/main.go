package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-client/internal/config"
	"github.com/jwalitptl/booking-client/internal/guard"
	"github.com/jwalitptl/booking-client/internal/httpclient"
	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/query"
	"github.com/jwalitptl/booking-client/internal/service/appointment"
	authService "github.com/jwalitptl/booking-client/internal/service/auth"
	"github.com/jwalitptl/booking-client/internal/service/directory"
	"github.com/jwalitptl/booking-client/internal/session"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
	"github.com/jwalitptl/booking-client/pkg/logger"
	"github.com/jwalitptl/booking-client/pkg/metrics"
	"github.com/jwalitptl/booking-client/pkg/notifier"
	"github.com/jwalitptl/booking-client/pkg/validator"
)

// router tracks the current view path and logs redirect side effects; it
// stands in for the navigation shell a UI would provide.
type router struct {
	logger  *zerolog.Logger
	current string
}

func (r *router) CurrentPath() string {
	return r.current
}

func (r *router) Redirect(path string) {
	r.logger.Info().Str("from", r.current).Str("to", path).Msg("redirect")
	r.current = path
}

type app struct {
	cfg          *config.Config
	session      *session.Store
	guard        *guard.Guard
	router       *router
	auth         *authService.Service
	directory    *directory.Service
	appointments *appointment.Service
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zl := logger.New(&logger.Config{Level: cfg.Log.Level})

	kv, err := newKVStore(cfg.Session)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	sess := session.NewStore(kv, zl)
	if err := sess.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to restore session")
	}

	m := metrics.New("bookingclient", prometheus.DefaultRegisterer)
	notify := notifier.NewLog(zl)
	nav := &router{logger: zl, current: "/"}

	client := httpclient.New(httpclient.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		AuthPrefix:        cfg.Routes.AuthPrefix,
		LoginPath:         cfg.Routes.LoginPath,
	}, httpclient.Deps{
		KV:      kv,
		Session: sess,
		Nav:     nav,
		Loc:     nav,
		Metrics: m,
		Logger:  zl,
	})

	cache := query.NewCache(
		time.Duration(cfg.Cache.StaleSeconds)*time.Second,
		time.Duration(cfg.Cache.EvictionMinutes)*time.Minute,
		m, zl,
	)
	mutator := query.NewMutator(cache, notify, m, zl)
	v := validator.New()

	a := &app{
		cfg:     cfg,
		session: sess,
		guard:   guard.New(sess, cfg.Routes.LoginPath, cfg.Routes.DoctorLanding, cfg.Routes.PatientLanding),
		router:  nav,
		auth: authService.NewService(client, sess, v, notify, zl,
			cfg.Routes.DoctorLanding, cfg.Routes.PatientLanding),
		directory: directory.NewService(client, cache, directory.Config{
			DoctorsLimit:         cfg.Pages.DoctorsLimit,
			SpecializationsStale: time.Duration(cfg.Cache.SpecializationsStaleSeconds) * time.Second,
		}, zl),
		appointments: appointment.NewService(client, cache, mutator, v, notify, appointment.Config{
			PatientLimit: cfg.Pages.PatientAppointmentsLimit,
			DoctorLimit:  cfg.Pages.DoctorAppointmentsLimit,
		}, zl),
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := a.run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func newKVStore(cfg config.SessionConfig) (kvstore.Store, error) {
	switch cfg.Backend {
	case "redis":
		return kvstore.NewRedis(cfg.RedisURL, "booking")
	case "file":
		return kvstore.NewFile(cfg.FilePath)
	default:
		return kvstore.NewMemory(), nil
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "register-patient":
		return a.registerPatient(ctx, args)
	case "register-doctor":
		return a.registerDoctor(ctx, args)
	case "specializations":
		return a.specializations(ctx)
	case "doctors":
		return a.doctors(ctx, args)
	case "appointments":
		return a.listAppointments(ctx, args)
	case "book":
		return a.book(ctx, args)
	case "complete":
		return a.updateStatus(ctx, args, model.StatusCompleted)
	case "cancel":
		return a.updateStatus(ctx, args, model.StatusCancelled)
	case "logout":
		a.router.Redirect(a.auth.Logout(ctx, a.cfg.Routes.LoginPath))
		return nil
	case "whoami":
		return a.whoami()
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	role := fs.String("role", "PATIENT", "PATIENT or DOCTOR")
	redirect := fs.String("redirect", "", "path to return to after login")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.router.current = a.cfg.Routes.LoginPath
	res, err := a.auth.Login(ctx, authService.LoginRequest{
		Email:    *email,
		Password: *password,
		Role:     model.Role(*role),
	}, *redirect)
	if err != nil {
		return err
	}
	a.router.Redirect(res.Redirect)
	fmt.Printf("logged in as %s (%s)\n", res.Profile.Name, res.Profile.Role)
	return nil
}

func (a *app) registerPatient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register-patient", flag.ExitOnError)
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	photo := fs.String("photo", "", "photo URL (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.auth.RegisterPatient(ctx, authService.PatientRegistration{
		Name:     *name,
		Email:    *email,
		Password: *password,
		PhotoURL: *photo,
	})
}

func (a *app) registerDoctor(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register-doctor", flag.ExitOnError)
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	spec := fs.String("specialization", "", "doctor specialization")
	photo := fs.String("photo", "", "photo URL (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.auth.RegisterDoctor(ctx, authService.DoctorRegistration{
		Name:           *name,
		Email:          *email,
		Password:       *password,
		Specialization: *spec,
		PhotoURL:       *photo,
	})
}

func (a *app) specializations(ctx context.Context) error {
	specs, err := a.directory.Specializations(ctx)
	if err != nil {
		return err
	}
	for _, s := range specs {
		fmt.Println(s)
	}
	return nil
}

func (a *app) doctors(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("doctors", flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	search := fs.String("search", "", "name search")
	spec := fs.String("specialization", "", "filter by specialization")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doctors, err := a.directory.Doctors(ctx, directory.DoctorQuery{
		Page:           *page,
		Search:         *search,
		Specialization: *spec,
	})
	if err != nil {
		return err
	}
	for _, d := range doctors.Items {
		fmt.Printf("%s  %-24s %s\n", d.ID, d.Name, d.Specialization)
	}
	printPagination(*page, a.directory.Limit(), doctors.Total, doctors.HasNext(*page, a.directory.Limit()))
	return nil
}

func (a *app) listAppointments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("appointments", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	date := fs.String("date", "", "filter by date (doctor view)")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role := a.session.Role()
	path := "/patient/appointments"
	if role == model.RoleDoctor {
		path = "/doctors/appointments"
	}

	scope, err := parseScope(*status, *date, *page)
	if err != nil {
		return err
	}

	var runErr error
	rendered := a.guard.Protect(path, role, a.router, func() {
		pageData, err := a.appointments.List(ctx, role, scope)
		if err != nil {
			runErr = err
			return
		}
		for _, appt := range pageData.Items {
			who := ""
			if appt.Doctor != nil {
				who = appt.Doctor.Name
			} else if appt.Patient != nil {
				who = appt.Patient.Name
			}
			fmt.Printf("%s  %-10s %-9s %s\n", appt.ID, appt.Date, appt.Status, who)
		}
		limit := a.appointments.Limit(role)
		printPagination(scope.Page, limit, pageData.Total, pageData.HasNext(scope.Page, limit))
	})
	if !rendered && runErr == nil {
		return fmt.Errorf("not allowed: see redirect above")
	}
	return runErr
}

func (a *app) book(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	doctorID := fs.String("doctor", "", "doctor id")
	date := fs.String("date", "", "appointment date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.router.current = "/patient/doctors"
	return a.appointments.Book(ctx, appointment.BookingRequest{
		DoctorID: *doctorID,
		Date:     *date,
	})
}

func (a *app) updateStatus(ctx context.Context, args []string, target model.AppointmentStatus) error {
	fs := flag.NewFlagSet("update-status", flag.ExitOnError)
	id := fs.String("id", "", "appointment id")
	status := fs.String("status", "", "list filter the action came from")
	date := fs.String("date", "", "list date filter (doctor view)")
	page := fs.Int("page", 1, "list page the action came from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	role := a.session.Role()
	if target == model.StatusCompleted && role != model.RoleDoctor {
		return fmt.Errorf("only doctors can complete appointments")
	}

	scope, err := parseScope(*status, *date, *page)
	if err != nil {
		return err
	}
	return a.appointments.UpdateStatus(ctx, role, scope, *id, target)
}

func (a *app) whoami() error {
	snap := a.session.Snapshot()
	if snap.Token == "" {
		fmt.Println("not logged in")
		return nil
	}
	if snap.User != nil {
		fmt.Printf("%s <%s> %s\n", snap.User.Name, snap.User.Email, snap.Role)
	} else {
		fmt.Printf("logged in as %s\n", snap.Role)
	}
	return nil
}

func parseScope(status, date string, page int) (appointment.ListScope, error) {
	scope := appointment.ListScope{Date: date, Page: page}
	if status != "" {
		parsed, err := model.ParseStatus(status)
		if err != nil {
			return scope, err
		}
		scope.Status = parsed
	}
	return scope, nil
}

func printPagination(page, limit int, total *int, hasNext bool) {
	if total != nil {
		pages := (*total + limit - 1) / limit
		if pages < 1 {
			pages = 1
		}
		fmt.Printf("page %d of %d\n", page, pages)
		return
	}
	if hasNext {
		fmt.Printf("page %d (more available)\n", page)
	} else {
		fmt.Printf("page %d\n", page)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bookingctl <command> [flags]

commands:
  login             -email -password -role [-redirect]
  register-patient  -name -email -password [-photo]
  register-doctor   -name -email -password -specialization [-photo]
  specializations
  doctors           [-page -search -specialization]
  appointments      [-status -date -page]
  book              -doctor -date
  complete          -id [-status -date -page]
  cancel            -id [-status -date -page]
  logout
  whoami`)
}

// Package guard is the role-based access gate for protected views. It is a
// UX convenience, not a security boundary; the server enforces authorization.
package guard

import (
	"net/url"

	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/session"
)

type State int

const (
	// StateUnknown means the session has not been resolved yet.
	StateUnknown State = iota
	StateUnauthenticated
	StateWrongRole
	StateOK
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateWrongRole:
		return "wrong_role"
	case StateOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one guard evaluation. Redirect is a side
// effect, not an exception: the caller renders nothing while it is pending.
type Decision struct {
	State    State
	Redirect string
}

// Navigator receives the guard's redirect side effects.
type Navigator interface {
	Redirect(path string)
}

type Guard struct {
	session        *session.Store
	loginPath      string
	doctorLanding  string
	patientLanding string
}

func New(s *session.Store, loginPath, doctorLanding, patientLanding string) *Guard {
	return &Guard{
		session:        s,
		loginPath:      loginPath,
		doctorLanding:  doctorLanding,
		patientLanding: patientLanding,
	}
}

// Check evaluates the guard for a protected path. required may be empty,
// meaning any authenticated role is allowed.
func (g *Guard) Check(path string, required model.Role) Decision {
	if !g.session.Loaded() {
		return Decision{State: StateUnknown}
	}

	snap := g.session.Snapshot()
	if snap.Token == "" {
		return Decision{
			State:    StateUnauthenticated,
			Redirect: g.loginPath + "?redirect=" + url.QueryEscape(path),
		}
	}

	if required != "" && snap.Role != "" && snap.Role != required {
		return Decision{
			State:    StateWrongRole,
			Redirect: g.Landing(snap.Role),
		}
	}

	return Decision{State: StateOK}
}

// Landing is the role's default landing view.
func (g *Guard) Landing(role model.Role) string {
	if role == model.RoleDoctor {
		return g.doctorLanding
	}
	return g.patientLanding
}

// Protect runs render only when the guard allows it, emitting the redirect
// otherwise. It reports whether the protected content was rendered.
func (g *Guard) Protect(path string, required model.Role, nav Navigator, render func()) bool {
	decision := g.Check(path, required)
	if decision.State != StateOK {
		if decision.Redirect != "" {
			nav.Redirect(decision.Redirect)
		}
		return false
	}
	render()
	return true
}

package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/internal/session"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
	"github.com/jwalitptl/booking-client/pkg/logger"
)

type navRecorder struct {
	redirects []string
}

func (n *navRecorder) Redirect(path string) {
	n.redirects = append(n.redirects, path)
}

func newGuard(t *testing.T) (*Guard, *session.Store) {
	t.Helper()
	store := session.NewStore(kvstore.NewMemory(), logger.Nop())
	g := New(store, "/auth/login", "/doctors/dashboard", "/patient/dashboard")
	return g, store
}

func TestCheckBeforeSessionResolves(t *testing.T) {
	g, _ := newGuard(t)

	decision := g.Check("/patient/appointments", model.RolePatient)
	assert.Equal(t, StateUnknown, decision.State)
	assert.Empty(t, decision.Redirect)
}

func TestCheckUnauthenticated(t *testing.T) {
	g, store := newGuard(t)
	require.NoError(t, store.Load(context.Background()))

	decision := g.Check("/patient/appointments", model.RolePatient)
	assert.Equal(t, StateUnauthenticated, decision.State)
	assert.Equal(t, "/auth/login?redirect=%2Fpatient%2Fappointments", decision.Redirect)
}

func TestCheckWrongRoleGoesToOwnLanding(t *testing.T) {
	g, store := newGuard(t)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, nil))

	decision := g.Check("/doctors/appointments", model.RoleDoctor)
	assert.Equal(t, StateWrongRole, decision.State)
	assert.Equal(t, "/patient/dashboard", decision.Redirect)

	require.NoError(t, store.Set(ctx, "tok-2", model.RoleDoctor, nil))
	decision = g.Check("/patient/appointments", model.RolePatient)
	assert.Equal(t, StateWrongRole, decision.State)
	assert.Equal(t, "/doctors/dashboard", decision.Redirect)
}

func TestCheckAllowsMatchingRole(t *testing.T) {
	g, store := newGuard(t)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Set(ctx, "tok-1", model.RoleDoctor, nil))

	decision := g.Check("/doctors/appointments", model.RoleDoctor)
	assert.Equal(t, StateOK, decision.State)
	assert.Empty(t, decision.Redirect)
}

func TestCheckWithoutRequiredRole(t *testing.T) {
	g, store := newGuard(t)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, nil))

	decision := g.Check("/profile", "")
	assert.Equal(t, StateOK, decision.State)
}

func TestProtectRendersOnlyWhenAllowed(t *testing.T) {
	g, store := newGuard(t)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	nav := &navRecorder{}

	rendered := false
	ok := g.Protect("/patient/appointments", model.RolePatient, nav, func() {
		rendered = true
	})
	assert.False(t, ok)
	assert.False(t, rendered)
	require.Len(t, nav.redirects, 1)
	assert.Equal(t, "/auth/login?redirect=%2Fpatient%2Fappointments", nav.redirects[0])

	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, nil))
	ok = g.Protect("/patient/appointments", model.RolePatient, nav, func() {
		rendered = true
	})
	assert.True(t, ok)
	assert.True(t, rendered)
	assert.Len(t, nav.redirects, 1)
}

func TestProtectDoesNotNavigateWhileUnknown(t *testing.T) {
	g, _ := newGuard(t)
	nav := &navRecorder{}

	ok := g.Protect("/patient/appointments", model.RolePatient, nav, func() {})
	assert.False(t, ok)
	assert.Empty(t, nav.redirects)
}

func TestLanding(t *testing.T) {
	g, _ := newGuard(t)
	assert.Equal(t, "/doctors/dashboard", g.Landing(model.RoleDoctor))
	assert.Equal(t, "/patient/dashboard", g.Landing(model.RolePatient))
}

package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
	"github.com/jwalitptl/booking-client/pkg/logger"
)

func newTestStore() (*Store, kvstore.Store) {
	kv := kvstore.NewMemory()
	return NewStore(kv, logger.Nop()), kv
}

func profile() *model.Profile {
	return &model.Profile{ID: "u1", Name: "Ada", Email: "ada@x.com", Role: model.RolePatient}
}

func TestSetMirrorsToKV(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, profile()))

	token, err := kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	role, err := kv.Get(ctx, KeyRole)
	require.NoError(t, err)
	assert.Equal(t, "PATIENT", role)

	user, err := kv.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Contains(t, user, `"ada@x.com"`)
}

func TestTokenAndRoleAreNeverPartiallySet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	require.Error(t, store.Set(ctx, "", model.RolePatient, profile()))
	require.Error(t, store.Set(ctx, "tok-1", "", profile()))

	snap := store.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Empty(t, snap.Role)

	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, profile()))
	snap = store.Snapshot()
	assert.Equal(t, (snap.Token == ""), (snap.Role == ""))

	store.Clear(ctx)
	snap = store.Snapshot()
	assert.Equal(t, (snap.Token == ""), (snap.Role == ""))
}

func TestClearRemovesMirrorKeys(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, store.Set(ctx, "tok-1", model.RolePatient, profile()))

	store.Clear(ctx)

	for _, key := range []string{KeyToken, KeyRole, KeyUser} {
		_, err := kv.Get(ctx, key)
		assert.ErrorIs(t, err, kvstore.ErrNotFound, key)
	}
	assert.False(t, store.Authenticated())
}

func TestLoadRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, KeyToken, "tok-1"))
	require.NoError(t, kv.Set(ctx, KeyRole, "doctor"))
	require.NoError(t, kv.Set(ctx, KeyUser, `{"id":"d1","name":"Greg","email":"g@x.com","role":"DOCTOR"}`))

	store := NewStore(kv, logger.Nop())
	require.NoError(t, store.Load(ctx))

	snap := store.Snapshot()
	assert.Equal(t, "tok-1", snap.Token)
	assert.Equal(t, model.RoleDoctor, snap.Role)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Greg", snap.User.Name)
	assert.True(t, store.Loaded())
}

func TestLoadTreatsSentinelTokenAsAbsent(t *testing.T) {
	ctx := context.Background()
	for _, sentinel := range []string{"undefined", "null"} {
		kv := kvstore.NewMemory()
		require.NoError(t, kv.Set(ctx, KeyToken, sentinel))
		require.NoError(t, kv.Set(ctx, KeyRole, "PATIENT"))

		store := NewStore(kv, logger.Nop())
		require.NoError(t, store.Load(ctx))
		assert.False(t, store.Authenticated(), sentinel)
	}
}

func TestLoadClearsPartialSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, KeyToken, "tok-1"))

	store := NewStore(kv, logger.Nop())
	require.NoError(t, store.Load(ctx))

	assert.False(t, store.Authenticated())
	_, err := kv.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestLoadClearsExpiredToken(t *testing.T) {
	ctx := context.Background()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	token, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, KeyToken, token))
	require.NoError(t, kv.Set(ctx, KeyRole, "PATIENT"))

	store := NewStore(kv, logger.Nop())
	require.NoError(t, store.Load(ctx))
	assert.False(t, store.Authenticated())
}

func TestLoadKeepsOpaqueNonJWTToken(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, KeyToken, "opaque-token"))
	require.NoError(t, kv.Set(ctx, KeyRole, "PATIENT"))

	store := NewStore(kv, logger.Nop())
	require.NoError(t, store.Load(ctx))
	assert.True(t, store.Authenticated())
}

func TestLoadedReflectsResolution(t *testing.T) {
	store, _ := newTestStore()
	assert.False(t, store.Loaded())
	require.NoError(t, store.Load(context.Background()))
	assert.True(t, store.Loaded())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "", Normalize("undefined"))
	assert.Equal(t, "", Normalize("null"))
	assert.Equal(t, "tok", Normalize("tok"))
}

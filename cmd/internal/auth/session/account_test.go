package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"linkup/cmd/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByID_CacheFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, id := f.register(t, anaInput())

	require.NoError(t, f.redis.Set(cache.ProfileKey(id), `{"firstName":"Cached","lastName":"Lee","username":"analee"}`))

	acct, err := f.svc.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Cached", acct.FirstName)
}

func TestFindByID_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindByID(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.FindByID(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.FindByID(context.Background(), "user:42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByID_RepopulatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, id := f.register(t, anaInput())

	f.redis.Del(cache.ProfileKey(id))
	_, err := f.svc.FindByID(ctx, id)
	require.NoError(t, err)

	raw, err := f.redis.Get(cache.ProfileKey(id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"firstName":"Ana","lastName":"Lee","username":"analee"}`, raw)
}

func TestFindByID_CanceledCallerDoesNotFailSharedLoad(t *testing.T) {
	f := newFixture(t)
	_, id := f.register(t, anaInput())
	f.redis.FlushAll()

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.accounts.set(func(a *fakeAccounts) { a.byIDGate, a.byIDEntered = gate, entered })

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.FindByID(ctxA, id)
		errA <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first load never reached the store")
	}

	type result struct {
		acct Account
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		acct, err := f.svc.FindByID(context.Background(), id)
		resB <- result{acct, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(gate)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "Ana", r.acct.Profile.FirstName)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, id := f.register(t, anaInput())

	name := "Anna"
	acct, err := f.svc.UpdateProfile(ctx, id, ProfileInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, Profile{FirstName: "Anna", LastName: "Lee", Username: "analee"}, acct.Profile)

	f.redis.FlushAll()
	acct, err = f.svc.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Anna", acct.FirstName)

	acct, err = f.svc.UpdateProfile(ctx, id, ProfileInput{})
	require.NoError(t, err)
	assert.Equal(t, "Anna", acct.FirstName)

	bad := "a b"
	_, err = f.svc.UpdateProfile(ctx, id, ProfileInput{Username: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateProfile(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", ProfileInput{FirstName: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile_FailedEvictionIsLogged(t *testing.T) {
	ctx := context.Background()
	logs := &syncBuffer{}
	sc := &switchCache{}
	f := newFixture(t, func(d *Deps) {
		sc.Store = d.Cache
		d.Cache = sc
		d.Logger = slog.New(slog.NewTextHandler(logs, nil))
	})
	_, id := f.register(t, anaInput())

	down := errors.New("cache down")
	sc.fail(down, down)

	name := "Anna"
	acct, err := f.svc.UpdateProfile(ctx, id, ProfileInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Anna", acct.Profile.FirstName)
	assert.Contains(t, logs.String(), "auth.cache.profile.evict.fail")
	assert.Contains(t, logs.String(), "cache down")
}

func TestDeleteAccount_Cascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, id := f.register(t, anaInput())

	del, err := f.svc.DeleteAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, del.ID)

	assert.Equal(t, 0, f.accounts.Len())
	assert.False(t, f.graph.Has(id))
	assert.False(t, f.redis.Exists(cache.ProfileKey(id)))
	assert.False(t, f.redis.Exists(cache.AccessKey(id)))

	_, err = f.svc.FindByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.DeleteAccount(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccount_GraphFailureIsReconciled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, id := f.register(t, anaInput())
	f.graph.deleteErr = errDown

	_, err := f.svc.DeleteAccount(ctx, id)
	require.NoError(t, err)

	assert.True(t, f.graph.Has(id))
	purges := f.recon.all()
	require.Len(t, purges, 1)
	assert.Equal(t, id, purges[0].accountID)
}

func TestValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair, id := f.register(t, anaInput())

	claims, err := f.svc.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, claims.AccountID)

	_, err = f.svc.ValidateAccessToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.DeleteAccount(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.ValidateAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package session

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_TamperedEmailEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, anaInput())

	f.accounts.set(func(a *fakeAccounts) { a.tamperEmail = true })

	_, err := f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "Secr3t!23"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UniformFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, anaInput())

	_, unknown := f.svc.Login(ctx, LoginInput{Email: "lee@example.com", Password: "Secr3t!23"})
	_, wrong := f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "Secr3t!24"})

	require.Error(t, unknown)
	assert.Equal(t, unknown, wrong)
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestLogin_FailurePathsTakeComparableTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, anaInput())

	median := func(in LoginInput) time.Duration {
		const runs = 9
		_, _ = f.svc.Login(ctx, in)
		took := make([]time.Duration, runs)
		for i := range took {
			start := time.Now()
			_, err := f.svc.Login(ctx, in)
			took[i] = time.Since(start)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}
		slices.Sort(took)
		return took[runs/2]
	}

	unknown := median(LoginInput{Email: "lee@example.com", Password: "Secr3t!23"})
	wrong := median(LoginInput{Email: "ana@example.com", Password: "Secr3t!24"})

	ratio := float64(max(unknown, wrong)) / float64(min(unknown, wrong))
	assert.Less(t, ratio, 3.0, "unknown=%s wrong=%s", unknown, wrong)
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "", Password: ""})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.accounts.set(func(a *fakeAccounts) { a.lookupErr = errDown })

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "Secr3t!23"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_RotatesRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, _ := f.register(t, anaInput())

	second, err := f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "Secr3t!23"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.RefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

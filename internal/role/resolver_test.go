package role_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/booking/bookingtest"
	"github.com/hackgods/service-marketplace/internal/role"
)

func setup() (*bookingtest.Store, booking.Booking, uuid.UUID, uuid.UUID) {
	store := bookingtest.NewStore()
	client := store.AddUser("Client")
	providerUser := store.AddUser("Provider")
	provider := store.AddProvider(providerUser, "Biz")
	b := store.Put(booking.Booking{ClientID: client, ServiceProviderID: provider.ID})
	return store, b, client, providerUser
}

func TestResolver_RoleSymmetry(t *testing.T) {
	store, b, client, providerUser := setup()
	r := role.NewResolver(store)
	ctx := context.Background()

	isProvider, err := r.IsProvider(ctx, b, providerUser)
	require.NoError(t, err)
	assert.True(t, isProvider)

	isProvider, err = r.IsProvider(ctx, b, client)
	require.NoError(t, err)
	assert.False(t, isProvider)

	other, ok, err := r.OtherParty(ctx, b, providerUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, client, other)

	other, ok, err = r.OtherParty(ctx, b, client)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, providerUser, other)
}

func TestResolver_TaggedRoles(t *testing.T) {
	store, b, client, providerUser := setup()
	r := role.NewResolver(store)
	ctx := context.Background()

	res, err := r.Resolve(ctx, b, providerUser)
	require.NoError(t, err)
	assert.Equal(t, role.Provider, res.Role)

	res, err = r.Resolve(ctx, b, client)
	require.NoError(t, err)
	assert.Equal(t, role.Client, res.Role)

	res, err = r.Resolve(ctx, b, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, role.Unresolvable, res.Role)
}

func TestResolver_MissingProviderIsUnresolvable(t *testing.T) {
	store, b, client, _ := setup()
	store.RemoveProvider(b.ServiceProviderID)
	r := role.NewResolver(store)

	res, err := r.Resolve(context.Background(), b, client)
	require.NoError(t, err)
	assert.False(t, res.Resolved())
	assert.Equal(t, "unresolvable", res.Role.String())

	_, ok, err := r.OtherParty(context.Background(), b, client)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_LookupErrorIsNotCollapsed(t *testing.T) {
	store, b, client, _ := setup()
	store.Err = errors.New("connection reset")
	r := role.NewResolver(store)

	_, err := r.Resolve(context.Background(), b, client)
	assert.Error(t, err)
}

func TestResolve_ProviderMustMatchBooking(t *testing.T) {
	_, b, client, providerUser := setup()
	wrong := &booking.ServiceProvider{ID: uuid.New(), UserID: providerUser}

	assert.Equal(t, role.Unresolvable, role.Resolve(b, wrong, client).Role)
	assert.Equal(t, role.Unresolvable, role.Resolve(b, nil, client).Role)
}

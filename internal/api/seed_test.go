package api

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"trackmyteam/internal/model"
	"trackmyteam/internal/store"
	"trackmyteam/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAdmin(t *testing.T) {
	users := store.NewUserStore(storetest.NewDB(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	require.NoError(t, seedAdmin(ctx, users, "", "", "", logger))

	require.NoError(t, seedAdmin(ctx, users, "root", "root@example.com", "changeme", logger))
	u, err := users.FindByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.NotEqual(t, "changeme", u.Password)

	// 再次执行保持幂等
	require.NoError(t, seedAdmin(ctx, users, "root", "root@example.com", "other", logger))
	again, err := users.FindByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, u.Password, again.Password)
}

func TestSeedAdminPromotesExistingUser(t *testing.T) {
	users := store.NewUserStore(storetest.NewDB(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, &model.User{Username: "lead", Email: "lead@example.com", Password: "h", Role: model.RoleUser}))
	require.NoError(t, seedAdmin(ctx, users, "lead", "lead@example.com", "pw", logger))

	u, err := users.FindByUsername(ctx, "lead")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
}

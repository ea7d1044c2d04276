package service

import (
	"context"
	"testing"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/internal/guard/store/drivers/sqlite"
	"github.com/merchhq/storeguard/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func testCaller(id, email string) domain.Caller {
	return domain.Caller{ID: id, Email: email}
}

func adminCaller(id, email string) domain.Caller {
	c := testCaller(id, email)
	c.Claims.Admin = true
	return c
}

func seedUser(t *testing.T, st store.Store, u domain.User) domain.User {
	t.Helper()

	if u.ID == "" {
		u.ID = idx.New().String()
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))

	got, err := st.Users().GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}

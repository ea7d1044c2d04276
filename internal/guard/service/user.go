package service

import (
	"context"
	"errors"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
)

// ensureUser fetches the caller's user record, creating it on first
// observation. Records are born with the default role and whatever
// email the identity provider verified.
func ensureUser(ctx context.Context, st store.Store, caller domain.Caller) (domain.User, error) {
	user, err := st.Users().GetUserByID(ctx, caller.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, Internal(err)
	}

	user = domain.User{
		ID:    caller.ID,
		Email: caller.Email,
		Role:  domain.RoleUser,
	}
	if err := st.Users().CreateUser(ctx, user); err != nil {
		// A concurrent first sign-in may have won the insert.
		if existing, getErr := st.Users().GetUserByID(ctx, caller.ID); getErr == nil {
			return existing, nil
		}
		return domain.User{}, Internal(err)
	}
	return st.Users().GetUserByID(ctx, caller.ID)
}

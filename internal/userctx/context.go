// Package userctx carries the caller identity (profile id or admin username) and role.
package userctx

import "context"

type contextKey string

const (
	userIDContextKey contextKey = "user_id"
	roleContextKey   contextKey = "role"
)

// Roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}

// WithIdentity stores both user id and role.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(WithUserID(ctx, userID), roleContextKey, role)
}

func GetRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleContextKey).(string)
	return role, ok
}

// GetMemberID returns the profile id of a member caller.
func GetMemberID(ctx context.Context) (string, bool) {
	if role, _ := GetRole(ctx); role != RoleMember {
		return "", false
	}
	return GetUserID(ctx)
}

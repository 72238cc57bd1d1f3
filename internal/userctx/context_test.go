package userctx

import (
	"context"
	"testing"
)

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Fatal("empty context must have no user")
	}

	ctx = WithIdentity(ctx, "p-1", RoleMember)
	if id, ok := GetMemberID(ctx); !ok || id != "p-1" {
		t.Fatalf("expected member p-1, got %q %v", id, ok)
	}

	admin := WithIdentity(context.Background(), "admin", RoleAdmin)
	if _, ok := GetMemberID(admin); ok {
		t.Fatal("admin is not a member")
	}
	if role, _ := GetRole(admin); role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", role)
	}
}

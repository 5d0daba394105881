package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		AccountID: "1001",
		Admin:     true,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.AccountID != "1001" {
		t.Errorf("AccountID = %q, want %q", got.AccountID, "1001")
	}
	if !got.Admin {
		t.Error("Admin = false, want true")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestAccountID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{AccountID: "7"})
	if AccountID(ctx) != "7" {
		t.Errorf("AccountID = %q, want %q", AccountID(ctx), "7")
	}
}

func TestAccountIDMissing(t *testing.T) {
	if AccountID(context.Background()) != "" {
		t.Error("expected empty id for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Admin: true})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin caller")
	}
}

func TestIsAdminFalse(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{AccountID: "7"})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for regular caller")
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

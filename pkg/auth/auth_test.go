package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTGrantsPrivilegedRoles(t *testing.T) {
	t.Parallel()

	a := NewJWT([]byte("secret"), "admin", "reviewer")
	tok, err := a.Issue("u-1", "reviewer", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := a.Authorize(WithToken(context.Background(), tok)); err != nil {
		t.Fatalf("expected reviewer to be privileged, got %v", err)
	}
}

func TestJWTRejections(t *testing.T) {
	t.Parallel()

	a := NewJWT([]byte("secret"), "admin")
	buyer, _ := a.Issue("u-2", "buyer", time.Hour)
	expired, _ := a.Issue("u-3", "admin", -time.Second)
	forged, _ := NewJWT([]byte("other"), "admin").Issue("u-4", "admin", time.Hour)

	tests := []struct {
		name    string
		ctx     context.Context
		invalid bool
	}{
		{"no token", context.Background(), true},
		{"wrong role", WithToken(context.Background(), buyer), false},
		{"expired", WithToken(context.Background(), expired), true},
		{"wrong secret", WithToken(context.Background(), forged), true},
		{"malformed", WithToken(context.Background(), "not.a.jwt"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := a.Authorize(tt.ctx)
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
			if errors.Is(err, ErrInvalidToken) != tt.invalid {
				t.Fatalf("ErrInvalidToken match = %v, want %v (%v)", !tt.invalid, tt.invalid, err)
			}
		})
	}
}

func TestStaticAndRequire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if err := Require(ctx, Static(true), "publish"); err != nil {
		t.Fatalf("expected grant, got %v", err)
	}
	err := Require(ctx, Static(false), "publish")
	if !errors.Is(err, ErrForbidden) || err.Error() != "publish: auth: forbidden" {
		t.Fatalf("unexpected error %v", err)
	}
	if err := Require(ctx, nil, "publish"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil authorizer must deny, got %v", err)
	}
}

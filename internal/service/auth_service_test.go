package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stemsi/exstem-grading/internal/model"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)

	token, err := auth.GenerateToken(12, model.RoleAdmin, []string{string(model.PermissionResultsPublish)})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 12 || claims.Role != model.RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !claims.HasPermission(model.PermissionResultsPublish) || claims.HasPermission(model.PermissionAttemptsSweep) {
		t.Errorf("unexpected permissions %v", claims.Permissions)
	}
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)

	foreign, _ := NewAuthService("other", time.Hour).GenerateToken(1, model.RoleCandidate, nil)
	expired, _ := NewAuthService("secret", -time.Minute).GenerateToken(1, model.RoleCandidate, nil)
	badRole, _ := auth.GenerateToken(1, model.Role("proctor"), nil)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
		"unknown role": badRole,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

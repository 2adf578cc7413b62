package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/inventura/internal/model"
)

func testUser() *model.User {
	return &model.User{ID: 1, Username: "admin", Role: model.RoleAdmin, UnitID: "unit-1"}
}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testUser())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", claims.Username)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}

	actor := claims.Actor()
	if actor.UserID != "1" || actor.UnitID != "unit-1" || actor.Role != model.RoleAdmin {
		t.Errorf("unexpected actor %+v", actor)
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	a, _ := GenerateToken("s", testUser())
	b, _ := GenerateToken("s", testUser())
	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Errorf("expected distinct token ids, both %q", ca.ID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testUser())

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenWithoutUnit(t *testing.T) {
	u := testUser()
	u.UnitID = ""
	token, _ := GenerateToken("s", u)
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for token without unit")
	}
}

func TestValidateTokenForeignIssuer(t *testing.T) {
	claims := Claims{
		UserID: 1, UnitID: "unit-1", Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for foreign issuer")
	}
}

func TestTokenExpiry(t *testing.T) {
	// Just verify the expiry is set correctly.
	secret := "test"
	token, _ := GenerateToken(secret, testUser())
	claims, _ := ValidateToken(secret, token)

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := time.Now().Add(TokenExpiry)

	// Should be within a few seconds.
	diff := expectedExpiry.Sub(expiresAt)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

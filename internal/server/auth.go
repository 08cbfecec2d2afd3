package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// admissionScope is the only scope this system issues or accepts; there is
// no user/role model for the admission guard to distinguish.
const admissionScope = "admission"

// IssueAdmissionToken mints an HS256 JWT an operator can hand to a caller as
// its bearer token, signed with secret and valid for ttl.
func IssueAdmissionToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"scope": admissionScope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateAdmissionToken parses and verifies tokenString as an HS256 JWT
// signed with secret and carrying the admission scope.
func validateAdmissionToken(tokenString, secret string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if scope, _ := claims["scope"].(string); scope != admissionScope {
		return fmt.Errorf("token missing %s scope", admissionScope)
	}
	return nil
}

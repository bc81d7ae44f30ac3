package api

import (
	"crypto"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWT 是簽進 access token cookie 的宣告內容，
// Subject 為本地使用者的 uuid
type JWT struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseAndValidateJWT 解析並驗證 access token，只接受 Ed25519 簽章
func ParseAndValidateJWT(tokenString string, secret crypto.Signer) (*JWT, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWT{},
		func(token *jwt.Token) (interface{}, error) {
			return secret.Public(), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims identify the user of a session cookie or bearer token.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// StateClaims are carried through an OAuth round trip in the state
// parameter.
type StateClaims struct {
	UserID   int64  `json:"uid"`
	BrandID  int64  `json:"bid"`
	Provider string `json:"prv"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/dropserve/internal/common"
)

// Claims are the statements carried by an upload token: the registered set
// plus the uploader identity the token was minted for.
type Claims struct {
	jwt.RegisteredClaims
	Uploader string
}

// MintUploadToken signs an HS256 token granting upload rights to uploader
// for validityDuration.
func MintUploadToken(uploader string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Uploader: uploader,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyUploadToken checks the signature and expiry and returns the uploader
// identity the token was minted for.
func VerifyUploadToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Uploader, nil
}

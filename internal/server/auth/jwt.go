// Package auth issues and verifies API tokens identifying uploaders.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the uploader identity alongside the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"name"`
}

func GenerateToken(user *models.User, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:   user.ID,
		Username: user.Username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserFromToken verifies an HS256 token and returns the user it names.
// Expired tokens yield common.ErrTokenExpired, all other failures wrap
// common.ErrInvalidToken.
func GetUserFromToken(tokenString string, secretKey []byte) (*models.User, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &models.User{ID: claims.UserID, Username: claims.Username}, nil
}

// Package auth, oturum kimliğini access token'dan çıkarır.
//
// Token sunucuda imzalanır ve sunucuda doğrulanır; client imza anahtarına
// sahip değildir. Burada token sadece "mevcut kullanıcı kim?" sorusu için
// okunur (ParseUnverified). Token'ın kendisi REST ve push isteklerinde
// olduğu gibi sunucuya iletilir.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

// Session, aktif oturumun kimliği.
type Session struct {
	UserID      string
	Username    string
	AccessToken string
}

// ParseSession, access token'dan Session üretir.
func ParseSession(accessToken string) (*Session, error) {
	accessToken = strings.TrimSpace(strings.TrimPrefix(accessToken, "Bearer "))
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", pkg.ErrUnauthorized)
	}

	claims := &models.TokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %v", pkg.ErrUnauthorized, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: access token has no user id", pkg.ErrUnauthorized)
	}

	return &Session{
		UserID:      userID,
		Username:    claims.Username,
		AccessToken: accessToken,
	}, nil
}

// Package middleware, bridge HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur:
//
//	func(next http.Handler) http.Handler
//
// Middleware kendi işini yapar (ör: token doğrula), sonra next'i çağırır.
// Eğer hata varsa next'i çağırmaz ve request burada durur.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/akinalp/mqvi-sync/pkg"
)

// BridgeAuth, view bridge'ine gelen isteklerde paylaşılan token'ı doğrular.
//
// Bridge sadece yerel view'a hizmet eder; token boşsa doğrulama kapalıdır.
type BridgeAuth struct {
	token []byte
}

// NewBridgeAuth, constructor.
func NewBridgeAuth(token string) *BridgeAuth {
	return &BridgeAuth{token: []byte(token)}
}

// Require, token zorunlu kılan middleware.
// Token yoksa veya eşleşmiyorsa 401 Unauthorized.
//
// Token iki yerden okunur:
//
//	Authorization: Bearer <token>
//	/bridge/ws?token=<token>   (tarayıcı WebSocket'i header gönderemez)
func (m *BridgeAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.token) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
				return
			}
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "bridge token required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), m.token) != 1 {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid bridge token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

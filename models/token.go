package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, mqvi sunucusunun verdiği access token'ın payload'ı.
//
// Client token'ı doğrulamaz (imza anahtarı sunucudadır); sadece mevcut
// kullanıcının kim olduğunu öğrenmek için okur. Reaction'lar "sadece mevcut
// kullanıcı için" değiştirilir, kendi typing event'lerimiz gösterilmez —
// ikisi de UserID'ye ihtiyaç duyar.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

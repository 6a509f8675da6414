// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Error karşılaştırması string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrRejected) { ... }
package pkg

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain-level error'lar.
// REST repository'leri HTTP status code'larını bu error'lara map'ler;
// mutation service'i bunlara bakarak rollback kararı verir.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")

	// ErrRejected: sunucu optimistic bir aksiyonu reddetti (yetki, validation).
	// Kullanıcıya gösterilebilir, kurtarılabilir bir hatadır.
	ErrRejected = errors.New("mutation rejected")

	// ErrConnectionClosed: push bağlantısı açıkça kapatıldı (terminal durum).
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotMaterialized: istenen scope cache'te yüklü değil.
	ErrNotMaterialized = errors.New("scope not materialized")
)

// APIError, REST API'nin 2xx dışı bir cevabını temsil eder.
//
// Unwrap, status code'a karşılık gelen sentinel error'ı döner; böylece
// errors.Is(err, pkg.ErrForbidden) wrap edilmiş APIError için de çalışır.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

// Unwrap, status'a karşılık gelen sentinel error'ı döner.
func (e *APIError) Unwrap() error {
	return statusToError(e.Status)
}

// Is, 4xx cevapları ErrRejected ile de eşleştirir: "sunucu reddetti"
// bilgisi tek bir kontrolle okunabilsin diye.
func (e *APIError) Is(target error) bool {
	return target == ErrRejected && IsRejectionStatus(e.Status)
}

// IsRejectionStatus, status'un sunucunun aksiyonu bilinçli olarak reddettiği
// bir durum olup olmadığını döner (rate limit hariç 4xx).
func IsRejectionStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// statusToError, HTTP status code'larını domain error'larına eşler.
// Sunucudaki mapErrorToStatus'un tersidir.
func statusToError(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

// Package main — Repository katmanı başlatma.
//
// initRepositories, REST repository implementasyonlarını oluşturur.
// Hepsi aynı *repository.Client'ı (base URL + token + rate limiter) paylaşır.
package main

import (
	"github.com/akinalp/mqvi-sync/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	Channel   repository.ChannelRepository
	Message   repository.MessageRepository
	Reaction  repository.ReactionRepository
	ReadState repository.ReadStateRepository
}

// initRepositories, tüm repository'leri oluşturur.
func initRepositories(client *repository.Client) *Repositories {
	return &Repositories{
		Channel:   repository.NewHTTPChannelRepo(client),
		Message:   repository.NewHTTPMessageRepo(client),
		Reaction:  repository.NewHTTPReactionRepo(client),
		ReadState: repository.NewHTTPReadStateRepo(client),
	}
}

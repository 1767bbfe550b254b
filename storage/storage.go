package storage

import (
	"context"
	"errors"
	"sort"

	"pingpong-ladder/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNotPending    = errors.New("match is not pending")
	ErrStaleRating   = errors.New("player rating changed concurrently")
	ErrAlreadyExists = errors.New("record already exists")
)

// Store хранилище игроков, матчей и запросов на подтверждение.
// Все методы, меняющие несколько записей, атомарны.
type Store interface {
	CreatePlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, playerID string) (*models.Player, error)
	ListPlayers(ctx context.Context) ([]*models.Player, error)

	// CreateMatch сохраняет матч и его запрос вместе
	CreateMatch(ctx context.Context, match *models.Match, req *models.ConfirmationRequest) error
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	GetRequest(ctx context.Context, matchID string) (*models.ConfirmationRequest, error)
	// ListPendingFor возвращает ожидающие подтверждения игрока матчи, новые первыми
	ListPendingFor(ctx context.Context, playerID string) ([]models.PendingConfirmation, error)
	// ListMatches возвращает матчи в статусе status (все, если пусто), новые первыми
	ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error)
	CountConfirmed(ctx context.Context, playerID string) (int, error)

	// FinalizeMatch переводит матч и запрос в конечный статус и записывает
	// новые рейтинги. Рейтинг каждого игрока обновляется только если он все
	// еще равен OldRating из дельты.
	FinalizeMatch(ctx context.Context, f models.Finalization) error
	// DeleteMatch удаляет ожидающий матч вместе с запросом
	DeleteMatch(ctx context.Context, matchID string) error

	Close() error
}

// sortByActivity сортирует матчи от новых к старым
func sortByActivity(matches []*models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].ActivityTime(), matches[j].ActivityTime()
		if !a.Equal(b) {
			return a.After(b)
		}
		return matches[i].ID < matches[j].ID
	})
}

// sortPending сортирует запросы от новых к старым
func sortPending(pending []models.PendingConfirmation) {
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Request, pending[j].Request
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.MatchID < b.MatchID
	})
}

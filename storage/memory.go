package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pingpong-ladder/models"
)

// MemoryStorage хранит данные в памяти процесса
type MemoryStorage struct {
	mu       sync.RWMutex
	players  map[string]models.Player
	names    map[string]string
	matches  map[string]models.Match
	requests map[string]models.ConfirmationRequest
}

// NewMemoryStorage создает пустое хранилище в памяти
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		players:  make(map[string]models.Player),
		names:    make(map[string]string),
		matches:  make(map[string]models.Match),
		requests: make(map[string]models.ConfirmationRequest),
	}
}

// Close ничего не делает
func (s *MemoryStorage) Close() error { return nil }

// CreatePlayer добавляет игрока
func (s *MemoryStorage) CreatePlayer(_ context.Context, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[player.ID]; ok {
		return fmt.Errorf("player %s: %w", player.ID, ErrAlreadyExists)
	}
	if _, ok := s.names[player.Name]; ok {
		return fmt.Errorf("player name %q: %w", player.Name, ErrAlreadyExists)
	}
	s.players[player.ID] = *player
	s.names[player.Name] = player.ID
	return nil
}

// GetPlayer возвращает игрока по ID
func (s *MemoryStorage) GetPlayer(_ context.Context, playerID string) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[playerID]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return &p, nil
}

// ListPlayers возвращает всех игроков в порядке ID
func (s *MemoryStorage) ListPlayers(_ context.Context) ([]*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*models.Player, 0, len(s.players))
	for _, p := range s.players {
		p := p
		players = append(players, &p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

// CreateMatch сохраняет матч и запрос под одной блокировкой
func (s *MemoryStorage) CreateMatch(_ context.Context, match *models.Match, req *models.ConfirmationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[match.ID]; ok {
		return fmt.Errorf("match %s: %w", match.ID, ErrAlreadyExists)
	}
	s.matches[match.ID] = *match
	s.requests[match.ID] = *req
	return nil
}

// GetMatch возвращает матч по ID
func (s *MemoryStorage) GetMatch(_ context.Context, matchID string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return &m, nil
}

// GetRequest возвращает запрос на подтверждение матча
func (s *MemoryStorage) GetRequest(_ context.Context, matchID string) (*models.ConfirmationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[matchID]
	if !ok {
		return nil, fmt.Errorf("request for match %s: %w", matchID, ErrNotFound)
	}
	return &r, nil
}

// ListPendingFor возвращает матчи, ожидающие ответа игрока
func (s *MemoryStorage) ListPendingFor(_ context.Context, playerID string) ([]models.PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []models.PendingConfirmation
	for id, r := range s.requests {
		if r.ConfirmingPlayerID != playerID || r.Status != models.StatusPending {
			continue
		}
		r := r
		m := s.matches[id]
		pending = append(pending, models.PendingConfirmation{Match: &m, Request: &r})
	}
	sortPending(pending)
	return pending, nil
}

// ListMatches возвращает матчи в статусе status, новые первыми
func (s *MemoryStorage) ListMatches(_ context.Context, status models.MatchStatus) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.Match
	for _, m := range s.matches {
		if status != "" && m.Status != status {
			continue
		}
		m := m
		matches = append(matches, &m)
	}
	sortByActivity(matches)
	return matches, nil
}

// CountConfirmed возвращает число подтвержденных матчей игрока
func (s *MemoryStorage) CountConfirmed(_ context.Context, playerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.matches {
		if m.Status == models.StatusConfirmed && m.Involves(playerID) {
			count++
		}
	}
	return count, nil
}

// FinalizeMatch завершает матч, все проверки выполняются до первой записи
func (s *MemoryStorage) FinalizeMatch(_ context.Context, f models.Finalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[f.MatchID]
	if !ok {
		return fmt.Errorf("match %s: %w", f.MatchID, ErrNotFound)
	}
	r, ok := s.requests[f.MatchID]
	if !ok {
		return fmt.Errorf("request for match %s: %w", f.MatchID, ErrNotFound)
	}
	if m.Status != models.StatusPending || r.Status != models.StatusPending {
		return fmt.Errorf("match %s: %w", f.MatchID, ErrNotPending)
	}
	for _, d := range f.Deltas {
		p, ok := s.players[d.PlayerID]
		if !ok {
			return fmt.Errorf("player %s: %w", d.PlayerID, ErrNotFound)
		}
		if p.Rating != d.OldRating {
			return fmt.Errorf("player %s: %w", d.PlayerID, ErrStaleRating)
		}
	}

	for _, d := range f.Deltas {
		p := s.players[d.PlayerID]
		p.Rating = d.NewRating
		s.players[d.PlayerID] = p
	}
	f.Apply(&m, &r)
	s.matches[f.MatchID] = m
	s.requests[f.MatchID] = r
	return nil
}

// DeleteMatch удаляет ожидающий матч и его запрос
func (s *MemoryStorage) DeleteMatch(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if m.Status != models.StatusPending {
		return fmt.Errorf("match %s: %w", matchID, ErrNotPending)
	}
	delete(s.matches, matchID)
	delete(s.requests, matchID)
	return nil
}

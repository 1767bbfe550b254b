package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pingpong-ladder/elo"
	"pingpong-ladder/models"
	"pingpong-ladder/storage"
	"go.uber.org/zap"
)

const (
	DefaultMatchesLimit = 20
	MaxMatchesLimit     = 100
)

// MatchService управляет жизненным циклом матча: отчет, подтверждение, отмена
type MatchService struct {
	store  storage.Store
	logger *zap.Logger
	config *MatchConfig
	locks  *keyedLocker
	now    func() time.Time
}

// MatchConfig конфигурация расчета рейтинга
type MatchConfig struct {
	KFactor   int  // K-фактор при фиксированной политике
	AdaptiveK bool // Подбирать K-фактор по опыту игрока
}

// DefaultMatchConfig возвращает конфигурацию по умолчанию
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		KFactor:   elo.DefaultKFactor,
		AdaptiveK: false,
	}
}

// NewMatchService создает новый сервис матчей
func NewMatchService(store storage.Store, logger *zap.Logger, config *MatchConfig) *MatchService {
	if config == nil {
		config = DefaultMatchConfig()
	}
	if config.KFactor <= 0 {
		config.KFactor = elo.DefaultKFactor
	}
	return &MatchService{
		store:  store,
		logger: logger,
		config: config,
		locks:  newKeyedLocker(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Report регистрирует результат матча и создает запрос на подтверждение сопернику
func (s *MatchService) Report(ctx context.Context, reporterID, opponentID string, reporterScore, opponentScore int) (*models.Match, error) {
	if reporterID == opponentID {
		return nil, ErrSelfMatch
	}
	if reporterScore < 0 || opponentScore < 0 {
		return nil, ErrInvalidScore
	}
	if reporterScore == opponentScore {
		return nil, ErrTieNotAllowed
	}
	if _, err := s.requirePlayer(ctx, reporterID); err != nil {
		return nil, err
	}
	if _, err := s.requirePlayer(ctx, opponentID); err != nil {
		return nil, err
	}

	match := models.NewMatch(reporterID, opponentID, reporterScore, opponentScore)
	match.CreatedAt = s.now()
	req := models.NewConfirmationRequest(match)

	if err := s.store.CreateMatch(ctx, match, req); err != nil {
		s.logger.Error("Failed to create match",
			zap.String("reporter_id", reporterID),
			zap.String("opponent_id", opponentID),
			zap.Error(err),
		)
		return nil, storageError("create match", err)
	}

	s.logger.Info("Match reported",
		zap.String("match_id", match.ID),
		zap.String("reporter_id", reporterID),
		zap.String("opponent_id", opponentID),
		zap.Int("reporter_score", reporterScore),
		zap.Int("opponent_score", opponentScore),
	)
	return match, nil
}

// Respond применяет решение соперника. При подтверждении рейтинги обоих
// игроков и статус матча записываются одной операцией хранилища.
func (s *MatchService) Respond(ctx context.Context, matchID, responderID string, decision models.Decision) (*models.MatchOutcome, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}

	unlock := s.locks.Lock(matchLockKey(matchID))
	defer unlock()

	match, req, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if req.ConfirmingPlayerID != responderID {
		s.logger.Warn("Responder is not the confirming player",
			zap.String("match_id", matchID),
			zap.String("responder_id", responderID),
		)
		return nil, ErrNotAuthorized
	}
	if match.Status != models.StatusPending || req.Status != models.StatusPending {
		return nil, ErrAlreadyProcessed
	}

	if decision == models.DecisionDeny {
		return s.deny(ctx, match, req)
	}
	return s.approve(ctx, match, req)
}

// deny отклоняет матч без изменения рейтингов
func (s *MatchService) deny(ctx context.Context, match *models.Match, req *models.ConfirmationRequest) (*models.MatchOutcome, error) {
	f := models.Finalization{
		MatchID: match.ID,
		Status:  models.StatusDenied,
		At:      s.now(),
	}
	if err := s.store.FinalizeMatch(ctx, f); err != nil {
		return nil, s.finalizeError(match.ID, err)
	}
	f.Apply(match, req)

	s.logger.Info("Match denied",
		zap.String("match_id", match.ID),
		zap.String("responder_id", req.ConfirmingPlayerID),
	)
	return &models.MatchOutcome{Match: match, Request: req, Deltas: []models.RatingDelta{}}, nil
}

// approve подтверждает матч и пересчитывает рейтинги под блокировкой обоих игроков
func (s *MatchService) approve(ctx context.Context, match *models.Match, req *models.ConfirmationRequest) (*models.MatchOutcome, error) {
	unlock := s.locks.Lock(playerLockKey(match.PlayerAID), playerLockKey(match.PlayerBID))
	defer unlock()

	playerA, err := s.requirePlayer(ctx, match.PlayerAID)
	if err != nil {
		return nil, err
	}
	playerB, err := s.requirePlayer(ctx, match.PlayerBID)
	if err != nil {
		return nil, err
	}

	kA, kB, err := s.kFactors(ctx, playerA, playerB)
	if err != nil {
		return nil, err
	}

	result, err := elo.ApplyMatchK(playerA.Rating, playerB.Rating, match.ScoreA, match.ScoreB, kA, kB)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", match.ID, err)
	}

	f := models.Finalization{
		MatchID: match.ID,
		Status:  models.StatusConfirmed,
		At:      s.now(),
		Deltas: []models.RatingDelta{
			models.NewRatingDelta(playerA.ID, result.A),
			models.NewRatingDelta(playerB.ID, result.B),
		},
	}
	if err := s.store.FinalizeMatch(ctx, f); err != nil {
		return nil, s.finalizeError(match.ID, err)
	}
	f.Apply(match, req)

	s.logger.Info("Match confirmed",
		zap.String("match_id", match.ID),
		zap.String("player_a_id", playerA.ID),
		zap.Int("player_a_rating", result.A.NewRating),
		zap.Int("player_a_change", result.A.Change),
		zap.String("player_b_id", playerB.ID),
		zap.Int("player_b_rating", result.B.NewRating),
		zap.Int("player_b_change", result.B.Change),
	)
	return &models.MatchOutcome{Match: match, Request: req, Deltas: f.Deltas}, nil
}

// ListPending возвращает матчи, ожидающие подтверждения игрока, новые первыми
func (s *MatchService) ListPending(ctx context.Context, playerID string) ([]models.PendingConfirmation, error) {
	pending, err := s.store.ListPendingFor(ctx, playerID)
	if err != nil {
		return nil, storageError("list pending", err)
	}
	if pending == nil {
		pending = []models.PendingConfirmation{}
	}
	return pending, nil
}

// Cancel удаляет ожидающий матч. Разрешено автору отчета и администратору.
func (s *MatchService) Cancel(ctx context.Context, matchID, requesterID string) error {
	unlock := s.locks.Lock(matchLockKey(matchID))
	defer unlock()

	match, req, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return err
	}

	if req.RequestingPlayerID != requesterID {
		requester, err := s.store.GetPlayer(ctx, requesterID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return storageError("get player", err)
		}
		if requester == nil || !requester.IsAdmin {
			s.logger.Warn("Cancel rejected",
				zap.String("match_id", matchID),
				zap.String("requester_id", requesterID),
			)
			return ErrNotAuthorized
		}
	}
	if match.Status != models.StatusPending {
		return ErrAlreadyProcessed
	}

	if err := s.store.DeleteMatch(ctx, matchID); err != nil {
		return s.finalizeError(matchID, err)
	}

	s.logger.Info("Match cancelled",
		zap.String("match_id", matchID),
		zap.String("requester_id", requesterID),
	)
	return nil
}

// GetMatch возвращает матч вместе с запросом на подтверждение
func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.MatchDetails, error) {
	match, req, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return &models.MatchDetails{Match: match, Request: req}, nil
}

// ListMatches возвращает страницу матчей и общее число подходящих под фильтр
func (s *MatchService) ListMatches(ctx context.Context, filter models.MatchFilter) ([]*models.Match, int, error) {
	if filter.Status == "" {
		filter.Status = models.StatusConfirmed
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultMatchesLimit
	}
	if filter.Limit > MaxMatchesLimit {
		filter.Limit = MaxMatchesLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	all, err := s.store.ListMatches(ctx, filter.Status)
	if err != nil {
		return nil, 0, storageError("list matches", err)
	}

	matches := make([]*models.Match, 0, len(all))
	for _, m := range all {
		if filter.PlayerID != "" && !m.Involves(filter.PlayerID) {
			continue
		}
		matches = append(matches, m)
	}

	total := len(matches)
	if filter.Offset >= total {
		return []*models.Match{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matches[filter.Offset:end], total, nil
}

// loadMatch читает матч и его запрос
func (s *MatchService) loadMatch(ctx context.Context, matchID string) (*models.Match, *models.ConfirmationRequest, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, storageError("get match", err)
	}

	req, err := s.store.GetRequest(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, storageError("get match request", err)
	}
	return match, req, nil
}

// requirePlayer возвращает игрока или ErrUnknownPlayer
func (s *MatchService) requirePlayer(ctx context.Context, playerID string) (*models.Player, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if err != nil {
		return nil, storageError("get player", err)
	}
	return player, nil
}

// kFactors возвращает K-факторы обеих сторон согласно политике
func (s *MatchService) kFactors(ctx context.Context, a, b *models.Player) (int, int, error) {
	if !s.config.AdaptiveK {
		return s.config.KFactor, s.config.KFactor, nil
	}

	gamesA, err := s.store.CountConfirmed(ctx, a.ID)
	if err != nil {
		return 0, 0, storageError("count matches", err)
	}
	gamesB, err := s.store.CountConfirmed(ctx, b.ID)
	if err != nil {
		return 0, 0, storageError("count matches", err)
	}
	return elo.AdaptiveKFactor(a.Rating, gamesA), elo.AdaptiveKFactor(b.Rating, gamesB), nil
}

// finalizeError переводит ошибки хранилища в ошибки сервиса
func (s *MatchService) finalizeError(matchID string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotPending):
		return ErrAlreadyProcessed
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	}

	s.logger.Error("Failed to finalize match",
		zap.String("match_id", matchID),
		zap.Error(err),
	)
	return storageError("finalize match", err)
}

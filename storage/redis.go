package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"pingpong-ladder/models"
	"go.uber.org/zap"
)

// RedisStorage хранит игроков и матчи в Redis.
// Многоключевые изменения выполняются через WATCH/MULTI.
type RedisStorage struct {
	client *redis.Client
	logger *zap.Logger
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisStorage создает новое хранилище Redis
func NewRedisStorage(ctx context.Context, addr string, password string, db int, logger *zap.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

// Close закрывает соединение с Redis
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// CreatePlayer сохраняет игрока. Имя резервируется через SETNX, запись
// игрока и индекс players пишутся одной транзакцией под WATCH ключа игрока.
func (s *RedisStorage) CreatePlayer(ctx context.Context, player *models.Player) error {
	ok, err := s.client.SetNX(ctx, s.playerNameKey(player.Name), player.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve player name: %w", err)
	}
	if !ok {
		return fmt.Errorf("player name %q: %w", player.Name, ErrAlreadyExists)
	}

	playerJSON, err := json.Marshal(player)
	if err != nil {
		s.releaseName(ctx, player.Name)
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	key := s.playerKey(player.ID)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check player: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("player %s: %w", player.ID, ErrAlreadyExists)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, playerJSON, 0)
			pipe.SAdd(ctx, playersKey, player.ID)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		err = fmt.Errorf("player %s: %w", player.ID, ErrAlreadyExists)
	}
	if err != nil {
		s.releaseName(ctx, player.Name)
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to save player: %w", err)
	}

	s.logger.Info("Player created",
		zap.String("player_id", player.ID),
		zap.String("name", player.Name),
		zap.Int("rating", player.Rating),
	)
	return nil
}

// releaseName снимает резерв имени после неудачного создания игрока
func (s *RedisStorage) releaseName(ctx context.Context, name string) {
	if err := s.client.Del(ctx, s.playerNameKey(name)).Err(); err != nil {
		s.logger.Error("Failed to release player name",
			zap.String("name", name),
			zap.Error(err),
		)
	}
}

// GetPlayer возвращает игрока по ID
func (s *RedisStorage) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	var player models.Player
	if err := s.getJSON(ctx, s.client, s.playerKey(playerID), &player); err != nil {
		return nil, fmt.Errorf("player %s: %w", playerID, err)
	}
	return &player, nil
}

// ListPlayers возвращает всех игроков в порядке ID
func (s *RedisStorage) ListPlayers(ctx context.Context) ([]*models.Player, error) {
	ids, err := s.client.SMembers(ctx, playersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.playerKey(id)
	}
	values, err := s.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}

	players := make([]*models.Player, 0, len(values))
	for _, value := range values {
		var player models.Player
		if err := json.Unmarshal([]byte(value), &player); err != nil {
			s.logger.Warn("Failed to unmarshal player",
				zap.Error(err),
				zap.String("data", value),
			)
			continue
		}
		players = append(players, &player)
	}
	return players, nil
}

// CreateMatch сохраняет матч, запрос и индексы одной транзакцией
func (s *RedisStorage) CreateMatch(ctx context.Context, match *models.Match, req *models.ConfirmationRequest) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	created := float64(req.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.matchKey(match.ID), matchJSON, 0)
		pipe.Set(ctx, s.requestKey(match.ID), reqJSON, 0)
		pipe.ZAdd(ctx, s.pendingKey(req.ConfirmingPlayerID), &redis.Z{Score: created, Member: match.ID})
		pipe.ZAdd(ctx, s.statusKey(models.StatusPending), &redis.Z{Score: created, Member: match.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

// GetMatch возвращает матч по ID
func (s *RedisStorage) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var match models.Match
	if err := s.getJSON(ctx, s.client, s.matchKey(matchID), &match); err != nil {
		return nil, fmt.Errorf("match %s: %w", matchID, err)
	}
	return &match, nil
}

// GetRequest возвращает запрос на подтверждение матча
func (s *RedisStorage) GetRequest(ctx context.Context, matchID string) (*models.ConfirmationRequest, error) {
	var req models.ConfirmationRequest
	if err := s.getJSON(ctx, s.client, s.requestKey(matchID), &req); err != nil {
		return nil, fmt.Errorf("request for match %s: %w", matchID, err)
	}
	return &req, nil
}

// ListPendingFor возвращает матчи, ожидающие ответа игрока, новые первыми
func (s *RedisStorage) ListPendingFor(ctx context.Context, playerID string) ([]models.PendingConfirmation, error) {
	ids, err := s.client.ZRevRange(ctx, s.pendingKey(playerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches: %w", err)
	}

	pending := make([]models.PendingConfirmation, 0, len(ids))
	for _, id := range ids {
		match, err := s.GetMatch(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		req, err := s.GetRequest(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if req.Status != models.StatusPending {
			continue
		}
		pending = append(pending, models.PendingConfirmation{Match: match, Request: req})
	}
	return pending, nil
}

// ListMatches возвращает матчи в статусе status, новые первыми
func (s *RedisStorage) ListMatches(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	statuses := []models.MatchStatus{status}
	if status == "" {
		statuses = []models.MatchStatus{models.StatusPending, models.StatusConfirmed, models.StatusDenied}
	}

	var keys []string
	for _, st := range statuses {
		ids, err := s.client.ZRange(ctx, s.statusKey(st), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list matches: %w", err)
		}
		for _, id := range ids {
			keys = append(keys, s.matchKey(id))
		}
	}

	values, err := s.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	matches := make([]*models.Match, 0, len(values))
	for _, value := range values {
		var match models.Match
		if err := json.Unmarshal([]byte(value), &match); err != nil {
			s.logger.Warn("Failed to unmarshal match",
				zap.Error(err),
				zap.String("data", value),
			)
			continue
		}
		matches = append(matches, &match)
	}
	sortByActivity(matches)
	return matches, nil
}

// CountConfirmed возвращает число подтвержденных матчей игрока
func (s *RedisStorage) CountConfirmed(ctx context.Context, playerID string) (int, error) {
	n, err := s.client.ZCard(ctx, s.playerConfirmedKey(playerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return int(n), nil
}

// FinalizeMatch завершает матч под WATCH ключей матча, запроса и игроков
func (s *RedisStorage) FinalizeMatch(ctx context.Context, f models.Finalization) error {
	keys := []string{s.matchKey(f.MatchID), s.requestKey(f.MatchID)}
	for _, d := range f.Deltas {
		keys = append(keys, s.playerKey(d.PlayerID))
	}

	txf := func(tx *redis.Tx) error {
		var match models.Match
		if err := s.getJSON(ctx, tx, s.matchKey(f.MatchID), &match); err != nil {
			return fmt.Errorf("match %s: %w", f.MatchID, err)
		}
		var req models.ConfirmationRequest
		if err := s.getJSON(ctx, tx, s.requestKey(f.MatchID), &req); err != nil {
			return fmt.Errorf("request for match %s: %w", f.MatchID, err)
		}
		if match.Status != models.StatusPending || req.Status != models.StatusPending {
			return fmt.Errorf("match %s: %w", f.MatchID, ErrNotPending)
		}

		players := make([]models.Player, 0, len(f.Deltas))
		for _, d := range f.Deltas {
			var player models.Player
			if err := s.getJSON(ctx, tx, s.playerKey(d.PlayerID), &player); err != nil {
				return fmt.Errorf("player %s: %w", d.PlayerID, err)
			}
			if player.Rating != d.OldRating {
				return fmt.Errorf("player %s: %w", d.PlayerID, ErrStaleRating)
			}
			player.Rating = d.NewRating
			players = append(players, player)
		}

		f.Apply(&match, &req)
		matchJSON, err := json.Marshal(&match)
		if err != nil {
			return fmt.Errorf("failed to marshal match: %w", err)
		}
		reqJSON, err := json.Marshal(&req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.matchKey(match.ID), matchJSON, 0)
			pipe.Set(ctx, s.requestKey(match.ID), reqJSON, 0)
			pipe.ZRem(ctx, s.pendingKey(req.ConfirmingPlayerID), match.ID)
			pipe.ZRem(ctx, s.statusKey(models.StatusPending), match.ID)
			score := float64(match.ActivityTime().UnixNano())
			pipe.ZAdd(ctx, s.statusKey(match.Status), &redis.Z{Score: score, Member: match.ID})
			if match.Status == models.StatusConfirmed {
				pipe.ZAdd(ctx, s.playerConfirmedKey(match.PlayerAID), &redis.Z{Score: score, Member: match.ID})
				pipe.ZAdd(ctx, s.playerConfirmedKey(match.PlayerBID), &redis.Z{Score: score, Member: match.ID})
			}
			for i := range players {
				playerJSON, err := json.Marshal(&players[i])
				if err != nil {
					return fmt.Errorf("failed to marshal player: %w", err)
				}
				pipe.Set(ctx, s.playerKey(players[i].ID), playerJSON, 0)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		// Один из ключей изменился между WATCH и EXEC
		match, getErr := s.GetMatch(ctx, f.MatchID)
		if getErr == nil && match.Status != models.StatusPending {
			return fmt.Errorf("match %s: %w", f.MatchID, ErrNotPending)
		}
		return fmt.Errorf("match %s: %w", f.MatchID, ErrStaleRating)
	}
	if err != nil {
		return err
	}

	s.logger.Info("Match finalized",
		zap.String("match_id", f.MatchID),
		zap.String("status", string(f.Status)),
	)
	return nil
}

// DeleteMatch удаляет ожидающий матч вместе с запросом и индексами
func (s *RedisStorage) DeleteMatch(ctx context.Context, matchID string) error {
	txf := func(tx *redis.Tx) error {
		var match models.Match
		if err := s.getJSON(ctx, tx, s.matchKey(matchID), &match); err != nil {
			return fmt.Errorf("match %s: %w", matchID, err)
		}
		if match.Status != models.StatusPending {
			return fmt.Errorf("match %s: %w", matchID, ErrNotPending)
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.matchKey(matchID), s.requestKey(matchID))
			pipe.ZRem(ctx, s.pendingKey(match.PlayerBID), matchID)
			pipe.ZRem(ctx, s.statusKey(models.StatusPending), matchID)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, s.matchKey(matchID), s.requestKey(matchID))
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("match %s: %w", matchID, ErrNotPending)
	}
	return err
}

// getJSON читает и декодирует значение ключа
func (s *RedisStorage) getJSON(ctx context.Context, c stringGetter, key string, v interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// mget читает несколько ключей, отсутствующие пропускаются
func (s *RedisStorage) mget(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			values = append(values, str)
		}
	}
	return values, nil
}

const playersKey = "players"

// playerKey возвращает ключ для игрока
func (s *RedisStorage) playerKey(playerID string) string {
	return fmt.Sprintf("player:%s", playerID)
}

// playerNameKey резервирует уникальное имя игрока
func (s *RedisStorage) playerNameKey(name string) string {
	return fmt.Sprintf("player_name:%s", name)
}

// playerConfirmedKey индекс подтвержденных матчей игрока
func (s *RedisStorage) playerConfirmedKey(playerID string) string {
	return fmt.Sprintf("player:%s:confirmed", playerID)
}

// matchKey возвращает ключ для матча
func (s *RedisStorage) matchKey(matchID string) string {
	return fmt.Sprintf("match:%s", matchID)
}

// requestKey возвращает ключ для запроса на подтверждение
func (s *RedisStorage) requestKey(matchID string) string {
	return fmt.Sprintf("request:%s", matchID)
}

// pendingKey индекс запросов, ожидающих ответа игрока
func (s *RedisStorage) pendingKey(playerID string) string {
	return fmt.Sprintf("pending:%s", playerID)
}

// statusKey индекс матчей по статусу
func (s *RedisStorage) statusKey(status models.MatchStatus) string {
	return fmt.Sprintf("matches:%s", status)
}

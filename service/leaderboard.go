package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"pingpong-ladder/elo"
	"pingpong-ladder/models"
	"pingpong-ladder/storage"
	"go.uber.org/zap"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 100
	DefaultRecentLimit      = 20
	MaxRecentLimit          = 50

	ProfileRecentMatches = 10
	MostActiveLimit      = 5
	ActivityDays         = 30
)

// LeaderboardService строит таблицу лидеров из подтвержденных матчей.
// Только читает хранилище.
type LeaderboardService struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLeaderboardService создает сервис таблицы лидеров
func NewLeaderboardService(store storage.Store, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type tally struct {
	total int
	wins  int
}

// Rank возвращает игроков, сыгравших не менее minMatches подтвержденных матчей.
// Порядок: рейтинг по убыванию, число матчей по убыванию, ID по возрастанию.
func (s *LeaderboardService) Rank(ctx context.Context, minMatches int) ([]models.PlayerStanding, error) {
	standings, _, err := s.rank(ctx, minMatches)
	return standings, err
}

// Leaderboard возвращает первые limit строк таблицы и сводку по попавшим в нее игрокам
func (s *LeaderboardService) Leaderboard(ctx context.Context, minMatches, limit int) (*models.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	if minMatches < 0 {
		minMatches = 0
	}

	standings, confirmed, err := s.rank(ctx, minMatches)
	if err != nil {
		return nil, err
	}

	stats := summarize(standings, confirmed)
	if len(standings) > limit {
		standings = standings[:limit]
	}

	return &models.Leaderboard{
		Standings:  standings,
		Stats:      stats,
		MinMatches: minMatches,
		Limit:      limit,
	}, nil
}

// RatingHistory возвращает историю рейтинга игрока: стартовую точку и
// по одной точке на каждый подтвержденный матч в порядке подтверждения
func (s *LeaderboardService) RatingHistory(ctx context.Context, playerID string) ([]models.RatingPoint, error) {
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		return nil, storageError("get player", err)
	}

	confirmed, err := s.store.ListMatches(ctx, models.StatusConfirmed)
	if err != nil {
		return nil, storageError("list matches", err)
	}

	var played []*models.Match
	for _, m := range confirmed {
		if m.Involves(playerID) && m.DeltaFor(playerID) != nil {
			played = append(played, m)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		a, b := played[i].ActivityTime(), played[j].ActivityTime()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return played[i].ID < played[j].ID
	})

	history := make([]models.RatingPoint, 0, len(played)+1)
	if len(played) == 0 {
		return history, nil
	}

	history = append(history, models.RatingPoint{
		Rating:     played[0].DeltaFor(playerID).OldRating,
		IsStarting: true,
	})
	for _, m := range played {
		d := m.DeltaFor(playerID)
		opponentID, own, other := m.Opponent(playerID)
		history = append(history, models.RatingPoint{
			Date:          m.ConfirmedAt,
			Rating:        d.NewRating,
			Change:        d.Change,
			MatchID:       m.ID,
			OpponentID:    opponentID,
			PlayerScore:   own,
			OpponentScore: other,
			Won:           m.WinnerID == playerID,
		})
	}
	return history, nil
}

// RecentMatches возвращает последние подтвержденные матчи
func (s *LeaderboardService) RecentMatches(ctx context.Context, limit int) ([]*models.Match, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	matches, err := s.store.ListMatches(ctx, models.StatusConfirmed)
	if err != nil {
		return nil, storageError("list matches", err)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return matches, nil
}

// PlayerProfile возвращает профиль игрока: статистику, место и последние матчи.
// Место считается среди игроков хотя бы с одним подтвержденным матчем.
func (s *LeaderboardService) PlayerProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if err != nil {
		return nil, storageError("get player", err)
	}

	standings, confirmed, err := s.rank(ctx, 0)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(standings))
	for _, st := range standings {
		names[st.PlayerID] = st.Name
	}

	profile := &models.PlayerProfile{Player: player, Rank: 1, RecentMatches: []models.ProfileMatch{}}
	for _, st := range standings {
		if st.PlayerID == playerID {
			player.Rating = st.Rating
			profile.TotalMatches = st.TotalMatches
			profile.Wins = st.Wins
			profile.Losses = st.Losses
			profile.WinRate = st.WinRate
			break
		}
		if st.TotalMatches > 0 {
			profile.Rank++
		}
	}

	for _, m := range confirmed {
		if !m.Involves(playerID) {
			continue
		}
		if profile.LastMatchAt == nil {
			profile.LastMatchAt = m.ConfirmedAt
		}
		if len(profile.RecentMatches) == ProfileRecentMatches {
			break
		}
		opponentID, own, other := m.Opponent(playerID)
		pm := models.ProfileMatch{
			MatchID:       m.ID,
			OpponentID:    opponentID,
			OpponentName:  names[opponentID],
			PlayerScore:   own,
			OpponentScore: other,
			Won:           m.WinnerID == playerID,
			ConfirmedAt:   m.ConfirmedAt,
		}
		if d := m.DeltaFor(playerID); d != nil {
			pm.RatingChange = d.Change
		}
		profile.RecentMatches = append(profile.RecentMatches, pm)
	}
	return profile, nil
}

// LeagueStats возвращает общую статистику лиги: сводку по всем игрокам,
// число ожидающих матчей, самых активных игроков и активность по дням
// за последние ActivityDays дней
func (s *LeaderboardService) LeagueStats(ctx context.Context) (*models.LeagueStats, error) {
	standings, confirmed, err := s.rank(ctx, 0)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListMatches(ctx, models.StatusPending)
	if err != nil {
		return nil, storageError("list matches", err)
	}

	stats := &models.LeagueStats{
		Overall:        summarize(standings, confirmed),
		PendingMatches: len(pending),
		MostActive:     []models.ActivePlayer{},
		RecentActivity: []models.DailyActivity{},
	}

	active := make([]models.PlayerStanding, 0, len(standings))
	for _, st := range standings {
		if st.TotalMatches > 0 {
			active = append(active, st)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].TotalMatches != active[j].TotalMatches {
			return active[i].TotalMatches > active[j].TotalMatches
		}
		return active[i].PlayerID < active[j].PlayerID
	})
	for i := 0; i < len(active) && i < MostActiveLimit; i++ {
		stats.MostActive = append(stats.MostActive, models.ActivePlayer{
			PlayerID: active[i].PlayerID,
			Name:     active[i].Name,
			Matches:  active[i].TotalMatches,
		})
	}

	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -ActivityDays)
	perDay := make(map[string]int)
	for _, m := range confirmed {
		if m.ConfirmedAt == nil || m.ConfirmedAt.Before(since) {
			continue
		}
		perDay[m.ConfirmedAt.UTC().Format("2006-01-02")]++
	}
	for day, n := range perDay {
		stats.RecentActivity = append(stats.RecentActivity, models.DailyActivity{Date: day, Matches: n})
	}
	sort.Slice(stats.RecentActivity, func(i, j int) bool {
		return stats.RecentActivity[i].Date > stats.RecentActivity[j].Date
	})
	return stats, nil
}

// rank строит отсортированную таблицу и возвращает подтвержденные матчи для сводки
func (s *LeaderboardService) rank(ctx context.Context, minMatches int) ([]models.PlayerStanding, []*models.Match, error) {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, nil, storageError("list players", err)
	}
	confirmed, err := s.store.ListMatches(ctx, models.StatusConfirmed)
	if err != nil {
		return nil, nil, storageError("list matches", err)
	}

	// Игроки читаются раньше матчей. Если между чтениями подтвердили матч,
	// рейтинг берется из последней дельты снимка матчей.
	latest := latestRatings(confirmed)

	tallies := make(map[string]*tally, len(players))
	for _, p := range players {
		tallies[p.ID] = &tally{}
	}
	for _, m := range confirmed {
		for _, id := range []string{m.PlayerAID, m.PlayerBID} {
			t, ok := tallies[id]
			if !ok {
				continue
			}
			t.total++
			if m.WinnerID == id {
				t.wins++
			}
		}
	}

	standings := make([]models.PlayerStanding, 0, len(players))
	for _, p := range players {
		t := tallies[p.ID]
		if t.total < minMatches {
			continue
		}
		rating := p.Rating
		if r, ok := latest[p.ID]; ok {
			rating = r
		}
		standings = append(standings, models.PlayerStanding{
			PlayerID:     p.ID,
			Name:         p.Name,
			Rating:       rating,
			TotalMatches: t.total,
			Wins:         t.wins,
			Losses:       t.total - t.wins,
			WinRate:      winRate(t.wins, t.total),
		})
	}

	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.TotalMatches != b.TotalMatches {
			return a.TotalMatches > b.TotalMatches
		}
		return a.PlayerID < b.PlayerID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}

	s.logger.Debug("Leaderboard computed",
		zap.Int("players", len(standings)),
		zap.Int("confirmed_matches", len(confirmed)),
		zap.Int("min_matches", minMatches),
	)
	return standings, confirmed, nil
}

// latestRatings рейтинг каждого игрока после его последнего матча в снимке.
// Матчи приходят от новых к старым.
func latestRatings(confirmed []*models.Match) map[string]int {
	latest := make(map[string]int)
	for _, m := range confirmed {
		for _, d := range []*models.RatingDelta{m.RatingA, m.RatingB} {
			if d == nil {
				continue
			}
			if _, seen := latest[d.PlayerID]; !seen {
				latest[d.PlayerID] = d.NewRating
			}
		}
	}
	return latest
}

// winRate процент побед с одним знаком после запятой
func winRate(wins, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return math.Round(float64(wins)/float64(total)*1000) / 10
}

// summarize считает сводку по игрокам таблицы
func summarize(standings []models.PlayerStanding, confirmed []*models.Match) models.LeaderboardStats {
	stats := models.LeaderboardStats{
		HighestRating: elo.DefaultRating,
		LowestRating:  elo.DefaultRating,
		AverageRating: elo.DefaultRating,
	}
	if len(standings) == 0 {
		return stats
	}

	included := make(map[string]bool, len(standings))
	sum := 0
	stats.HighestRating = standings[0].Rating
	stats.LowestRating = standings[0].Rating
	for _, st := range standings {
		included[st.PlayerID] = true
		sum += st.Rating
		if st.Rating > stats.HighestRating {
			stats.HighestRating = st.Rating
		}
		if st.Rating < stats.LowestRating {
			stats.LowestRating = st.Rating
		}
	}
	for _, m := range confirmed {
		if included[m.PlayerAID] || included[m.PlayerBID] {
			stats.TotalMatches++
		}
	}
	stats.TotalPlayers = len(standings)
	stats.AverageRating = int(math.Round(float64(sum) / float64(len(standings))))
	return stats
}

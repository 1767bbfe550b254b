package models

import (
	"time"

	"github.com/google/uuid"
	"pingpong-ladder/elo"
)

// Player представляет участника рейтинга
type Player struct {
	ID        string    `json:"id"`         // Уникальный идентификатор игрока
	Name      string    `json:"name"`       // Отображаемое имя (уникальное)
	Rating    int       `json:"rating"`     // Текущий рейтинг ELO
	IsAdmin   bool      `json:"is_admin"`   // Роль администратора
	CreatedAt time.Time `json:"created_at"` // Время регистрации
}

// NewPlayer создает нового игрока с начальным рейтингом
func NewPlayer(name string, isAdmin bool) *Player {
	return &Player{
		ID:        uuid.New().String(),
		Name:      name,
		Rating:    elo.DefaultRating,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now().UTC(),
	}
}

// RatingDelta описывает изменение рейтинга игрока после подтвержденного матча
type RatingDelta struct {
	PlayerID  string `json:"player_id"`
	OldRating int    `json:"old_rating"`
	NewRating int    `json:"new_rating"`
	Change    int    `json:"change"`
}

// NewRatingDelta привязывает результат расчета к игроку
func NewRatingDelta(playerID string, d elo.Delta) RatingDelta {
	return RatingDelta{
		PlayerID:  playerID,
		OldRating: d.OldRating,
		NewRating: d.NewRating,
		Change:    d.Change,
	}
}

// PlayerStanding строка таблицы лидеров
type PlayerStanding struct {
	Rank         int     `json:"rank"`
	PlayerID     string  `json:"player_id"`
	Name         string  `json:"name"`
	Rating       int     `json:"rating"`
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
}

// LeaderboardStats сводка по игрокам, попавшим в таблицу
type LeaderboardStats struct {
	TotalPlayers  int `json:"total_players"`
	TotalMatches  int `json:"total_matches"`
	HighestRating int `json:"highest_rating"`
	LowestRating  int `json:"lowest_rating"`
	AverageRating int `json:"average_rating"`
}

// Leaderboard таблица лидеров вместе со сводкой
type Leaderboard struct {
	Standings  []PlayerStanding `json:"standings"`
	Stats      LeaderboardStats `json:"stats"`
	MinMatches int              `json:"min_matches"`
	Limit      int              `json:"limit"`
}

// RatingPoint точка истории рейтинга игрока
type RatingPoint struct {
	Date          *time.Time `json:"date,omitempty"`
	Rating        int        `json:"rating"`
	Change        int        `json:"change"`
	MatchID       string     `json:"match_id,omitempty"`
	OpponentID    string     `json:"opponent_id,omitempty"`
	PlayerScore   int        `json:"player_score"`
	OpponentScore int        `json:"opponent_score"`
	Won           bool       `json:"won"`
	IsStarting    bool       `json:"is_starting"`
}

// ProfileMatch подтвержденный матч с точки зрения игрока
type ProfileMatch struct {
	MatchID       string     `json:"match_id"`
	OpponentID    string     `json:"opponent_id"`
	OpponentName  string     `json:"opponent_name"`
	PlayerScore   int        `json:"player_score"`
	OpponentScore int        `json:"opponent_score"`
	Won           bool       `json:"won"`
	RatingChange  int        `json:"rating_change"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// PlayerProfile публичный профиль игрока
type PlayerProfile struct {
	Player        *Player        `json:"player"`
	Rank          int            `json:"rank"`
	TotalMatches  int            `json:"total_matches"`
	Wins          int            `json:"wins"`
	Losses        int            `json:"losses"`
	WinRate       float64        `json:"win_rate"`
	LastMatchAt   *time.Time     `json:"last_match_at,omitempty"`
	RecentMatches []ProfileMatch `json:"recent_matches"`
}

// ActivePlayer игрок и число его подтвержденных матчей
type ActivePlayer struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Matches  int    `json:"matches"`
}

// DailyActivity число подтвержденных матчей за день (UTC)
type DailyActivity struct {
	Date    string `json:"date"`
	Matches int    `json:"matches"`
}

// LeagueStats общая статистика лиги
type LeagueStats struct {
	Overall        LeaderboardStats `json:"overall"`
	PendingMatches int              `json:"pending_matches"`
	MostActive     []ActivePlayer   `json:"most_active_players"`
	RecentActivity []DailyActivity  `json:"recent_activity"`
}

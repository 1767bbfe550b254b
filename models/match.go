package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus статус матча и запроса на подтверждение
type MatchStatus string

const (
	StatusPending   MatchStatus = "pending"
	StatusConfirmed MatchStatus = "confirmed"
	StatusDenied    MatchStatus = "denied"
)

// Decision ответ соперника на запрос подтверждения
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Valid проверяет, что решение известно
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// Match представляет сыгранный матч между двумя игроками.
// PlayerA всегда автор отчета, PlayerB его соперник.
type Match struct {
	ID          string       `json:"id"`
	PlayerAID   string       `json:"player_a_id"`
	PlayerBID   string       `json:"player_b_id"`
	ScoreA      int          `json:"score_a"`
	ScoreB      int          `json:"score_b"`
	WinnerID    string       `json:"winner_id"`
	Status      MatchStatus  `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ConfirmedAt *time.Time   `json:"confirmed_at,omitempty"`
	RatingA     *RatingDelta `json:"rating_a,omitempty"` // Заполняется при подтверждении
	RatingB     *RatingDelta `json:"rating_b,omitempty"`
}

// NewMatch создает матч в статусе pending
func NewMatch(reporterID, opponentID string, reporterScore, opponentScore int) *Match {
	winner := reporterID
	if opponentScore > reporterScore {
		winner = opponentID
	}
	return &Match{
		ID:        uuid.New().String(),
		PlayerAID: reporterID,
		PlayerBID: opponentID,
		ScoreA:    reporterScore,
		ScoreB:    opponentScore,
		WinnerID:  winner,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Involves проверяет, участвовал ли игрок в матче
func (m *Match) Involves(playerID string) bool {
	return m.PlayerAID == playerID || m.PlayerBID == playerID
}

// Opponent возвращает соперника игрока и счет обеих сторон с его точки зрения
func (m *Match) Opponent(playerID string) (opponentID string, own, other int) {
	if m.PlayerAID == playerID {
		return m.PlayerBID, m.ScoreA, m.ScoreB
	}
	return m.PlayerAID, m.ScoreB, m.ScoreA
}

// DeltaFor возвращает сохраненное изменение рейтинга игрока
func (m *Match) DeltaFor(playerID string) *RatingDelta {
	switch playerID {
	case m.PlayerAID:
		return m.RatingA
	case m.PlayerBID:
		return m.RatingB
	}
	return nil
}

// ActivityTime время, по которому матчи сортируются в лентах
func (m *Match) ActivityTime() time.Time {
	if m.ConfirmedAt != nil {
		return *m.ConfirmedAt
	}
	return m.CreatedAt
}

// ConfirmationRequest запрос на подтверждение матча соперником
type ConfirmationRequest struct {
	MatchID            string      `json:"match_id"`
	RequestingPlayerID string      `json:"requesting_player_id"`
	ConfirmingPlayerID string      `json:"confirming_player_id"`
	Status             MatchStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	RespondedAt        *time.Time  `json:"responded_at,omitempty"`
}

// NewConfirmationRequest создает запрос для только что созданного матча
func NewConfirmationRequest(m *Match) *ConfirmationRequest {
	return &ConfirmationRequest{
		MatchID:            m.ID,
		RequestingPlayerID: m.PlayerAID,
		ConfirmingPlayerID: m.PlayerBID,
		Status:             StatusPending,
		CreatedAt:          m.CreatedAt,
	}
}

// PendingConfirmation матч, ожидающий ответа игрока
type PendingConfirmation struct {
	Match   *Match               `json:"match"`
	Request *ConfirmationRequest `json:"request"`
}

// MatchDetails матч вместе с запросом на подтверждение
type MatchDetails struct {
	Match   *Match               `json:"match"`
	Request *ConfirmationRequest `json:"request,omitempty"`
}

// MatchOutcome результат ответа на запрос подтверждения
type MatchOutcome struct {
	Match   *Match               `json:"match"`
	Request *ConfirmationRequest `json:"request"`
	Deltas  []RatingDelta        `json:"deltas"`
}

// Finalization описывает атомарное завершение матча
type Finalization struct {
	MatchID string
	Status  MatchStatus
	At      time.Time
	Deltas  []RatingDelta // Пусто при отказе
}

// Apply переносит итог завершения на матч и запрос
func (f Finalization) Apply(m *Match, r *ConfirmationRequest) {
	at := f.At.UTC()
	m.Status = f.Status
	r.Status = f.Status
	r.RespondedAt = &at
	if f.Status != StatusConfirmed {
		return
	}
	m.ConfirmedAt = &at
	for i := range f.Deltas {
		d := f.Deltas[i]
		switch d.PlayerID {
		case m.PlayerAID:
			m.RatingA = &d
		case m.PlayerBID:
			m.RatingB = &d
		}
	}
}

// MatchFilter параметры выборки матчей
type MatchFilter struct {
	Status   MatchStatus
	PlayerID string
	Limit    int
	Offset   int
}

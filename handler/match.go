package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"pingpong-ladder/models"
	"pingpong-ladder/service"
	"go.uber.org/zap"
)

// MatchHandler обрабатывает HTTP запросы по матчам
type MatchHandler struct {
	matches *service.MatchService
	logger  *zap.Logger
}

// NewMatchHandler создает новый обработчик матчей
func NewMatchHandler(matches *service.MatchService, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{
		matches: matches,
		logger:  logger,
	}
}

// ReportMatchRequest тело запроса на регистрацию матча
type ReportMatchRequest struct {
	OpponentID    string   `json:"opponent_id"`
	PlayerScore   *float64 `json:"player_score"`
	OpponentScore *float64 `json:"opponent_score"`
}

// ConfirmMatchRequest тело запроса на подтверждение матча
type ConfirmMatchRequest struct {
	Action models.Decision `json:"action"`
}

// ReportMatch регистрирует результат матча
func (h *MatchHandler) ReportMatch(w http.ResponseWriter, r *http.Request) {
	playerID := r.Header.Get(PlayerIDHeader)

	var req ReportMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OpponentID == "" || req.PlayerScore == nil || req.OpponentScore == nil {
		respondError(h.logger, w, http.StatusBadRequest, "opponent_id, player_score and opponent_score are required", nil)
		return
	}

	playerScore, err := scoreValue(*req.PlayerScore)
	if err != nil {
		respondServiceError(h.logger, w, "Invalid player_score", err)
		return
	}
	opponentScore, err := scoreValue(*req.OpponentScore)
	if err != nil {
		respondServiceError(h.logger, w, "Invalid opponent_score", err)
		return
	}

	match, err := h.matches.Report(r.Context(), playerID, req.OpponentID, playerScore, opponentScore)
	if err != nil {
		respondServiceError(h.logger, w, "Failed to report match", err)
		return
	}

	respondJSON(h.logger, w, http.StatusCreated, map[string]interface{}{
		"message": "Match created. Waiting for opponent confirmation.",
		"match":   match,
	})
}

// scoreValue принимает только целые очки из JSON числа
func scoreValue(v float64) (int, error) {
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: got %v", service.ErrInvalidScore, v)
	}
	return int(v), nil
}

// ConfirmMatch подтверждает или отклоняет матч
func (h *MatchHandler) ConfirmMatch(w http.ResponseWriter, r *http.Request) {
	playerID := r.Header.Get(PlayerIDHeader)
	matchID := mux.Vars(r)["match_id"]

	var req ConfirmMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	outcome, err := h.matches.Respond(r.Context(), matchID, playerID, req.Action)
	if err != nil {
		respondServiceError(h.logger, w, "Failed to respond to match", err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, outcome)
}

// PendingMatches возвращает матчи, ожидающие подтверждения игрока
func (h *MatchHandler) PendingMatches(w http.ResponseWriter, r *http.Request) {
	playerID := r.Header.Get(PlayerIDHeader)

	pending, err := h.matches.ListPending(r.Context(), playerID)
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get pending matches", err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"pending": pending,
	})
}

// ListMatches возвращает страницу матчей
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	filter := models.MatchFilter{
		Status:   models.MatchStatus(r.URL.Query().Get("status")),
		PlayerID: r.URL.Query().Get("player_id"),
		Limit:    queryInt(r, "limit", service.DefaultMatchesLimit),
		Offset:   queryInt(r, "offset", 0),
	}

	matches, total, err := h.matches.ListMatches(r.Context(), filter)
	if err != nil {
		respondServiceError(h.logger, w, "Failed to list matches", err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"total":   total,
	})
}

// GetMatch возвращает матч и его запрос на подтверждение
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	details, err := h.matches.GetMatch(r.Context(), mux.Vars(r)["match_id"])
	if err != nil {
		respondServiceError(h.logger, w, "Match not found", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, details)
}

// CancelMatch удаляет ожидающий матч
func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	playerID := r.Header.Get(PlayerIDHeader)
	matchID := mux.Vars(r)["match_id"]

	if err := h.matches.Cancel(r.Context(), matchID, playerID); err != nil {
		respondServiceError(h.logger, w, "Failed to cancel match", err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"match_id": matchID,
		"status":   "cancelled",
	})
}

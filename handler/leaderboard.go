package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"pingpong-ladder/service"
	"go.uber.org/zap"
)

// LeaderboardHandler обрабатывает запросы таблицы лидеров
type LeaderboardHandler struct {
	board             *service.LeaderboardService
	logger            *zap.Logger
	defaultMinMatches int
	defaultLimit      int
}

// NewLeaderboardHandler создает обработчик таблицы лидеров
func NewLeaderboardHandler(board *service.LeaderboardService, logger *zap.Logger, defaultMinMatches, defaultLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		board:             board,
		logger:            logger,
		defaultMinMatches: defaultMinMatches,
		defaultLimit:      defaultLimit,
	}
}

// Leaderboard возвращает таблицу лидеров
func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	minMatches := queryInt(r, "min_matches", h.defaultMinMatches)
	limit := queryInt(r, "limit", h.defaultLimit)

	lb, err := h.board.Leaderboard(r.Context(), minMatches, limit)
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get leaderboard", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, lb)
}

// RecentMatches возвращает последние подтвержденные матчи
func (h *LeaderboardHandler) RecentMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.board.RecentMatches(r.Context(), queryInt(r, "limit", service.DefaultRecentLimit))
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get recent matches", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"matches": matches,
	})
}

// RatingHistory возвращает историю рейтинга игрока
func (h *LeaderboardHandler) RatingHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.board.RatingHistory(r.Context(), mux.Vars(r)["player_id"])
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get rating history", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"history":       history,
		"total_matches": max(len(history)-1, 0),
	})
}

// PlayerProfile возвращает публичный профиль игрока
func (h *LeaderboardHandler) PlayerProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.board.PlayerProfile(r.Context(), mux.Vars(r)["player_id"])
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get player profile", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, profile)
}

// LeagueStats возвращает общую статистику лиги
func (h *LeaderboardHandler) LeagueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.board.LeagueStats(r.Context())
	if err != nil {
		respondServiceError(h.logger, w, "Failed to get statistics", err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, stats)
}

package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter настраивает маршруты API
func NewRouter(matches *MatchHandler, board *LeaderboardHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	// Эндпоинты, требующие игрока
	withPlayer := requirePlayer(logger)
	api.Handle("/matches", withPlayer(http.HandlerFunc(matches.ReportMatch))).Methods("POST")
	api.Handle("/matches/pending", withPlayer(http.HandlerFunc(matches.PendingMatches))).Methods("GET")
	api.Handle("/matches/{match_id}/confirm", withPlayer(http.HandlerFunc(matches.ConfirmMatch))).Methods("PUT")
	api.Handle("/matches/{match_id}", withPlayer(http.HandlerFunc(matches.CancelMatch))).Methods("DELETE")

	// Публичные эндпоинты
	api.HandleFunc("/matches", matches.ListMatches).Methods("GET")
	api.HandleFunc("/matches/recent", board.RecentMatches).Methods("GET")
	api.HandleFunc("/matches/{match_id}", matches.GetMatch).Methods("GET")
	api.HandleFunc("/leaderboard", board.Leaderboard).Methods("GET")
	api.HandleFunc("/players/{player_id}", board.PlayerProfile).Methods("GET")
	api.HandleFunc("/players/{player_id}/history", board.RatingHistory).Methods("GET")
	api.HandleFunc("/stats", board.LeagueStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}

// requirePlayer отклоняет запросы без заголовка X-Player-ID
func requirePlayer(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(PlayerIDHeader) == "" {
				respondError(logger, w, http.StatusUnauthorized, "Player ID is required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

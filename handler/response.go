package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pingpong-ladder/service"
	"go.uber.org/zap"
)

// PlayerIDHeader заголовок с ID игрока, проставленный шлюзом авторизации
const PlayerIDHeader = "X-Player-ID"

// respondJSON отправляет JSON ответ
func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// respondError отправляет ошибку в формате JSON
func respondError(logger *zap.Logger, w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.Int("status", status),
			zap.String("message", message),
			zap.Error(err),
		)
	} else {
		logger.Warn("Request error",
			zap.Int("status", status),
			zap.String("message", message),
			zap.Error(err),
		)
	}

	errorResp := map[string]interface{}{
		"error": message,
	}
	if err != nil {
		errorResp["details"] = err.Error()
	}
	respondJSON(logger, w, status, errorResp)
}

// respondServiceError подбирает HTTP статус по виду ошибки сервиса
func respondServiceError(logger *zap.Logger, w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSelfMatch),
		errors.Is(err, service.ErrTieNotAllowed),
		errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidDecision):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownPlayer),
		errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyProcessed):
		status = http.StatusConflict
	}
	respondError(logger, w, status, message, err)
}

// queryInt читает целый параметр запроса, def если параметр пуст или некорректен
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

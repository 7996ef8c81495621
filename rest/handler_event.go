package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/registry"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandleEvent is the inbound webhook: the token in the path correlates the
// delivery to a suspended node. An unknown or already-consumed token is a
// 404, which makes duplicate deliveries harmless.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req model.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	defer r.Body.Close()
	err := s.workflowService.HandleEvent(token, req.Payload)
	if err != nil {
		if errors.Is(err, registry.ErrTokenNotFound) {
			respondWithError(w, http.StatusNotFound, "unknown or consumed token")
			return
		}
		if errors.Is(err, engine.ErrRunFinished) {
			respondWithError(w, http.StatusConflict, "run already finished")
			return
		}
		logger.Error("error consuming event", zap.String("token", token), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error consuming event")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "event consumed"})
}

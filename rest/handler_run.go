package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req model.RunStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	defer r.Body.Close()
	runId, err := s.workflowService.StartRun(req.WorkflowId, req.Input)
	if err != nil {
		if errors.Is(err, engine.ErrWorkflowNotFound) {
			respondWithError(w, http.StatusNotFound, "workflow not found")
			return
		}
		logger.Error("error starting run", zap.String("workflow", req.WorkflowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error starting run")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"runId": runId})
}

func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runId := mux.Vars(r)["id"]
	run, err := s.workflowService.GetRun(runId)
	if err != nil {
		if errors.Is(err, engine.ErrRunNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		logger.Error("error loading run", zap.String("runId", runId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error loading run")
		return
	}
	respondWithJSON(w, http.StatusOK, run)
}

func (s *Server) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	runId := mux.Vars(r)["id"]
	err := s.workflowService.CancelRun(runId)
	if err != nil {
		if errors.Is(err, engine.ErrRunNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		if errors.Is(err, engine.ErrRunFinished) {
			respondWithError(w, http.StatusConflict, "run already finished")
			return
		}
		logger.Error("error cancelling run", zap.String("runId", runId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error cancelling run")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "run cancelled"})
}

package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowmill/flowmill/graph"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleSaveDefinition(w http.ResponseWriter, r *http.Request) {
	var req model.SaveDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	defer r.Body.Close()
	version, err := s.workflowService.SaveDefinition(req.WorkflowId, req.Nodes, req.Edges)
	if err != nil {
		var validationErr graph.ValidationError
		var cycleErr graph.CycleError
		if errors.As(err, &validationErr) || errors.As(err, &cycleErr) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("error saving workflow definition", zap.String("workflow", req.WorkflowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error saving workflow definition")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"workflowId": req.WorkflowId, "version": version})
}

func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	workflowId := mux.Vars(r)["id"]
	def, err := s.workflowService.GetDefinition(workflowId)
	if err != nil {
		if errors.Is(err, service.ErrWorkflowNotFound) {
			respondWithError(w, http.StatusNotFound, "workflow not found")
			return
		}
		logger.Error("error loading workflow definition", zap.String("workflow", workflowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error loading workflow definition")
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	workflowService *service.WorkflowService
}

func NewServer(httpPort int, workflowService *service.WorkflowService) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:            httpPort,
		workflowService: workflowService,
	}

	router := mux.NewRouter()
	router.HandleFunc("/definition", s.HandleSaveDefinition).Methods(http.MethodPost)
	router.HandleFunc("/definition/{id}", s.HandleGetDefinition).Methods(http.MethodGet)
	router.HandleFunc("/run", s.HandleStartRun).Methods(http.MethodPost)
	router.HandleFunc("/run/{id}", s.HandleGetRun).Methods(http.MethodGet)
	router.HandleFunc("/run/{id}/cancel", s.HandleCancelRun).Methods(http.MethodPost)
	router.HandleFunc("/event/{token}", s.HandleEvent).Methods(http.MethodPost)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

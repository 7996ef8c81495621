package agent

import (
	"sync"
	"time"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/container"
	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/executor"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/rest"
	"github.com/flowmill/flowmill/service"
)

// Agent wires the engine together and owns its lifecycle.
type Agent struct {
	Config          config.Config
	container       *container.DIContainer
	coordinator     *engine.Coordinator
	workflowService *service.WorkflowService
	httpServer      *rest.Server
	shutdown        bool
	shutdownLock    sync.Mutex
	wg              sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupContainer,
		a.setupCoordinator,
		a.setupWorkflowService,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupContainer() error {
	a.container = container.NewDIContainer()
	a.container.Init(a.Config)
	return nil
}

func (a *Agent) setupCoordinator() error {
	engineConf := engine.Config{
		MaxDispatchAttempts: a.Config.MaxDispatchAttempts,
		RetryBackoffBase:    a.Config.RetryBackoffBase,
		RetryBackoffCap:     a.Config.RetryBackoffCap,
		WaitTimeout:         a.Config.WaitTimeout,
		SweepInterval:       a.Config.SweepInterval,
		RetryInterval:       time.Second,
		WorkerCount:         a.Config.WorkerCount,
		WorkerCapacity:      a.Config.WorkerCapacity,
	}
	actionExecutor := executor.NewHTTPActionExecutor(a.Config.ExecutorEndpoint, time.Minute)
	a.coordinator = engine.NewCoordinator(
		a.container.GetDefinitionStore(),
		a.container.GetRunStateDao(),
		a.container.GetDefinitionCache(),
		a.container.GetWaitRegistry(),
		actionExecutor,
		engineConf,
		&a.wg,
	)
	return nil
}

func (a *Agent) setupWorkflowService() error {
	a.workflowService = service.NewWorkflowService(
		a.container.GetDefinitionStore(),
		a.container.GetDefinitionCache(),
		a.coordinator,
	)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.workflowService)
	return err
}

func (a *Agent) Start() error {
	a.coordinator.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	logger.Info("shutting down")

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.coordinator.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	a.wg.Wait()
	return nil
}

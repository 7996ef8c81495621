package util

import (
	"fmt"
	"sync"

	"github.com/flowmill/flowmill/logger"
	"go.uber.org/zap"
)

type Task any

// WorkerPool is a fixed set of goroutines draining one bounded task
// channel. The engine dispatches node executions through a pool so
// simultaneously-ready nodes run concurrently while slow action executors
// never block the coordinator.
type WorkerPool struct {
	name     string
	size     int
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(Task) error
	taskChan chan Task
}

func NewWorkerPool(name string, size int, capacity int, wg *sync.WaitGroup, handler func(Task) error) *WorkerPool {
	return &WorkerPool{
		name:     name,
		size:     size,
		stop:     make(chan struct{}),
		wg:       wg,
		handler:  handler,
		taskChan: make(chan Task, capacity),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		worker := fmt.Sprintf("%s-%d", p.name, i)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.taskChan:
					if err := p.handler(task); err != nil {
						logger.Error("error executing task in worker", zap.String("worker", worker), zap.Error(err))
					}
				case <-p.stop:
					logger.Info("stopping worker", zap.String("worker", worker))
					return
				}
			}
		}()
	}
	logger.Info("worker pool started", zap.String("pool", p.name), zap.Int("size", p.size))
}

func (p *WorkerPool) Submit(task Task) {
	p.taskChan <- task
}

func (p *WorkerPool) Stop() {
	close(p.stop)
}

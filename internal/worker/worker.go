package worker

type Worker struct {
	pool       *jobChannelPool
	manager    *Manager
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		pool:       pool,
		manager:    manager,
		jobChannel: make(chan Job),
	}
}

// Start runs the worker loop. The worker parks itself in the pool between
// jobs and exits on a Stop job.
func (w *Worker) Start() {
	go func() {
		for {
			w.pool.Release(w.jobChannel)
			job := <-w.jobChannel
			switch job.Type {
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			case Turn:
				w.manager.handleTurn(job.TurnTask)
			}
		}
	}()
}

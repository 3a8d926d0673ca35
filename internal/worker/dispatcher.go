package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"resolvego/internal/models"
	"resolvego/internal/service/inquiry"
)

// ErrDispatcherBusy reports that the turn queue is full and the request
// was not admitted.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

type userQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	Manager  *Manager

	mu        sync.Mutex
	queues    map[int64]*userQueue // job queue for each user
	ready     *list.List           // LRU queue storing user IDs
	positions map[int64]*list.Element
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager)
	jobQueue := make(chan Job, queueSize)

	d := &Dispatcher{
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		pool:      pool,
		JobQueue:  jobQueue,
		Manager:   manager,
	}

	// Warm up workers so the first turns don't pay spawn latency.
	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// SubmitTurn admits one customer turn and blocks until the worker finishes
// it or the request context expires. A full admission queue returns
// ErrDispatcherBusy immediately. An abandoned job still runs; the buffered
// result channel lets the worker complete without a reader.
func (d *Dispatcher) SubmitTurn(req TurnRequest) (*inquiry.TurnResult, error) {
	task := &turnTask{req: req, resultCh: make(chan turnReturn, 1)}
	select {
	case d.JobQueue <- Job{Type: Turn, TurnTask: task}:
	default:
		return nil, ErrDispatcherBusy
	}
	if req.Context == nil {
		ret := <-task.resultCh
		return ret.result, ret.err
	}
	select {
	case ret := <-task.resultCh:
		return ret.result, ret.err
	case <-req.Context.Done():
		return nil, req.Context.Err()
	}
}

// GetTranscript serves reads through the manager's cache layers.
func (d *Dispatcher) GetTranscript(ctx context.Context, userID, inquiryID int64) (*models.Inquiry, []*models.Message, error) {
	return d.Manager.GetTranscript(ctx, userID, inquiryID)
}

// Invalidate drops cached state for one inquiry.
func (d *Dispatcher) Invalidate(userID, inquiryID int64) {
	d.Manager.Invalidate(userID, inquiryID)
}

// InvalidateUser drops cached state for all of a user's inquiries.
func (d *Dispatcher) InvalidateUser(userID int64) {
	d.Manager.InvalidateUser(userID)
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of user in the front of LRU queue
		if !d.dispatchOne() {
			job := <-d.JobQueue // force congestion
			d.enqueueJob(job)
			continue
		}
		// if we have a new job, enqueue it and its caller user
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.userID()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueued, skip
		return
	}
	// new user, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne get first user in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	for elem != nil {
		userID := elem.Value.(int64)
		q := d.queues[userID]
		// get job from the first user
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		if len(q.jobs) == 0 {
			// user only has one job, it'll be handled, user quits the queue
			q.enqueued = false
			d.ready.Remove(elem)
			delete(d.positions, userID)
		} else {
			// get to the back of queue
			d.ready.MoveToBack(elem)
		}
		d.mu.Unlock()

		workerChan := d.pool.acquire()
		workerID := d.pool.workerID(workerChan)
		traceTurn("assign turn for user %d to worker-%d", userID, workerID)
		workerChan <- job
		return true
	}
	d.mu.Unlock()
	return false
}

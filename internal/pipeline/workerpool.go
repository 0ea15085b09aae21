package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/mediarelay/botcore/internal/logging"
)

const (
	scaleCheckInterval = time.Second
	growQueueThreshold = 5
	growSustainedFor   = 5 * time.Second
	shrinkIdleFor      = 30 * time.Second
	workerPollBackoff  = 200 * time.Millisecond
)

// workFn is run by each worker goroutine in a loop; it returns false when
// there was no work available (so the caller can back off briefly).
type workFn func(ctx context.Context) (didWork bool)

// workerPool is a simple [min,max]-bounded auto-scaling pool of
// goroutines, grounded on the teacher's transfer.Queue task-registry
// locking style but generalized into a live scale controller the
// teacher's CLI-oriented queue never needed.
type workerPool struct {
	log  *logging.Logger
	name string
	min  int
	max  int
	work workFn

	mu               sync.Mutex
	active           int
	over             time.Time // when queue depth first exceeded threshold while below max
	idleSince        map[int]time.Time
	nextID           int
	cancelByID       map[int]context.CancelFunc
	wake             chan struct{}
	queueDepthReader func() int
}

func newWorkerPool(log *logging.Logger, name string, min, max int, work workFn) *workerPool {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &workerPool{
		log:        log,
		name:       name,
		min:        min,
		max:        max,
		work:       work,
		idleSince:  make(map[int]time.Time),
		cancelByID: make(map[int]context.CancelFunc),
		wake:       make(chan struct{}, 1),
	}
}

// notify wakes the pool's scale controller promptly after new work
// arrives, rather than waiting for the next poll tick.
func (p *workerPool) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run starts the pool at its minimum size and drives the autoscale loop
// until ctx is cancelled.
func (p *workerPool) run(ctx context.Context, depthFn ...func() int) {
	if len(depthFn) > 0 {
		p.queueDepthReader = depthFn[0]
	}
	for i := 0; i < p.min; i++ {
		p.spawnWorker(ctx)
	}

	ticker := time.NewTicker(scaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.maybeScale(ctx)
		case <-ticker.C:
			p.maybeScale(ctx)
		}
	}
}

func (p *workerPool) maybeScale(ctx context.Context) {
	depth := 0
	if p.queueDepthReader != nil {
		depth = p.queueDepthReader()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if depth > growQueueThreshold && p.active < p.max {
		if p.over.IsZero() {
			p.over = time.Now()
		} else if time.Since(p.over) > growSustainedFor {
			p.spawnWorkerLocked(ctx)
			p.over = time.Time{}
		}
	} else {
		p.over = time.Time{}
	}

	for id, idleSince := range p.idleSince {
		if p.active <= p.min {
			break
		}
		if time.Since(idleSince) > shrinkIdleFor {
			if cancel, ok := p.cancelByID[id]; ok {
				cancel()
				delete(p.cancelByID, id)
				delete(p.idleSince, id)
				p.active--
				p.log.Info().Str("pool", p.name).Int("workerId", id).Msg("pipeline: shrinking idle worker")
			}
		}
	}
}

func (p *workerPool) spawnWorker(ctx context.Context) {
	p.mu.Lock()
	p.spawnWorkerLocked(ctx)
	p.mu.Unlock()
}

func (p *workerPool) spawnWorkerLocked(ctx context.Context) {
	id := p.nextID
	p.nextID++
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancelByID[id] = cancel
	p.active++
	p.idleSince[id] = time.Now()

	go p.workerLoop(workerCtx, id)
}

func (p *workerPool) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		didWork := p.work(ctx)

		p.mu.Lock()
		if didWork {
			p.idleSince[id] = time.Now()
		}
		p.mu.Unlock()

		if !didWork {
			select {
			case <-ctx.Done():
				return
			case <-time.After(workerPollBackoff):
			}
		}
	}
}

// ActiveWorkers reports the current goroutine count, for tests/metrics.
func (p *workerPool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

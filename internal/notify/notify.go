// Package notify fans store events out to webhooks and external brokers.
// Delivery is decoupled from the write path: webhook posts run on a worker
// pool with retry, broker publishes are fire-and-forget with logged errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanyexieai/sevino/internal/objectstore"
)

const (
	queueSize      = 256
	requestTimeout = 10 * time.Second
	maxRetries     = 3
)

// Backend delivers event payloads to an external system.
type Backend interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

type deliveryJob struct {
	endpoint   string
	payload    []byte
	retryCount int
}

// Dispatcher delivers every event to every configured webhook and backend.
type Dispatcher struct {
	log      *zap.SugaredLogger
	client   *http.Client
	webhooks []string
	workerCh chan deliveryJob
	wg       sync.WaitGroup
	workers  int
	backoff  []time.Duration

	mu       sync.Mutex
	backends []Backend
}

func NewDispatcher(log *zap.SugaredLogger, workers int, webhooks []string) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		log:      log,
		client:   &http.Client{Timeout: requestTimeout},
		webhooks: webhooks,
		workerCh: make(chan deliveryJob, queueSize),
		workers:  workers,
		backoff:  []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-d.workerCh:
					if !ok {
						return
					}
					d.deliver(job)
				}
			}
		}()
	}
}

// AddBackend registers a delivery backend.
func (d *Dispatcher) AddBackend(b Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends = append(d.backends, b)
	d.log.Infow("notification backend registered", "backend", b.Name())
}

func (d *Dispatcher) Stop() {
	close(d.workerCh)
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.backends {
		b.Close()
	}
}

// Dispatch marshals the event once and hands it to every backend and
// webhook. Safe to install as the store's event callback.
func (d *Dispatcher) Dispatch(e objectstore.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		d.log.Errorw("notify marshal event", "error", err)
		return
	}

	d.mu.Lock()
	backends := make([]Backend, len(d.backends))
	copy(backends, d.backends)
	d.mu.Unlock()
	for _, b := range backends {
		if err := b.Publish(context.Background(), payload); err != nil {
			d.log.Errorw("notify backend publish", "backend", b.Name(), "error", err)
		}
	}

	for _, url := range d.webhooks {
		job := deliveryJob{endpoint: url, payload: payload}
		// non-blocking send, drop when the queue is full
		select {
		case d.workerCh <- job:
		default:
			d.log.Warnw("notify queue full, dropping event", "event", e.Type, "bucket", e.Bucket, "key", e.Key)
		}
	}
}

func (d *Dispatcher) deliver(job deliveryJob) {
	resp, err := d.client.Post(job.endpoint, "application/json", bytes.NewReader(job.payload))
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return
		}
		err = &httpError{statusCode: resp.StatusCode}
	}

	if job.retryCount < maxRetries-1 {
		backoffIdx := job.retryCount
		if backoffIdx >= len(d.backoff) {
			backoffIdx = len(d.backoff) - 1
		}
		time.Sleep(d.backoff[backoffIdx])

		job.retryCount++
		select {
		case d.workerCh <- job:
		default:
			d.log.Warnw("notify queue full on retry, dropping webhook", "endpoint", job.endpoint)
		}
	} else {
		d.log.Errorw("notify webhook failed after retries", "retries", maxRetries, "endpoint", job.endpoint, "error", err)
	}
}

type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return "webhook returned non-success status"
}

package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/common/metrics"
	"hostintel-bot/internal/dispatcher"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueClosed = errors.New("update queue closed")
	// ErrUserBusy means the user's buffer was full and the update was dropped.
	ErrUserBusy = errors.New("user update buffer full")
)

// Handler produces the replies for one update.
type Handler interface {
	Handle(ctx context.Context, u dispatcher.Update) []dispatcher.OutboundMessage
}

// Sender delivers replies.
type Sender interface {
	SendMessage(ctx context.Context, msg dispatcher.OutboundMessage) error
	AnswerCallbackQuery(ctx context.Context, id string) error
}

type QueueConfig struct {
	Size        int           // per-user buffer
	IdleTimeout time.Duration // a worker with nothing to do exits after this
	JobTimeout  time.Duration
}

type userWorker struct {
	jobs    chan inbound
	pending int
}

// Queue runs one FIFO worker per user so a user's updates are handled in
// receipt order while different users proceed concurrently.
type Queue struct {
	config  QueueConfig
	handler Handler
	sender  Sender
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	workers map[int64]*userWorker
	closed  bool
}

func NewQueue(cfg QueueConfig, handler Handler, sender Sender, log logger.Logger) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Queue{
		config:  cfg,
		handler: handler,
		sender:  sender,
		logger:  log.With(map[string]interface{}{"component": "queue"}),
		ctx:     gctx,
		cancel:  cancel,
		group:   group,
		workers: make(map[int64]*userWorker),
	}
}

// Enqueue hands an update to its user's worker without blocking. When that
// worker's buffer is full the update is dropped with ErrUserBusy so one
// busy user never holds up the others.
func (q *Queue) Enqueue(ctx context.Context, in inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	userID := in.update.UserID
	w, ok := q.workers[userID]
	if !ok {
		w = &userWorker{jobs: make(chan inbound, q.config.Size)}
		q.workers[userID] = w
		q.group.Go(func() error {
			q.work(userID, w)
			return nil
		})
	}

	select {
	case w.jobs <- in:
		w.pending++
		return nil
	default:
	}

	metrics.QueueOverflow.Inc()
	q.logger.Warn("user queue full, update dropped", map[string]interface{}{
		"userId":   userID,
		"updateId": in.update.ID,
	})
	if in.callbackID != "" {
		// stop the client spinner even though the button is ignored
		q.group.Go(func() error {
			q.answer(in)
			return nil
		})
	}
	return ErrUserBusy
}

func (q *Queue) done(w *userWorker) {
	q.mu.Lock()
	w.pending--
	q.mu.Unlock()
}

// Workers reports how many user workers are running.
func (q *Queue) Workers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

// Close stops accepting updates, abandons queued ones and waits for
// in-flight work to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	return q.group.Wait()
}

func (q *Queue) work(userID int64, w *userWorker) {
	idle := time.NewTimer(q.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case in := <-w.jobs:
			q.process(in)
			q.done(w)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(q.config.IdleTimeout)

		case <-idle.C:
			q.mu.Lock()
			if w.pending == 0 {
				delete(q.workers, userID)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			idle.Reset(q.config.IdleTimeout)

		case <-q.ctx.Done():
			q.mu.Lock()
			delete(q.workers, userID)
			q.mu.Unlock()
			return
		}
	}
}

// process runs one update to completion. Shutdown does not interrupt a
// running update.
func (q *Queue) process(in inbound) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), q.config.JobTimeout)
	defer cancel()

	if in.callbackID != "" {
		q.answerWith(ctx, in)
	}

	for _, msg := range q.handler.Handle(ctx, in.update) {
		if err := q.sender.SendMessage(ctx, msg); err != nil {
			metrics.OutboundFailures.WithLabelValues("sendMessage").Inc()
			q.logger.Error("send message failed", map[string]interface{}{
				"updateId": in.update.ID,
				"chatId":   msg.ChatID,
				"error":    err.Error(),
			})
		}
	}
}

func (q *Queue) answer(in inbound) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), q.config.JobTimeout)
	defer cancel()
	q.answerWith(ctx, in)
}

func (q *Queue) answerWith(ctx context.Context, in inbound) {
	if err := q.sender.AnswerCallbackQuery(ctx, in.callbackID); err != nil {
		metrics.OutboundFailures.WithLabelValues("answerCallbackQuery").Inc()
		q.logger.Warn("answer callback failed", map[string]interface{}{
			"updateId": in.update.ID,
			"error":    err.Error(),
		})
	}
}

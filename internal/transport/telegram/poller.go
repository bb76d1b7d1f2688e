package telegram

import (
	"context"
	"errors"
	"time"

	"hostintel-bot/internal/common/logger"
)

// Updater is the polling half of the Bot API.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

// Poller feeds long-polled updates into a Queue.
type Poller struct {
	api     Updater
	queue   *Queue
	timeout int
	backoff time.Duration
	logger  logger.Logger
}

// NewPoller creates a poller; timeout is the long-poll duration in seconds.
func NewPoller(api Updater, queue *Queue, timeout int, log logger.Logger) *Poller {
	return &Poller{
		api:     api,
		queue:   queue,
		timeout: timeout,
		backoff: time.Second,
		logger:  log.With(map[string]interface{}{"component": "poller"}),
	}
}

// Run polls until ctx is cancelled. The offset only moves past updates that
// were handed to the queue.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	p.logger.Info("polling for updates", map[string]interface{}{"timeoutSec": p.timeout})

	for {
		updates, err := p.api.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("polling stopped", nil)
				return nil
			}
			p.logger.Warn("get updates failed", map[string]interface{}{"error": err.Error()})
			if !p.sleep(ctx, retryDelay(err, p.backoff)) {
				return nil
			}
			continue
		}

		for _, u := range updates {
			if in, ok := convert(u); ok {
				err := p.queue.Enqueue(ctx, in)
				switch {
				case err == nil, errors.Is(err, ErrUserBusy):
				case errors.Is(err, ErrQueueClosed) || ctx.Err() != nil:
					return nil
				default:
					return err
				}
			}
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryDelay honors the server's retry_after hint on 429.
func retryDelay(err error, fallback time.Duration) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return fallback
}

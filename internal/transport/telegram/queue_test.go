package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/dispatcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Test Helper Functions
// ==========================

// echoHandler replies with the payload and records the order per user.
type echoHandler struct {
	mu     sync.Mutex
	seen   map[int64][]string
	active map[int64]int
	peak   int
	delay  time.Duration
}

func newEchoHandler(delay time.Duration) *echoHandler {
	return &echoHandler{seen: map[int64][]string{}, active: map[int64]int{}, delay: delay}
}

func (h *echoHandler) Handle(ctx context.Context, u dispatcher.Update) []dispatcher.OutboundMessage {
	h.mu.Lock()
	h.active[u.UserID]++
	if h.active[u.UserID] > h.peak {
		h.peak = h.active[u.UserID]
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.active[u.UserID]--
	h.seen[u.UserID] = append(h.seen[u.UserID], u.Payload)
	h.mu.Unlock()
	return []dispatcher.OutboundMessage{{ChatID: u.ChatID, Text: u.Payload}}
}

func (h *echoHandler) payloads(userID int64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[userID]...)
}

func (h *echoHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.seen {
		n += len(s)
	}
	return n
}

type recordingSender struct {
	mu       sync.Mutex
	events   []string
	failSend bool
}

func (s *recordingSender) SendMessage(ctx context.Context, msg dispatcher.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "send:"+msg.Text)
	if s.failSend {
		return errors.New("blocked by user")
	}
	return nil
}

func (s *recordingSender) AnswerCallbackQuery(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "answer:"+id)
	return nil
}

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func createTestQueue(t *testing.T, h Handler, s Sender, cfg QueueConfig) *Queue {
	q := NewQueue(cfg, h, s, logger.NewTestLogger(t))
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func textUpdate(id, userID int64, text string) inbound {
	return inbound{update: dispatcher.Update{ID: id, UserID: userID, ChatID: userID, Kind: dispatcher.KindText, Payload: text}}
}

// ==========================
// Queue
// ==========================

func TestQueue_PerUserOrderAndSerialization(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newEchoHandler(2 * time.Millisecond)
	q := NewQueue(QueueConfig{Size: 8}, h, &recordingSender{}, logger.NewTestLogger(t))

	ctx := context.Background()
	want := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, p := range want {
		require.NoError(t, q.Enqueue(ctx, textUpdate(int64(i+1), 1, p)))
		require.NoError(t, q.Enqueue(ctx, textUpdate(int64(100+i), 2, p)))
	}

	assert.Eventually(t, func() bool { return h.total() == 2*len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.payloads(1))
	assert.Equal(t, want, h.payloads(2))
	assert.Equal(t, 1, h.peak)

	require.NoError(t, q.Close())
	assert.Equal(t, 0, q.Workers())
}

func TestQueue_AnswersCallbackBeforeReplying(t *testing.T) {
	s := &recordingSender{}
	q := createTestQueue(t, newEchoHandler(0), s, QueueConfig{})

	in := inbound{
		update:     dispatcher.Update{ID: 1, UserID: 5, ChatID: 5, Kind: dispatcher.KindButton, Payload: "menu:main"},
		callbackID: "cb-1",
	}
	require.NoError(t, q.Enqueue(context.Background(), in))

	assert.Eventually(t, func() bool { return len(s.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"answer:cb-1", "send:menu:main"}, s.snapshot())
}

func TestQueue_SendFailureDoesNotStopWorker(t *testing.T) {
	s := &recordingSender{failSend: true}
	h := newEchoHandler(0)
	q := createTestQueue(t, h, s, QueueConfig{})

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, textUpdate(1, 3, "one")))
	require.NoError(t, q.Enqueue(ctx, textUpdate(2, 3, "two")))

	assert.Eventually(t, func() bool { return h.total() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(s.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueue_IdleWorkerExits(t *testing.T) {
	h := newEchoHandler(0)
	q := createTestQueue(t, h, &recordingSender{}, QueueConfig{IdleTimeout: 20 * time.Millisecond})

	require.NoError(t, q.Enqueue(context.Background(), textUpdate(1, 9, "x")))
	assert.Eventually(t, func() bool { return h.total() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return q.Workers() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Enqueue(context.Background(), textUpdate(2, 9, "y")))
	assert.Eventually(t, func() bool { return h.total() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"x", "y"}, h.payloads(9))
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue(QueueConfig{}, newEchoHandler(0), &recordingSender{}, logger.NewTestLogger(t))
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), textUpdate(1, 1, "late"))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_EnqueueHonorsCancelledContext(t *testing.T) {
	q := createTestQueue(t, newEchoHandler(0), &recordingSender{}, QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, textUpdate(1, 4, "late")), context.Canceled)
}

func TestQueue_FullUserBufferDropsWithoutBlockingOthers(t *testing.T) {
	h := &gatedHandler{started: make(chan struct{}, 1), release: make(chan struct{}), blockUser: 4, inner: newEchoHandler(0)}
	s := &recordingSender{}
	q := createTestQueue(t, h, s, QueueConfig{Size: 1})
	defer h.open()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, textUpdate(1, 4, "running")))
	<-h.started
	require.NoError(t, q.Enqueue(ctx, textUpdate(2, 4, "buffered")))

	overflow := textUpdate(3, 4, "overflow")
	overflow.callbackID = "cb-3"
	start := time.Now()
	assert.ErrorIs(t, q.Enqueue(ctx, overflow), ErrUserBusy)
	require.NoError(t, q.Enqueue(ctx, textUpdate(4, 5, "other")))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// another user proceeds while user 4 is still blocked
	assert.Eventually(t, func() bool { return len(h.inner.payloads(5)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, e := range s.snapshot() {
			if e == "answer:cb-3" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	h.open()
	assert.Eventually(t, func() bool { return len(h.inner.payloads(4)) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"running", "buffered"}, h.inner.payloads(4))
}

// gatedHandler holds blockUser's updates until released; other users pass
// straight through to inner.
type gatedHandler struct {
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
	blockUser int64
	inner     *echoHandler
}

func (h *gatedHandler) Handle(ctx context.Context, u dispatcher.Update) []dispatcher.OutboundMessage {
	if u.UserID == h.blockUser {
		select {
		case h.started <- struct{}{}:
		default:
		}
		<-h.release
	}
	return h.inner.Handle(ctx, u)
}

func (h *gatedHandler) open() {
	h.once.Do(func() { close(h.release) })
}

// ==========================
// Poller
// ==========================

type scriptedUpdater struct {
	mu      sync.Mutex
	offsets []int64
	batches [][]Update
	errs    []error
	gates   []chan struct{} // call i waits on gates[i] when set
}

func (s *scriptedUpdater) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	call := len(s.offsets) - 1
	var batch []Update
	var err error
	if call < len(s.errs) {
		err = s.errs[call]
	}
	if call < len(s.batches) {
		batch = s.batches[call]
	}
	var gate chan struct{}
	if call < len(s.gates) {
		gate = s.gates[call]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err == nil && batch == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return batch, err
}

func (s *scriptedUpdater) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

func message(id, userID int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		From: &User{ID: userID},
		Chat: &Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func TestPoller_AdvancesOffsetAndQueues(t *testing.T) {
	h := newEchoHandler(0)
	q := createTestQueue(t, h, &recordingSender{}, QueueConfig{})

	api := &scriptedUpdater{
		errs: []error{nil, errors.New("bad gateway"), nil},
		batches: [][]Update{
			{message(40, 1, "/start"), {UpdateID: 41}},
			nil,
			{message(42, 1, "nginx")},
		},
	}
	p := NewPoller(api, q, 30, logger.NewTestLogger(t))
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return h.total() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/start", "nginx"}, h.payloads(1))
	assert.Eventually(t, func() bool { return len(api.seenOffsets()) >= 4 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	offsets := api.seenOffsets()
	require.GreaterOrEqual(t, len(offsets), 4)
	assert.Equal(t, []int64{0, 42, 42, 43}, offsets[:4])
}

func TestPoller_BusyUserDoesNotStallOthers(t *testing.T) {
	h := &gatedHandler{started: make(chan struct{}, 1), release: make(chan struct{}), blockUser: 1, inner: newEchoHandler(0)}
	q := createTestQueue(t, h, &recordingSender{}, QueueConfig{Size: 1})
	defer h.open()

	secondBatch := make(chan struct{})
	api := &scriptedUpdater{
		gates: []chan struct{}{nil, secondBatch},
		batches: [][]Update{
			{message(10, 1, "slow")},
			{message(11, 1, "queued"), message(12, 1, "dropped"), message(13, 2, "fast")},
		},
	}
	p := NewPoller(api, q, 30, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-h.started
	close(secondBatch)
	assert.Eventually(t, func() bool { return len(h.inner.payloads(2)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(api.seenOffsets()) >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{0, 11, 14}, api.seenOffsets()[:3])

	h.open()
	assert.Eventually(t, func() bool { return len(h.inner.payloads(1)) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"slow", "queued"}, h.inner.payloads(1))
}

// ==========================
// Webhook
// ==========================

func TestWebhookHandler(t *testing.T) {
	body := `{"update_id":77,"message":{"message_id":1,"from":{"id":3,"is_bot":false},"chat":{"id":3,"type":"private"},"text":"/help"}}`

	tests := []struct {
		name   string
		method string
		secret string
		body   string
		status int
		queued bool
	}{
		{name: "accepted", method: http.MethodPost, secret: "s3cret", body: body, status: http.StatusOK, queued: true},
		{name: "wrong secret", method: http.MethodPost, secret: "nope", body: body, status: http.StatusForbidden},
		{name: "missing secret", method: http.MethodPost, body: body, status: http.StatusForbidden},
		{name: "not post", method: http.MethodGet, secret: "s3cret", status: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, secret: "s3cret", body: "{", status: http.StatusBadRequest},
		{name: "ignored update", method: http.MethodPost, secret: "s3cret", body: `{"update_id":78}`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEchoHandler(0)
			q := createTestQueue(t, h, &recordingSender{}, QueueConfig{})
			hook := NewWebhookHandler("s3cret", q, logger.NewTestLogger(t))

			req := httptest.NewRequest(tt.method, "/webhook", bytes.NewBufferString(tt.body))
			if tt.secret != "" {
				req.Header.Set(secretHeader, tt.secret)
			}
			rec := httptest.NewRecorder()
			hook.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.queued {
				assert.Eventually(t, func() bool { return h.total() == 1 }, time.Second, 5*time.Millisecond)
				assert.Equal(t, []string{"/help"}, h.payloads(3))
			} else {
				assert.Never(t, func() bool { return h.total() > 0 }, 30*time.Millisecond, 5*time.Millisecond)
			}
		})
	}
}

func TestWebhookHandler_ClosedQueueAsksForRedelivery(t *testing.T) {
	q := NewQueue(QueueConfig{}, newEchoHandler(0), &recordingSender{}, logger.NewTestLogger(t))
	require.NoError(t, q.Close())
	hook := NewWebhookHandler("", q, logger.NewTestLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		bytes.NewBufferString(`{"update_id":1,"message":{"from":{"id":3},"chat":{"id":3},"text":"hi"}}`))
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookHandler_FullUserQueueIsAcknowledged(t *testing.T) {
	h := &gatedHandler{started: make(chan struct{}, 1), release: make(chan struct{}), blockUser: 3, inner: newEchoHandler(0)}
	q := createTestQueue(t, h, &recordingSender{}, QueueConfig{Size: 1})
	defer h.open()
	hook := NewWebhookHandler("", q, logger.NewTestLogger(t))

	post := func(id int) int {
		body := fmt.Sprintf(`{"update_id":%d,"message":{"from":{"id":3},"chat":{"id":3},"text":"hi"}}`, id)
		rec := httptest.NewRecorder()
		hook.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body)))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post(1))
	<-h.started
	assert.Equal(t, http.StatusOK, post(2))
	assert.Equal(t, http.StatusOK, post(3), "dropped update must not be redelivered")
}

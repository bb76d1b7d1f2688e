package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"hostintel-bot/internal/access"
	"hostintel-bot/internal/catalog"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/models"
	"hostintel-bot/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	testUser int64 = 1001
	testChat int64 = 5005
)

type stubAPI struct {
	mu      sync.Mutex
	queries []string
	scans   []string
	matches int
}

func (s *stubAPI) Search(ctx context.Context, query, facets string) (*models.QueryResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	matches := make([]models.Match, s.matches)
	for i := range matches {
		matches[i] = models.Match{IP: fmt.Sprintf("192.0.2.%d", i+1), Port: 27017}
	}
	return &models.QueryResult{Query: query, Total: s.matches, Matches: matches}, nil
}

func (s *stubAPI) Count(ctx context.Context, query, facets string) (*models.CountResult, error) {
	return &models.CountResult{Query: query, Total: 99}, nil
}

func (s *stubAPI) Host(ctx context.Context, ip string) (*models.HostInfo, error) {
	return &models.HostInfo{IP: ip, Org: "Example Org"}, nil
}

func (s *stubAPI) ResolveDNS(ctx context.Context, hostnames []string) ([]models.HostAddress, error) {
	return []models.HostAddress{{Hostname: hostnames[0], Address: "192.0.2.1"}}, nil
}

func (s *stubAPI) ReverseDNS(ctx context.Context, ips []string) ([]models.ReverseEntry, error) {
	return []models.ReverseEntry{{IP: ips[0], Hostnames: []string{"host.example"}}}, nil
}

func (s *stubAPI) Domain(ctx context.Context, domain string) (*models.DomainInfo, error) {
	return &models.DomainInfo{Domain: domain}, nil
}

func (s *stubAPI) Exploits(ctx context.Context, query string) (*models.ExploitResult, error) {
	return &models.ExploitResult{Query: query}, nil
}

func (s *stubAPI) HoneyScore(ctx context.Context, ip string) (*models.HoneyScore, error) {
	return &models.HoneyScore{IP: ip, Score: 0.9}, nil
}

func (s *stubAPI) SubmitScan(ctx context.Context, target string) (*models.ScanSubmission, error) {
	s.mu.Lock()
	s.scans = append(s.scans, target)
	s.mu.Unlock()
	return &models.ScanSubmission{ID: "SCAN42", Count: 1, CreditsLeft: 9}, nil
}

func (s *stubAPI) ScanStatus(ctx context.Context, id string) (*models.ScanStatus, error) {
	return &models.ScanStatus{ID: id, Status: "DONE"}, nil
}

func (s *stubAPI) AccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	return &models.AccountInfo{Plan: "dev", QueryCredits: 100}, nil
}

// countingEngine records whether the dispatcher reached the engine.
type countingEngine struct {
	inner Engine
	calls int
}

func (c *countingEngine) Apply(ctx context.Context, userID int64, action session.Action) *session.Outcome {
	c.calls++
	return c.inner.Apply(ctx, userID, action)
}

type panickingEngine struct{}

func (panickingEngine) Apply(context.Context, int64, session.Action) *session.Outcome {
	panic("boom")
}

type fixture struct {
	dispatcher *Dispatcher
	engine     *countingEngine
	api        *stubAPI
	nextID     int64
}

func createTestDispatcher(t *testing.T, allowed []int64) *fixture {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	api := &stubAPI{matches: 12}
	cfg := &session.Config{PageSize: 5, MaxPages: 10, DefaultFacets: "country:5", CountFacets: "org:10"}
	eng := &countingEngine{inner: session.NewEngine(cfg, cat, api, session.NewMemoryStore(time.Hour, time.Minute), log)}
	guard := access.NewGuard(allowed, log)

	return &fixture{
		dispatcher: NewDispatcher(guard, eng, cat, NewMemoryDeduper(time.Minute), log),
		engine:     eng,
		api:        api,
	}
}

func (f *fixture) send(kind Kind, payload string) []OutboundMessage {
	f.nextID++
	return f.dispatcher.Handle(context.Background(), Update{
		ID:      f.nextID,
		UserID:  testUser,
		ChatID:  testChat,
		Kind:    kind,
		Payload: payload,
	})
}

func last(t *testing.T, msgs []OutboundMessage) OutboundMessage {
	t.Helper()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func payloads(kb [][]Button) []string {
	var out []string
	for _, r := range kb {
		for _, b := range r {
			out = append(out, b.Data)
		}
	}
	return out
}

func buttonText(kb [][]Button, data string) string {
	for _, r := range kb {
		for _, b := range r {
			if b.Data == data {
				return b.Text
			}
		}
	}
	return ""
}

// ==========================
// Access & de-duplication
// ==========================

func TestHandle_UnauthorizedNeverTouchesSession(t *testing.T) {
	f := createTestDispatcher(t, []int64{42})

	msgs := f.send(KindCommand, "/templates")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Access denied")
	assert.Contains(t, msgs[0].Text, "1001")
	assert.Equal(t, testChat, msgs[0].ChatID)
	assert.Zero(t, f.engine.calls)
}

func TestHandle_OpenAccessWhenListEmpty(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msgs := f.send(KindCommand, "/start")
	assert.Contains(t, last(t, msgs).Text, "Welcome")
	assert.Equal(t, 1, f.engine.calls)
}

func TestHandle_DuplicateUpdateDropped(t *testing.T) {
	f := createTestDispatcher(t, []int64{testUser})
	u := Update{ID: 77, UserID: testUser, ChatID: testChat, Kind: KindText, Payload: "port:22"}

	first := f.dispatcher.Handle(context.Background(), u)
	second := f.dispatcher.Handle(context.Background(), u)

	assert.NotEmpty(t, first)
	assert.Nil(t, second)
	assert.Len(t, f.api.queries, 1)
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	d := NewDispatcher(access.NewGuard(nil, nil), panickingEngine{}, cat, nil, logger.NewTestLogger(t))

	msgs := d.Handle(context.Background(), Update{ID: 1, UserID: 1, ChatID: 2, Kind: KindCommand, Payload: "/start"})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "/start")
	assert.Equal(t, int64(2), msgs[0].ChatID)
}

// ==========================
// Menus and the template wizard
// ==========================

func TestHandle_MainMenu(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindCommand, "/start"))
	assert.Len(t, msg.Keyboard, 5)
	assert.Contains(t, payloads(msg.Keyboard), payloadTemplates)
	assert.Contains(t, payloads(msg.Keyboard), payloadHelp)
}

func TestHandle_CategoryKeyboardSkipsEmpty(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindCommand, "/templates"))
	data := payloads(msg.Keyboard)
	assert.Contains(t, data, "cat:network")
	assert.NotContains(t, data, "cat:custom")
	assert.Equal(t, payloadMain, data[len(data)-1])
	assert.Equal(t, "🌐 Network & Infrastructure (7)", buttonText(msg.Keyboard, "cat:network"))
	for _, r := range msg.Keyboard {
		assert.LessOrEqual(t, len(r), 2)
	}
}

func TestHandle_WizardByButtons(t *testing.T) {
	f := createTestDispatcher(t, nil)

	f.send(KindCommand, "/templates")

	msg := last(t, f.send(KindButton, "cat:database"))
	assert.Equal(t, "tmpl:db_mongodb", payloads(msg.Keyboard)[0])

	msg = last(t, f.send(KindButton, "tmpl:db_mongodb"))
	assert.Contains(t, msg.Text, "Exposed MongoDB")
	assert.Equal(t, []string{"use:db_mongodb", "example:db_mongodb", "cat:database"}, payloads(msg.Keyboard))

	msg = last(t, f.send(KindButton, "use:db_mongodb"))
	assert.Contains(t, msg.Text, "waiting for input")
	assert.Equal(t, []string{"default:country", payloadCancel}, payloads(msg.Keyboard))

	msg = last(t, f.send(KindButton, "default:country"))
	assert.Contains(t, msg.Text, "Ready to run")
	assert.Contains(t, msg.Text, `product:"MongoDB" country:"ID"`)
	assert.Equal(t, []string{payloadConfirm, "edit:0", payloadCancel}, payloads(msg.Keyboard))

	msgs := f.send(KindButton, payloadConfirm)
	msg = last(t, msgs)
	assert.Contains(t, msgs[0].Text, "Search Results")
	assert.Equal(t, []string{"noop", payloadNext, payloadMain}, payloads(msg.Keyboard))
	assert.Equal(t, "📄 1/3", buttonText(msg.Keyboard, payloadNoop))
	assert.Equal(t, []string{`product:"MongoDB" country:"ID"`}, f.api.queries)

	msg = last(t, f.send(KindButton, payloadNext))
	assert.Equal(t, []string{payloadPrev, "noop", payloadNext, payloadMain}, payloads(msg.Keyboard))
	assert.Equal(t, "📄 2/3", buttonText(msg.Keyboard, payloadNoop))
}

func TestHandle_ParamRejectedShowsErrorAndPrompt(t *testing.T) {
	f := createTestDispatcher(t, nil)

	f.send(KindCommand, "/templates")
	f.send(KindButton, "cat:database")
	f.send(KindButton, "use:db_mongodb")

	msgs := f.send(KindText, "Indonesia")
	msg := last(t, msgs)
	assert.Contains(t, msg.Text, "Invalid value for country")
	assert.Contains(t, msg.Text, "waiting for input")
	assert.Empty(t, f.api.queries)
}

func TestHandle_ExampleButtonRunsExampleQuery(t *testing.T) {
	f := createTestDispatcher(t, nil)

	f.send(KindButton, "example:db_mongodb")
	assert.Equal(t, []string{`product:"MongoDB" country:"ID"`}, f.api.queries)
}

func TestHandle_VulnMenuOpensVulnTemplates(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindButton, payloadVuln))
	assert.Contains(t, msg.Text, "Vulnerability Search")
	assert.Contains(t, payloads(msg.Keyboard), "tmpl:vuln_cve")
}

// ==========================
// Direct commands and free text
// ==========================

func TestHandle_FreeTextIsRawSearch(t *testing.T) {
	f := createTestDispatcher(t, nil)

	f.send(KindText, `product:"nginx" country:"ID"`)
	assert.Equal(t, []string{`product:"nginx" country:"ID"`}, f.api.queries)
}

func TestHandle_CommandWithoutArgumentPrompts(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindButton, payloadHost))
	assert.Contains(t, msg.Text, "Host Lookup")
	assert.Equal(t, []string{payloadCancel}, payloads(msg.Keyboard))

	msg = last(t, f.send(KindText, "8.8.8.8"))
	assert.Contains(t, msg.Text, "Example Org")
	assert.Equal(t, []string{payloadMain}, payloads(msg.Keyboard))
}

func TestHandle_ScanNeedsConfirmation(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindCommand, "/scan 198.51.100.7"))
	assert.Contains(t, msg.Text, "Confirm Scan")
	assert.Equal(t, []string{"doscan:198.51.100.7", payloadCancel}, payloads(msg.Keyboard))
	assert.Empty(t, f.api.scans)

	msg = last(t, f.send(KindButton, "doscan:198.51.100.7"))
	assert.Contains(t, msg.Text, "SCAN42")
	assert.Equal(t, []string{"198.51.100.7"}, f.api.scans)
}

func TestScanConfirmKeyboardRefusesOversizedTarget(t *testing.T) {
	kb, ok := scanConfirmKeyboard("2001:db8:1234:5678:9abc:def0:1234:5678/128")
	require.True(t, ok)
	assert.Equal(t, "doscan:2001:db8:1234:5678:9abc:def0:1234:5678/128", payloads(kb)[0])

	_, ok = scanConfirmKeyboard(strings.Repeat("1", maxCallbackData))
	assert.False(t, ok)
}

func TestParamKeyboardOffersSkipForOptional(t *testing.T) {
	kb := paramKeyboard(catalog.Param{Name: "org", Optional: true})
	assert.Equal(t, []string{prefixDefault + "org", payloadCancel}, payloads(kb))

	kb = paramKeyboard(catalog.Param{Name: "org"})
	assert.Equal(t, []string{payloadCancel}, payloads(kb))
}

func TestHandle_StatelessViews(t *testing.T) {
	f := createTestDispatcher(t, nil)

	assert.Contains(t, last(t, f.send(KindCommand, "/filters")).Text, "FILTER")
	assert.Equal(t, []string{payloadResolve, payloadReverse, payloadDomain, payloadMain},
		payloads(last(t, f.send(KindButton, payloadDNS)).Keyboard))
	assert.Nil(t, f.send(KindButton, payloadNoop))
	assert.Zero(t, f.engine.calls)
}

func TestHandle_UnknownInput(t *testing.T) {
	f := createTestDispatcher(t, nil)

	msg := last(t, f.send(KindCommand, "/frobnicate"))
	assert.Contains(t, msg.Text, "Unknown command")

	msg = last(t, f.send(KindButton, "zzz:1"))
	assert.Contains(t, msg.Text, "/start")
	assert.Equal(t, []string{payloadMain}, payloads(msg.Keyboard))
}

func TestHandle_CancelMidWizard(t *testing.T) {
	f := createTestDispatcher(t, nil)

	f.send(KindCommand, "/templates")
	f.send(KindButton, "cat:database")
	f.send(KindButton, "use:db_mongodb")

	msg := last(t, f.send(KindCommand, "/cancel"))
	assert.Contains(t, msg.Text, "Cancelled")

	// text is a raw search again once the wizard is gone
	f.send(KindText, "ID")
	assert.Equal(t, []string{"ID"}, f.api.queries)
}

// ==========================
// Parsing
// ==========================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want intent
	}{
		{"/start", intent{action: session.Home{}}},
		{"/T", intent{action: session.OpenCatalog{}}},
		{"/templates@HostIntelBot", intent{action: session.OpenCatalog{}}},
		{"/search@HostIntelBot  port:22  ", intent{action: session.RunCommand{Command: session.CmdSearch, Arg: "port:22"}}},
		{"/find mongo", intent{action: session.FindTemplates{Keyword: "mongo"}}},
		{"/scanstatus", intent{action: session.RunCommand{Command: session.CmdScanStatus}}},
		{"/dns\ngoogle.com", intent{action: session.RunCommand{Command: session.CmdDNS, Arg: "google.com"}}},
		{"/help", intent{view: viewHelp}},
		{"/nope", intent{view: viewUnknownCommand, arg: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.text))
		})
	}
}

func TestMenuCommandsAreRecognized(t *testing.T) {
	seen := map[string]bool{}
	for _, entry := range Menu() {
		assert.False(t, seen[entry.Command], "duplicate %s", entry.Command)
		seen[entry.Command] = true
		assert.NotEmpty(t, entry.Description)
		assert.NotEqual(t, viewUnknownCommand, parseCommand("/"+entry.Command).view, entry.Command)
	}
}

func TestParseButton(t *testing.T) {
	tests := []struct {
		data string
		want intent
	}{
		{"menu:main", intent{action: session.Home{}}},
		{"cat:iot", intent{action: session.SelectCategory{ID: "iot"}}},
		{"tmpl:iot_webcam", intent{view: viewTemplateDetail, arg: "iot_webcam"}},
		{"use:iot_webcam", intent{action: session.SelectTemplate{ID: "iot_webcam"}}},
		{"example:iot_webcam", intent{example: "iot_webcam"}},
		{"default:port", intent{action: session.UseDefault{Param: "port"}}},
		{"edit:2", intent{action: session.EditParam{Index: 2}}},
		{"edit:x", intent{view: viewUnknownButton, arg: "edit:x"}},
		{"doscan:10.0.0.0/24", intent{action: session.RunCommand{Command: session.CmdScan, Arg: "10.0.0.0/24", Confirmed: true}}},
		{"cat:", intent{view: viewUnknownButton, arg: "cat:"}},
		{"garbage", intent{view: viewUnknownButton, arg: "garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.want, parseButton(tt.data))
		})
	}
}

func TestKeyboardPayloadsFitCallbackLimit(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	for _, c := range cat.Categories() {
		for _, tpl := range cat.Templates(c.ID) {
			for _, kb := range [][][]Button{templateDetailKeyboard(tpl), confirmKeyboard(tpl, true)} {
				for _, data := range payloads(kb) {
					assert.LessOrEqual(t, len(data), maxCallbackData, data)
				}
			}
			for _, p := range tpl.Params {
				for _, data := range payloads(paramKeyboard(p)) {
					assert.LessOrEqual(t, len(data), maxCallbackData, data)
				}
			}
		}
	}

	long := fitPayload(prefixScan + strings.Repeat("é", 40))
	assert.LessOrEqual(t, len(long), maxCallbackData)
	assert.True(t, strings.HasPrefix(long, prefixScan))
}

func TestPackSplitsLongReplies(t *testing.T) {
	block := strings.Repeat("a", 3000)
	r := reply{blocks: []string{block, block, "short"}, keyboard: [][]Button{backToMain()}}

	msgs := r.messages(testChat, 4000)
	require.Len(t, msgs, 2)
	assert.Equal(t, block, msgs[0].Text)
	assert.Equal(t, block+"\n\nshort", msgs[1].Text)
	assert.Nil(t, msgs[0].Keyboard)
	assert.NotNil(t, msgs[1].Keyboard)
}

// ==========================
// De-duplication backends
// ==========================

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, 1)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, _ = d.Seen(ctx, 1)
	assert.True(t, seen)

	seen, _ = d.Seen(ctx, 2)
	assert.False(t, seen)
}

func TestRedisDeduper(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, 10)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, 10)
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, mr.Exists("bot:update:10"))
	mr.FastForward(2 * time.Minute)
	seen, err = d.Seen(ctx, 10)
	require.NoError(t, err)
	assert.False(t, seen, "window expired")
}

func TestRedisDeduper_ErrorFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSetNX("bot:update:5", 1, time.Minute).SetErr(errors.New("connection refused"))

	cat, err := catalog.Load()
	require.NoError(t, err)
	log := logger.NewTestLogger(t)
	api := &stubAPI{matches: 1}
	cfg := &session.Config{PageSize: 5, MaxPages: 10}
	eng := session.NewEngine(cfg, cat, api, session.NewMemoryStore(time.Hour, time.Minute), log)
	d := NewDispatcher(access.NewGuard(nil, nil), eng, cat, NewRedisDeduper(client, time.Minute), log)

	msgs := d.Handle(context.Background(), Update{ID: 5, UserID: 1, ChatID: 1, Kind: KindText, Payload: "port:22"})
	assert.NotEmpty(t, msgs, "dedup failure does not drop the update")
	assert.Len(t, api.queries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

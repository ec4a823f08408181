package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"sitecost/internal/auth"
	"sitecost/internal/core"
	"sitecost/internal/drive"
	"sitecost/internal/drive/memory"
	applog "sitecost/internal/log"
	"sitecost/internal/middleware/ratelimit"
	"sitecost/internal/services"
	"sitecost/internal/session"
	"sitecost/internal/settings"
	settingsmem "sitecost/internal/settings/memory"
	"sitecost/internal/state"
)

type stubGranter struct {
	mu  sync.Mutex
	err error
}

func (g *stubGranter) Grant(context.Context) (*oauth2.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
}

func (g *stubGranter) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type testEnv struct {
	srv        *Server
	ledger     *services.LedgerService
	settings   *settings.Settings
	files      *memory.Files
	granter    *stubGranter
	dispatcher *services.InlineDispatcher
	hub        *Hub
}

var testCreds = auth.Credentials{ClientID: "cid.apps.googleusercontent.com", APIKey: "key"}

func newTestEnv(t *testing.T, rl ratelimit.Config) *testEnv {
	t.Helper()
	env := &testEnv{
		files:    memory.New(),
		granter:  &stubGranter{},
		settings: settings.New(settingsmem.New()),
		hub:      NewHub(nil),
	}
	sess := session.New()
	remote := drive.NewAdapter(env.files, sess)
	env.dispatcher = services.NewInlineDispatcher(remote, env.hub)
	env.ledger = services.NewLedgerService(services.Deps{
		State:      state.NewSeeded(),
		Session:    sess,
		Remote:     remote,
		Tokens:     env.settings.Tokens(),
		Granter:    env.granter,
		Dispatcher: env.dispatcher,
		Notifier:   env.hub,
	})
	if err := env.ledger.Initialize(testCreds); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	env.srv = NewServer(Config{
		Addr:        ":0",
		RateLimit:   rl,
		Credentials: testCreds,
		Logger:      applog.New(applog.Config{Output: io.Discard}),
	}, env.ledger, env.settings, env.hub)

	ctx, cancel := context.WithCancel(context.Background())
	env.srv.Start(ctx)
	t.Cleanup(func() {
		env.dispatcher.Wait()
		cancel()
		_ = env.srv.Shutdown(context.Background())
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	if rec := e.do(t, http.MethodPost, "/api/drive/connect", nil); rec.Code != http.StatusOK {
		t.Fatalf("connect status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}

	ready := decode[map[string]any](t, env.do(t, http.MethodGet, "/readyz", nil))
	checks := ready["checks"].(map[string]any)
	if checks["drive"] != "disconnected" {
		t.Errorf("drive check = %v", checks["drive"])
	}

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "drive_connected 0") {
		t.Errorf("metrics missing drive gauge:\n%s", rec.Body.String())
	}
}

func TestStateAndSummary(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	snap := decode[core.Snapshot](t, env.do(t, http.MethodGet, "/api/state", nil))
	if len(snap.Budgets) != len(core.DefaultBudgets()) {
		t.Errorf("budgets = %d", len(snap.Budgets))
	}

	env.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"date": "2024-05-03", "type": "expense", "category": "Vật tư", "amount": "1500,5", "merchant": "Kho A",
	})
	env.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"date": "2024-06-01", "type": "INCOME", "category": "Thu khác", "amount": 900,
	})

	tests := []struct {
		query       string
		status      int
		wantExpense float64
		wantIncome  float64
	}{
		{"", http.StatusOK, 1500.5, 900},
		{"?month=all&year=all", http.StatusOK, 1500.5, 900},
		{"?month=5&year=2024", http.StatusOK, 1500.5, 0},
		{"?month=13", http.StatusBadRequest, 0, 0},
		{"?year=abc", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, "/api/summary"+tt.query, nil)
		if rec.Code != tt.status {
			t.Errorf("%q: status = %d, want %d", tt.query, rec.Code, tt.status)
			continue
		}
		if tt.status != http.StatusOK {
			continue
		}
		sum := decode[core.Summary](t, rec)
		if sum.TotalExpense != tt.wantExpense || sum.TotalIncome != tt.wantIncome {
			t.Errorf("%q: expense=%v income=%v", tt.query, sum.TotalExpense, sum.TotalIncome)
		}
	}
}

func TestSaveTransaction_Validation(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", "{", http.StatusBadRequest},
		{"unknown field", map[string]any{"date": "2024-01-01", "type": "EXPENSE", "category": "x", "amount": 1, "bogus": 1}, http.StatusBadRequest},
		{"missing amount", map[string]any{"date": "2024-01-01", "type": "EXPENSE", "category": "x"}, http.StatusUnprocessableEntity},
		{"negative amount", map[string]any{"date": "2024-01-01", "type": "EXPENSE", "category": "x", "amount": -3}, http.StatusUnprocessableEntity},
		{"bad date", map[string]any{"date": "01/02/2024", "type": "EXPENSE", "category": "x", "amount": 1}, http.StatusUnprocessableEntity},
		{"bad type", map[string]any{"date": "2024-01-01", "type": "GIFT", "category": "x", "amount": 1}, http.StatusUnprocessableEntity},
		{"no category", map[string]any{"date": "2024-01-01", "type": "EXPENSE", "amount": 1}, http.StatusUnprocessableEntity},
		{"overflowing amount", `{"date":"2024-01-01","type":"EXPENSE","category":"x","amount":1e400}`, http.StatusUnprocessableEntity},
		{"overflowing amount string", `{"date":"2024-01-01","type":"EXPENSE","category":"x","amount":"1e400"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
	if n := len(env.ledger.Snapshot().Transactions); n != 0 {
		t.Errorf("transactions saved = %d", n)
	}
}

func TestSaveTransaction_EditRequiresPassphrase(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()
	if err := env.settings.SetPassphrase(ctx, "s3cret"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"id": "tx-1", "date": "2024-05-03", "type": "EXPENSE", "category": "Vật tư", "amount": 10,
		"receiptUrl": "data:image/png;base64,AAAA",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	edit := map[string]any{"id": "tx-1", "date": "2024-05-03", "type": "EXPENSE", "category": "Vật tư", "amount": 25}
	if rec := env.do(t, http.MethodPost, "/api/transactions", edit); rec.Code != http.StatusForbidden {
		t.Fatalf("edit without passphrase = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/transactions", edit, headerPassphrase, "wrong"); rec.Code != http.StatusForbidden {
		t.Fatalf("edit with wrong passphrase = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/transactions", edit, headerPassphrase, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[services.SaveResult](t, rec)
	if res.Created || res.Transaction.Amount != 25 {
		t.Errorf("result = %+v", res)
	}
	if res.Transaction.ReceiptURL != "data:image/png;base64,AAAA" {
		t.Errorf("receipt not preserved: %q", res.Transaction.ReceiptURL)
	}
	if got := len(env.ledger.Snapshot().Transactions); got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
}

func multipartBody(t *testing.T, fields map[string]string, receipt []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if receipt != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="receipt"; filename="hoa don.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(receipt)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSaveTransaction_MultipartReceipt(t *testing.T) {
	fields := map[string]string{"date": "2024-05-03", "type": "EXPENSE", "category": "Vật tư", "amount": "120"}

	t.Run("offline keeps data uri", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.Config{})
		body, ct := multipartBody(t, fields, []byte("png-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[services.SaveResult](t, rec)
		if !strings.HasPrefix(res.Transaction.ReceiptURL, "data:image/png;base64,") {
			t.Errorf("receiptUrl = %q", res.Transaction.ReceiptURL)
		}
	})

	t.Run("connected uploads to drive", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.Config{})
		env.connect(t)
		body, ct := multipartBody(t, fields, []byte("png-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rec, req)
		env.dispatcher.Wait()

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		res := decode[services.SaveResult](t, rec)
		if res.Transaction.DriveFileID == "" || res.Transaction.ReceiptURL != memory.ContentLink(res.Transaction.DriveFileID) {
			t.Errorf("transaction = %+v", res.Transaction)
		}
		if env.files.Count(drive.DataFileName) != 1 {
			t.Errorf("snapshot not pushed")
		}

		rec = env.do(t, http.MethodGet, "/api/receipts?ref="+url.QueryEscape(res.Transaction.ReceiptURL), nil)
		got := decode[receiptResponse](t, rec)
		if !got.Available || got.URI != "data:image/png;base64,cG5nLWJ5dGVz" {
			t.Errorf("receipt = %+v", got)
		}
	})
}

func TestBudgets(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	path := "/api/budgets/" + url.PathEscape("Vật tư")
	rec := env.do(t, http.MethodPut, path, map[string]any{"amount": 30000})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	snap := decode[core.Snapshot](t, rec)
	if snap.Budgets[0].Amount != 30000 {
		t.Errorf("budget = %+v", snap.Budgets[0])
	}

	for _, body := range []string{`{"amount":1e400}`, `{"amount":"1e400"}`} {
		if rec := env.do(t, http.MethodPut, path, body); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", body, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPost, "/api/budgets", `{"category":"Tràn","amount":1e400}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("overflowing add status = %d, want 422", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/summary", nil); rec.Code != http.StatusOK {
		t.Errorf("summary after rejected budgets = %d", rec.Code)
	}
	if got := env.ledger.Snapshot().Budgets[0].Amount; got != 30000 {
		t.Errorf("budget changed to %v by rejected update", got)
	}

	if rec := env.do(t, http.MethodPut, "/api/budgets/Unknown", map[string]any{"amount": 1}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown category status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/budgets", map[string]any{"category": "Điện nước", "amount": "500"}); rec.Code != http.StatusCreated {
		t.Errorf("add status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/budgets", map[string]any{"category": "Điện nước", "amount": 1}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", rec.Code)
	}

	cats := decode[map[string][]string](t, env.do(t, http.MethodGet, "/api/categories", nil))
	if last := cats["expense"][len(cats["expense"])-1]; last != "Điện nước" {
		t.Errorf("runtime category not listed: %v", cats["expense"])
	}
}

func TestDriveConnect(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantKind auth.Kind
	}{
		{"success", nil, http.StatusOK, ""},
		{"cancelled", context.Canceled, http.StatusNoContent, ""},
		{"access denied", &auth.CallbackError{Code: "access_denied"}, http.StatusForbidden, auth.KindAccessDenied},
		{"origin mismatch", &auth.CallbackError{Code: "redirect_uri_mismatch"}, http.StatusBadRequest, auth.KindOriginMismatch},
		{"unknown", io.ErrUnexpectedEOF, http.StatusBadGateway, auth.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, ratelimit.Config{})
			env.granter.fail(tt.err)

			rec := env.do(t, http.MethodPost, "/api/drive/connect", nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			switch {
			case tt.err == nil:
				st := decode[services.Status](t, rec)
				if !st.Connected {
					t.Error("not connected")
				}
			case tt.wantKind != "":
				body := decode[authErrorBody](t, rec)
				if body.Kind != tt.wantKind || body.Message == "" {
					t.Errorf("body = %+v", body)
				}
			}
		})
	}
}

func TestDriveConnect_NotReady(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	_ = env.ledger.Initialize(auth.Credentials{})

	if rec := env.do(t, http.MethodPost, "/api/drive/connect", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestDrivePullAndDisconnect(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	if rec := env.do(t, http.MethodPost, "/api/drive/pull", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("pull while disconnected = %d", rec.Code)
	}

	env.connect(t)
	rec := env.do(t, http.MethodPost, "/api/drive/pull", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pull status = %d", rec.Code)
	}
	if decode[map[string]any](t, rec)["applied"] != false {
		t.Error("empty drive should apply nothing")
	}

	rec = env.do(t, http.MethodPost, "/api/drive/disconnect", nil)
	if st := decode[services.Status](t, rec); st.Connected || !st.Ready {
		t.Errorf("status after disconnect = %+v", st)
	}
	if _, ok, _ := env.settings.Tokens().LoadToken(context.Background()); ok {
		t.Error("persisted token not cleared")
	}
}

func TestReceipts(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	if rec := env.do(t, http.MethodGet, "/api/receipts", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing ref status = %d", rec.Code)
	}

	direct := decode[receiptResponse](t, env.do(t, http.MethodGet, "/api/receipts?ref="+url.QueryEscape("data:image/jpeg;base64,AA=="), nil))
	if !direct.Available || direct.URI != "data:image/jpeg;base64,AA==" {
		t.Errorf("direct = %+v", direct)
	}

	private := decode[receiptResponse](t, env.do(t, http.MethodGet, "/api/receipts?ref="+url.QueryEscape(memory.ContentLink("mem-9")), nil))
	if private.Available {
		t.Errorf("private receipt resolved while disconnected: %+v", private)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	p := decode[settingsResponse](t, env.do(t, http.MethodGet, "/api/settings", nil))
	if p.ProjectName != settings.DefaultProjectName || p.HasPassphrase || !p.DriveReady {
		t.Errorf("initial settings = %+v", p)
	}

	rec := env.do(t, http.MethodPut, "/api/settings", map[string]any{
		"projectName": "Nhà phố Q7", "googleClientId": "", "googleApiKey": "", "passphrase": "s3cret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}
	p = decode[settingsResponse](t, rec)
	if p.ProjectName != "Nhà phố Q7" || !p.HasPassphrase || !p.DriveReady {
		t.Errorf("saved settings = %+v", p)
	}

	if rec := env.do(t, http.MethodPut, "/api/settings", map[string]any{"projectName": "x"}); rec.Code != http.StatusForbidden {
		t.Errorf("ungated put status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/settings", map[string]any{"projectName": "x", "passphrase": ""}, headerPassphrase, "s3cret")
	if rec.Code != http.StatusOK || decode[settingsResponse](t, rec).HasPassphrase {
		t.Errorf("clearing passphrase failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit_MutatingOnly(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{Requests: 2, Period: time.Minute})
	body := map[string]any{"category": "Điện", "amount": 1}

	for i := 0; i < 2; i++ {
		env.do(t, http.MethodPost, "/api/budgets", body)
	}
	rec := env.do(t, http.MethodPost, "/api/budgets", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec := env.do(t, http.MethodGet, "/api/state", nil); rec.Code != http.StatusOK {
		t.Errorf("reads should not be limited, got %d", rec.Code)
	}
}

func TestNotFoundAndProbe(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	if rec := env.do(t, http.MethodGet, "/api/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/.env", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("probe status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/state", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("method status = %d", rec.Code)
	}
}

func TestSyncStream(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/sync", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() services.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var e services.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v", err)
		}
		return e
	}

	first := read()
	if first.Type != services.EventStatus || first.Status.Connected {
		t.Fatalf("initial event = %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.connect(t)
	for {
		e := read()
		if e.Type == services.EventStatus && e.Status.Connected {
			break
		}
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/notify"
	"github.com/tbourn/go-location-digest/internal/repo"
	"github.com/tbourn/go-location-digest/internal/services"
)

func newDigestsRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/digests", h.ListDigests)
	r.GET("/digests/:id", h.GetDigest)
	r.POST("/digests/run", h.RunDigest)
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func seedLocation(t *testing.T, db *gorm.DB, id, signal, place string, ts time.Time) {
	t.Helper()
	ev := &domain.Event{
		EventID: id,
		Type:    domain.EventTypeLocation,
		TS:      ts,
		Payload: json.RawMessage(`{"event":"` + signal + `","place_id":"` + place + `"}`),
	}
	if _, err := repo.InsertEventIfAbsent(context.Background(), db, ev); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newDigestSvc(db *gorm.DB, sent *int) *services.DigestService {
	return &services.DigestService{
		DB:       db,
		Location: time.UTC,
		Notifier: notify.SenderFunc(func(context.Context, string, domain.NotificationPayload) error {
			*sent++
			return nil
		}),
		RetryLimit:  5,
		MaxAttempts: 3,
	}
}

// ---------- RunDigest / GetDigest / ListDigests (integration) ----------

func TestRunDigest_NoEvents_204(t *testing.T) {
	db := newHandlerDB(t)
	var sent int
	h := New(stubIngestSvc{}, newDigestSvc(db, &sent), nil)
	r := newDigestsRouter(h)

	w := do(r, http.MethodPost, "/digests/run", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("run empty -> %d body=%s", w.Code, w.Body.String())
	}
	if sent != 0 {
		t.Fatalf("nothing should be sent, got %d", sent)
	}
}

func TestRunDigest_Created_ThenGetAndList(t *testing.T) {
	db := newHandlerDB(t)
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	seedLocation(t, db, "e1", "enter", "home", base)
	seedLocation(t, db, "e2", "exit", "home", base.Add(30*time.Minute))
	seedLocation(t, db, "e3", "enter", "office", base.Add(time.Hour))

	var sent int
	h := New(stubIngestSvc{}, newDigestSvc(db, &sent), nil)
	r := newDigestsRouter(h)

	w := do(r, http.MethodPost, "/digests/run", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("run -> %d body=%s", w.Code, w.Body.String())
	}
	var run RunDigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("json: %v", err)
	}
	if run.Digest == nil || run.Events != 3 || !run.Delivered || sent != 1 {
		t.Fatalf("unexpected run: %+v sent=%d", run, sent)
	}
	wantText := "[LocationDigest] 00:00-00:30 home(30分) → 01:00 office arrived"
	if run.Digest.Summary.Text != wantText {
		t.Fatalf("text = %q, want %q", run.Digest.Summary.Text, wantText)
	}

	// Second run finds nothing left.
	if w := do(r, http.MethodPost, "/digests/run", nil); w.Code != http.StatusNoContent {
		t.Fatalf("second run -> %d", w.Code)
	}

	w = do(r, http.MethodGet, "/digests/"+run.Digest.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d", w.Code)
	}
	var got domain.Digest
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != run.Digest.ID || got.SentAt == nil || len(got.Summary.EventIDs) != 3 {
		t.Fatalf("unexpected digest: %+v", got)
	}

	w = do(r, http.MethodGet, "/digests?page=1&page_size=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"digests:1:`) || !strings.HasSuffix(etag, `:1"`) {
		t.Fatalf("unexpected etag %q", etag)
	}
	var list ListDigestsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Digests) != 1 || list.Pagination.Total != 1 || list.Pagination.HasNext {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = do(r, http.MethodGet, "/digests", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional list -> %d", w.Code)
	}
}

func TestListDigests_EmptyState_ZeroTS(t *testing.T) {
	db := newHandlerDB(t)
	var sent int
	h := New(stubIngestSvc{}, newDigestSvc(db, &sent), nil)
	r := newDigestsRouter(h)

	w := do(r, http.MethodGet, "/digests", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `W/"digests:0:0:0"` {
		t.Fatalf("etag = %q", got)
	}
	if !strings.Contains(w.Body.String(), `"digests":[]`) {
		t.Fatalf("expected empty array: %s", w.Body.String())
	}
}

// ---------- error mappings (stubs) ----------

func TestDigestHandlers_ErrorMappings(t *testing.T) {
	boom := errors.New("boom")

	cases := []struct {
		name   string
		svc    stubDigestSvc
		method string
		path   string
		status int
		code   string
	}{
		{"run busy", stubDigestSvc{run: func(context.Context) (*services.RunResult, error) {
			return nil, services.ErrRunInProgress
		}}, http.MethodPost, "/digests/run", http.StatusConflict, ErrCodeConflict},
		{"run failed", stubDigestSvc{run: func(context.Context) (*services.RunResult, error) {
			return nil, boom
		}}, http.MethodPost, "/digests/run", http.StatusInternalServerError, ErrCodeRunFailed},
		{"get missing", stubDigestSvc{}, http.MethodGet, "/digests/nope", http.StatusNotFound, ErrCodeNotFound},
		{"get failed", stubDigestSvc{get: func(context.Context, string) (*domain.Digest, error) {
			return nil, boom
		}}, http.MethodGet, "/digests/x", http.StatusInternalServerError, ErrCodeInternal},
		{"list failed", stubDigestSvc{listPage: func(context.Context, int, int) ([]domain.Digest, int64, error) {
			return nil, 0, boom
		}}, http.MethodGet, "/digests", http.StatusInternalServerError, ErrCodeListFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newDigestsRouter(New(stubIngestSvc{}, tc.svc, nil))
			w := do(r, tc.method, tc.path, nil)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tc.status, w.Body.String())
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != tc.code {
				t.Fatalf("code = %q, want %q (err=%v)", er.Code, tc.code, err)
			}
		})
	}
}

func TestListDigests_StatsErrorSkipsETag(t *testing.T) {
	r := newDigestsRouter(New(stubIngestSvc{}, stubDigestSvc{}, nil))
	w := do(r, http.MethodGet, "/digests", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("ETag must be absent when stats fail")
	}
}

// ---------- Health ----------

func TestHealth(t *testing.T) {
	r := newDigestsRouter(New(stubIngestSvc{}, stubDigestSvc{}, nil))
	if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health without pinger -> %d", w.Code)
	}

	r = newDigestsRouter(New(stubIngestSvc{}, stubDigestSvc{}, func(context.Context) error { return nil }))
	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health ok -> %d %s", w.Code, w.Body.String())
	}

	r = newDigestsRouter(New(stubIngestSvc{}, stubDigestSvc{}, func(context.Context) error { return errors.New("down") }))
	w = do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), ErrCodeUnavailable) {
		t.Fatalf("health down -> %d %s", w.Code, w.Body.String())
	}
}

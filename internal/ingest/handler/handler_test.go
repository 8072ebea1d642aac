package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amlwatch/internal/domain"
	ingestconfig "amlwatch/internal/ingest/config"
	"amlwatch/internal/ingest/ports"
	"amlwatch/internal/ingest/scheduler"
	entitystore "amlwatch/internal/ingest/store/entity"
)

type stubSource struct{}

func (s *stubSource) Name() string { return "ofac-sdn" }
func (s *stubSource) URL() string  { return "https://example.test/sdn.xml" }

func (s *stubSource) Decode([]byte, time.Time) ([]*domain.Entity, int, error) {
	return nil, 0, nil
}

type stubRunner struct {
	block   chan struct{}
	summary ports.RunSummary
}

func (r *stubRunner) Run(ctx context.Context, source ports.Source) (ports.RunSummary, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	summary := r.summary
	summary.Source = source.Name()
	return summary, nil
}

func newTestRouter(t *testing.T, runner *stubRunner, store StatsStore) http.Handler {
	t.Helper()
	sched := scheduler.New(runner, ingestconfig.DefaultConfig())
	sched.Register(&stubSource{})

	r := chi.NewRouter()
	New(sched, store, nil).Register(r)
	return r
}

func TestHandler_Trigger(t *testing.T) {
	t.Run("admits an idle source with 202", func(t *testing.T) {
		router := newTestRouter(t, &stubRunner{}, entitystore.New())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/ofac-sdn", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ofac-sdn", body["source"])
		assert.Equal(t, "running", body["state"])
	})

	t.Run("unknown source is 404", func(t *testing.T) {
		router := newTestRouter(t, &stubRunner{}, entitystore.New())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/eu-consolidated", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not_found", body["error"])
	})

	t.Run("running source is 409", func(t *testing.T) {
		runner := &stubRunner{block: make(chan struct{})}
		defer close(runner.block)
		router := newTestRouter(t, runner, entitystore.New())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/ofac-sdn", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/ofac-sdn", nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "conflict", body["error"])
	})
}

func TestHandler_Status(t *testing.T) {
	t.Run("reports last run summary once the run finishes", func(t *testing.T) {
		runner := &stubRunner{summary: ports.RunSummary{Parsed: 5, Created: 5}}
		router := newTestRouter(t, runner, entitystore.New())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/ofac-sdn", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)

		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/ofac-sdn/status", nil))
			if rec.Code != http.StatusOK {
				return false
			}
			var status scheduler.SourceStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				return false
			}
			return status.State == scheduler.StateIdle && status.LastSummary != nil && status.LastSummary.Created == 5
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("unknown source is 404", func(t *testing.T) {
		router := newTestRouter(t, &stubRunner{}, entitystore.New())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/eu-consolidated/status", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Sources(t *testing.T) {
	router := newTestRouter(t, &stubRunner{}, entitystore.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/sources", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"ofac-sdn"}, body["sources"])
}

func TestHandler_Stats(t *testing.T) {
	ctx := context.Background()
	store := entitystore.New()
	for i, entityType := range []domain.EntityType{domain.TypeIndividual, domain.TypeIndividual, domain.TypeOrganization} {
		entity := &domain.Entity{
			ID:   string(rune('a' + i)),
			Name: "Party",
			Type: entityType,
			Sanctions: []domain.SanctionRecord{{
				ListSource: "OFAC",
				EntryID:    string(rune('0' + i)),
				Status:     domain.StatusActive,
			}},
		}
		require.NoError(t, store.Create(ctx, entity))
	}
	router := newTestRouter(t, &stubRunner{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.TotalEntities)
	assert.Equal(t, int64(2), body.ByType["Individual"])
	assert.Equal(t, int64(1), body.ByType["Organization"])
}

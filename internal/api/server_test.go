package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumreview/internal/oracle"
	"github.com/quorumreview/internal/retry"
	"github.com/quorumreview/internal/review"
	"github.com/quorumreview/internal/state"
	"github.com/quorumreview/internal/strategy"
	"github.com/quorumreview/pkg/models"
)

// stubClient answers every completion with a canned approval.
type stubClient struct{}

func (stubClient) Complete(context.Context, oracle.Request) (oracle.Response, error) {
	return oracle.Response{Text: `{"decision": "approved", "summary": "Looks good.", "comments": []}`}, nil
}

func testServer(t *testing.T) (*Server, *state.MemoryStore) {
	t.Helper()

	store := state.NewMemoryStore()
	invoker := retry.New(retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, zerolog.Nop()).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	parser := oracle.NewParser(zerolog.Nop())
	opts := review.Options{Model: "test-model", MaxTokens: 512}

	svc := review.NewService(
		strategy.NewSelector(strategy.DefaultThresholds(), nil, zerolog.Nop()),
		review.NewDispatcher(stubClient{}, invoker, parser, opts, zerolog.Nop()),
		review.NewMerger(stubClient{}, invoker, parser, opts, 0, zerolog.Nop()),
		nil,
		store,
		[]float64{0.2},
		zerolog.Nop(),
	)

	return NewServer(0, svc, store, nil, zerolog.Nop()), store
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCreateReviewSynchronous(t *testing.T) {
	s, store := testServer(t)

	body := `{
		"pr_id": "42",
		"platform": "github",
		"repository": "acme/widgets",
		"title": "Tidy helpers",
		"files": [
			{"path": "a.go", "additions": 10, "deletions": 2},
			{"path": "b.go", "additions": 5, "deletions": 0}
		]
	}`
	rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report review.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, strategy.ModeSequential, report.Decision.Mode)
	assert.Equal(t, models.DecisionApproved, report.Opinion.Decision)

	// The run must have persisted its state.
	st, err := store.Load(context.Background(), state.Key{PRID: "42", Platform: "github", Repository: "acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, state.PhaseOutput, st.Phase)
}

func TestCreateReviewValidation(t *testing.T) {
	s, _ := testServer(t)

	t.Run("malformed body", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews", `{"pr_id": 42`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing key fields", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews", `{"pr_id": "42"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty change", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews",
			`{"pr_id": "42", "platform": "github", "repository": "acme/widgets"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("async without a queue", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews",
			`{"pr_id": "42", "platform": "github", "repository": "acme/widgets", "async": true,
			  "files": [{"path": "a.go", "additions": 1, "deletions": 0}]}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCreateReviewTooLarge(t *testing.T) {
	s, _ := testServer(t)

	var files []string
	for i := 0; i < 150; i++ {
		files = append(files, fmt.Sprintf(`{"path": "f%d.go", "additions": 10, "deletions": 0}`, i))
	}
	body := fmt.Sprintf(`{"pr_id": "9", "platform": "github", "repository": "acme/widgets",
		"files": [%s]}`, strings.Join(files, ","))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/reviews", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestGetReviewState(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	st := state.NewState("7", "gitlab", "acme/api")
	require.NoError(t, st.TransitionTo(state.PhaseReview))
	require.NoError(t, store.Save(ctx, st))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/reviews/gitlab/acme/api/7", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got state.ReviewState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, state.PhaseReview, got.Phase)
	assert.Equal(t, "acme/api", got.Key.Repository)

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/reviews/github/acme/widgets/404", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCleanupStates(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()

	old := state.NewState("old", "github", "acme/widgets")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -10)
	require.NoError(t, store.Save(ctx, old))

	fresh := state.NewState("fresh", "github", "acme/widgets")
	require.NoError(t, store.Save(ctx, fresh))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/state/cleanup?max_age_days=7", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())

	_, err := store.Load(ctx, fresh.Key)
	assert.NoError(t, err, "recent state must survive")

	t.Run("rejects bad age", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/state/cleanup?max_age_days=zero", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

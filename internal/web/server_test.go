package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-genre-classifier/internal/genre"
)

type fakePredictor struct {
	result *genre.Result
	err    error
	got    []string
}

func (f *fakePredictor) PredictGenre(lyrics string) (*genre.Result, error) {
	f.got = append(f.got, lyrics)
	if strings.TrimSpace(lyrics) == "" {
		return nil, genre.ErrEmptyInput
	}
	return f.result, f.err
}

func (f *fakePredictor) Genres() []string {
	return []string{"Pop", "Rock"}
}

func newTestServer(t *testing.T, p Predictor) http.Handler {
	t.Helper()
	s, err := NewServer(ServerConfig{Predictor: p})
	require.NoError(t, err)
	return s.handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresPredictor(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(t, &fakePredictor{}), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenres(t *testing.T) {
	rec := do(newTestServer(t, &fakePredictor{}), http.MethodGet, "/api/genres", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"genres":["Pop","Rock"]}`, rec.Body.String())
}

func TestPredict(t *testing.T) {
	p := &fakePredictor{result: &genre.Result{
		Genre:        "Rock",
		Confidence:   87.5,
		Mode:         genre.ModeProbability,
		Alternatives: []genre.Alternative{{Genre: "Rock", Score: 0.875}, {Genre: "Pop", Score: 0.125}},
	}}
	rec := do(newTestServer(t, p), http.MethodPost, "/api/predict", `{"lyrics":"guitar riffs all night"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got genre.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Rock", got.Genre)
	assert.Equal(t, 87.5, got.Confidence)
	assert.Len(t, got.Alternatives, 2)
	assert.Equal(t, []string{"guitar riffs all night"}, p.got)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name      string
		predictor *fakePredictor
		body      string
		status    int
		contains  string
	}{
		{
			name:      "empty lyrics",
			predictor: &fakePredictor{},
			body:      `{"lyrics":"   "}`,
			status:    http.StatusUnprocessableEntity,
			contains:  "input",
		},
		{
			name:      "missing lyrics",
			predictor: &fakePredictor{},
			body:      `{}`,
			status:    http.StatusUnprocessableEntity,
		},
		{
			name:      "malformed json",
			predictor: &fakePredictor{},
			body:      `{"lyrics":`,
			status:    http.StatusBadRequest,
			contains:  "malformed",
		},
		{
			name:      "too large",
			predictor: &fakePredictor{},
			body:      `{"lyrics":"` + strings.Repeat("a", MaxRequestBytes) + `"}`,
			status:    http.StatusRequestEntityTooLarge,
			contains:  "exceeds",
		},
		{
			name:      "internal failure",
			predictor: &fakePredictor{err: errors.New("boom")},
			body:      `{"lyrics":"words"}`,
			status:    http.StatusInternalServerError,
			contains:  "prediction failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(t, tt.predictor), http.MethodPost, "/api/predict", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			if tt.contains != "" {
				assert.Contains(t, body["error"], tt.contains)
			}
		})
	}
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	rec := do(newTestServer(t, &fakePredictor{}), http.MethodGet, "/api/predict", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s, err := NewServer(ServerConfig{
		Addr:            "127.0.0.1:0",
		Predictor:       &fakePredictor{},
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

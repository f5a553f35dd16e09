package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"semchunk/internal/app"
	"semchunk/internal/chunker"
	"semchunk/internal/config"
	"semchunk/internal/embeddings"
	"semchunk/internal/queue"
)

const sampleText = "Goroutines are cheap to start. Goroutines are scheduled by the runtime. " +
	"Sourdough bread needs a starter. Goroutines communicate over channels."

func testConfig() config.Config {
	return config.Config{
		Port:                 8080,
		LogLevel:             "info",
		LogFormat:            "json",
		MaxUploadSize:        1 << 20,
		QueueProvider:        "none",
		EmbeddingProvider:    "hash",
		EmbeddingBatchSize:   8,
		EmbeddingConcurrency: 2,
		CacheProvider:        "none",
		Tokenizer:            "words",
		MinSentenceChars:     12,
		SimilarityThreshold:  0.3,
		MaxChunkTokens:       64,
		SkipWindow:           2,
		CentroidMode:         "mean",
	}
}

func newTestDeps(t *testing.T, q queue.Queue) app.Deps {
	t.Helper()
	deps, err := app.New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(deps.Close)
	deps.Queue = q
	return deps
}

// failingDeps returns deps whose chunkers fail every embedding call.
func failingDeps(t *testing.T) app.Deps {
	t.Helper()
	m := new(embeddings.MockEmbedder)
	m.On("IsAvailable", mock.Anything).Return(true)
	m.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	sc, err := chunker.NewSemantic(m, chunker.DefaultConfig())
	require.NoError(t, err)
	dp, err := chunker.NewDoublePass(m, chunker.DefaultConfig())
	require.NoError(t, err)
	return app.Deps{
		Config:     testConfig(),
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Semantic:   sc,
		DoublePass: dp,
	}
}

func postJSON(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chunk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeChunks(t *testing.T, rec *httptest.ResponseRecorder) chunkResponse {
	t.Helper()
	var resp chunkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestChunkHandler(t *testing.T) {
	h := newRouter(newTestDeps(t, nil))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"semantic", `{"text":"` + sampleText + `"}`, http.StatusOK},
		{"double pass", `{"text":"` + sampleText + `","strategy":"double_pass"}`, http.StatusOK},
		{"empty text", `{"text":""}`, http.StatusOK},
		{"unknown strategy", `{"text":"hi","strategy":"fixed"}`, http.StatusBadRequest},
		{"negative context", `{"text":"hi","context_size":-1}`, http.StatusBadRequest},
		{"malformed json", `{"text":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decodeChunks(t, rec)
			assert.Equal(t, len(resp.Chunks), resp.Count)
			var sb strings.Builder
			for _, c := range resp.Chunks {
				sb.WriteString(c.Text)
			}
			var req chunkRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, req.Text, sb.String())
		})
	}
}

func TestChunkHandlerAddsContext(t *testing.T) {
	h := newRouter(newTestDeps(t, nil))

	text := "Alpha beta gamma delta epsilon. Zeta eta theta iota kappa."
	rec := postJSON(t, h, `{"text":"`+text+`","context_size":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeChunks(t, rec)
	require.NotEmpty(t, resp.Chunks)
	assert.Empty(t, resp.Chunks[0].Context)
	for i := 1; i < len(resp.Chunks); i++ {
		assert.NotEmpty(t, resp.Chunks[i].Context)
		assert.LessOrEqual(t, len(strings.Fields(resp.Chunks[i].Context)), 2)
	}
}

func TestChunkHandlerEmbeddingFailure(t *testing.T) {
	h := newRouter(failingDeps(t))
	rec := postJSON(t, h, `{"text":"`+sampleText+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func multipartBody(t *testing.T, filename, contentType, content, strategy string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if contentType != "" {
			hdr.Set("Content-Type", contentType)
		}
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	if strategy != "" {
		require.NoError(t, w.WriteField("strategy", strategy))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	h := newRouter(newTestDeps(t, nil))

	tests := []struct {
		name        string
		filename    string
		contentType string
		strategy    string
		wantStatus  int
	}{
		{"plain text", "notes.txt", "text/plain", "", http.StatusOK},
		{"extension fallback", "notes.txt", "", "double_pass", http.StatusOK},
		{"unsupported type", "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", http.StatusBadRequest},
		{"unknown strategy", "notes.txt", "text/plain", "fixed", http.StatusBadRequest},
		{"missing file", "", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.filename, tt.contentType, sampleText, tt.strategy)
			req := httptest.NewRequest(http.MethodPost, "/api/chunk/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				resp := decodeChunks(t, rec)
				assert.NotZero(t, resp.Count)
			}
		})
	}
}

func TestUploadHandlerLimitsUnsizedBody(t *testing.T) {
	deps := newTestDeps(t, nil)
	deps.Config.MaxUploadSize = 256
	h := newRouter(deps)

	body, ct := multipartBody(t, "notes.txt", "text/plain", strings.Repeat(sampleText, 40), "")
	req := httptest.NewRequest(http.MethodPost, "/api/chunk/upload", io.NopCloser(body))
	req.Header.Set("Content-Type", ct)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file too large")
}

func TestHealthz(t *testing.T) {
	h := newRouter(newTestDeps(t, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		filename, contentType string
		want                  string
		ok                    bool
	}{
		{"a.txt", "text/plain; charset=utf-8", "text", true},
		{"a.bin", "application/pdf", "pdf", true},
		{"a.PDF", "", "pdf", true},
		{"a.pdf", "application/octet-stream", "pdf", true},
		{"a.md", "", "", false},
		{"a.txt", "image/png", "", false},
	}
	for _, tt := range tests {
		got, ok := detectKind(tt.filename, tt.contentType)
		assert.Equal(t, tt.ok, ok, tt.filename)
		assert.Equal(t, tt.want, got, tt.filename)
	}
}

func chunkTask(t *testing.T, payload chunkTaskPayload) queue.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Task{ID: uuid.New(), Type: queue.TaskTypeChunk, Payload: body}
}

func TestChunkTaskHandler(t *testing.T) {
	docID := uuid.New()

	t.Run("publishes chunks", func(t *testing.T) {
		q := new(queue.MockQueue)
		q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
			if task.Type != queue.TaskTypeChunked {
				return false
			}
			var out chunkedPayload
			if err := json.Unmarshal(task.Payload, &out); err != nil {
				return false
			}
			return out.DocumentID == docID && len(out.Chunks) > 0
		})).Return(nil).Once()

		handler := chunkTaskHandler(newTestDeps(t, q))
		err := handler(context.Background(), chunkTask(t, chunkTaskPayload{
			DocumentID: docID,
			Content:    sampleText,
			Strategy:   app.StrategyDoublePass,
		}))
		require.NoError(t, err)
		q.AssertExpectations(t)
	})

	t.Run("invalid payload is dropped", func(t *testing.T) {
		q := new(queue.MockQueue)
		handler := chunkTaskHandler(newTestDeps(t, q))
		err := handler(context.Background(), queue.Task{ID: uuid.New(), Type: queue.TaskTypeChunk, Payload: []byte("not json")})
		assert.NoError(t, err)
		q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("unknown strategy is dropped", func(t *testing.T) {
		q := new(queue.MockQueue)
		handler := chunkTaskHandler(newTestDeps(t, q))
		err := handler(context.Background(), chunkTask(t, chunkTaskPayload{DocumentID: docID, Content: sampleText, Strategy: "fixed"}))
		assert.NoError(t, err)
		q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("embedding failure is retried", func(t *testing.T) {
		q := new(queue.MockQueue)
		deps := failingDeps(t)
		deps.Queue = q
		err := chunkTaskHandler(deps)(context.Background(), chunkTask(t, chunkTaskPayload{DocumentID: docID, Content: sampleText}))
		require.Error(t, err)
		assert.True(t, chunker.IsRetryable(err))
		q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"semchunk/internal/app"
	"semchunk/internal/chunker"
	"semchunk/internal/httputil"
	"semchunk/internal/queue"
	"semchunk/internal/refinery"
)

type chunkRequest struct {
	Text        string `json:"text"`
	Strategy    string `json:"strategy" validate:"omitempty,oneof=semantic double_pass"`
	ContextSize *int   `json:"context_size" validate:"omitempty,gte=0,lte=4096"`
}

type chunkResponse struct {
	Chunks []chunker.Chunk `json:"chunks"`
	Count  int             `json:"count"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("chunker listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.Queue != nil {
		g.Go(func() error {
			deps.Log.Info("chunk worker starting", "subject", queue.TaskTypeChunk.Subject())
			return deps.Queue.Worker(ctx, queue.TaskTypeChunk, chunkTaskHandler(deps))
		})
	}

	if err := g.Wait(); err != nil {
		deps.Log.Error("chunker service stopped", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)
	r.Route("/api/chunk", func(r chi.Router) {
		r.Post("/", chunkHandler(deps))
		r.Post("/upload", uploadHandler(deps))
	})
	r.Get("/healthz", httputil.HealthHandler(deps.Log, func() bool {
		return deps.Semantic.IsAvailable()
	}))
	return r
}

func chunkHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.Config.MaxUploadSize)
		var req chunkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		chunks, err := chunkText(r.Context(), deps, req.Strategy, req.Text, req.ContextSize)
		if err != nil {
			httputil.Fail(deps.Log, w, "chunking failed", err, httputil.StatusFor(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, chunkResponse{Chunks: chunks, Count: len(chunks)})
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), err, http.StatusBadRequest)
				return
			}
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		kind, ok := detectKind(header.Filename, header.Header.Get("Content-Type"))
		if !ok {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		strategy := r.FormValue("strategy")
		if strategy != "" && strategy != app.StrategySemantic && strategy != app.StrategyDoublePass {
			httputil.Fail(deps.Log, w, "unknown strategy", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text := extractText(deps.Log, header.Filename, kind, content)

		chunks, err := chunkText(r.Context(), deps, strategy, text, nil)
		if err != nil {
			httputil.Fail(deps.Log, w, "chunking failed", err, httputil.StatusFor(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, chunkResponse{Chunks: chunks, Count: len(chunks)})
	}
}

// chunkText runs the selected chunker and the context refinery. A non-nil
// contextSize overrides the configured refinery for this call.
func chunkText(ctx context.Context, deps app.Deps, strategy, text string, contextSize *int) ([]chunker.Chunk, error) {
	c, err := deps.Chunker(strategy)
	if err != nil {
		return nil, err
	}
	chunks, err := c.Chunk(ctx, text)
	if err != nil {
		return nil, err
	}
	ref := deps.Refinery
	if contextSize != nil {
		if ref, err = refinery.NewContextRefinery(*contextSize, deps.Counter); err != nil {
			return nil, err
		}
	}
	if ref == nil || !ref.IsAvailable() {
		return chunks, nil
	}
	return ref.Refine(chunks)
}

// detectKind resolves the upload type from its Content-Type, falling back to
// the file extension when the header is missing or generic.
func detectKind(filename, contentType string) (string, bool) {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.TrimSpace(strings.ToLower(contentType)) {
	case "text/plain":
		return "text", true
	case "application/pdf":
		return "pdf", true
	case "", "application/octet-stream":
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".txt":
			return "text", true
		case ".pdf":
			return "pdf", true
		}
	}
	return "", false
}

// extractText returns the document text, with PDF support.
func extractText(log *slog.Logger, filename, kind string, content []byte) string {
	if kind != "pdf" {
		return string(content)
	}
	text, err := extractPDF(content)
	if err != nil {
		log.Warn("pdf extraction failed, using raw bytes", "err", err, "filename", filename)
		return string(content)
	}
	return text
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

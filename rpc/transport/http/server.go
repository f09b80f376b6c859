package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler       transport.ServerHandleFunc
	streamHandler transport.ServerStreamHandleFunc
	config        common.ServerConfig
	mu            sync.Mutex
	server        *http.Server
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) RegisterStreamHandler(handler transport.ServerStreamHandleFunc) {
	t.streamHandler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	t.config = config

	r := chi.NewRouter()
	if t.config.LogLevel == "debug" {
		r.Use(loggerMiddleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	r.Post("/{shardId}", t.handleRequest)
	r.Post("/{shardId}/stream", t.handleStream)

	t.mu.Lock()
	t.server = &http.Server{
		Addr:              t.config.Transport.Endpoint,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", t.config.Transport.Endpoint)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *httpServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server == nil {
		return nil
	}
	return t.server.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readRequest parses the shard id and reads the body
func readRequest(w http.ResponseWriter, r *http.Request) (uint64, []byte, bool) {
	shardId, err := strconv.ParseUint(chi.URLParam(r, "shardId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid shardId", http.StatusBadRequest)
		return 0, nil, false
	}

	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return 0, nil, false
	}
	return shardId, body, true
}

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	shardId, body, ok := readRequest(w, r)
	if !ok {
		return
	}

	resp := t.handler(shardId, body)

	if _, err := w.Write(resp); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// handleStream answers with a chunked body: one chunk per frame and a final chunk
func (t *httpServerTransport) handleStream(w http.ResponseWriter, r *http.Request) {
	if t.streamHandler == nil {
		http.Error(w, "Streaming not supported", http.StatusNotImplemented)
		return
	}
	shardId, body, ok := readRequest(w, r)
	if !ok {
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/octet-stream")

	resp := t.streamHandler(shardId, body, func(frame []byte) error {
		if err := writeChunk(w, chunkFrame, frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	if err := writeChunk(w, chunkFinal, resp); err != nil {
		Logger.Errorf("Failed to write final chunk: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streamed responses are not buffered
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

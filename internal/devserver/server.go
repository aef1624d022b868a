// Package devserver serves the build output and pushes reload events to
// connected browsers.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

const (
	routePrefix = "/__sitepipe/"
	eventsPath  = routePrefix + "events"
	clientPath  = routePrefix + "client.js"
)

// Config configures a Server.
type Config struct {
	// Dir is the directory served, usually the absolute build destination.
	Dir string
	// Prefix is Dir relative to the project root. It is stripped from
	// reload paths so clients see URL paths.
	Prefix          string
	Addr            string
	Gzip            bool
	ShutdownTimeout time.Duration
}

// Server is a static file server with live reload.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]chan event
	done    chan struct{}
	once    sync.Once
	addr    net.Addr
}

// New returns a server for cfg. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	cfg.Prefix = strings.Trim(filepath.ToSlash(cfg.Prefix), "/")
	if cfg.Prefix == "." {
		cfg.Prefix = ""
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]chan event),
		done:    make(chan struct{}),
	}
}

// Handler returns the HTTP handler. Static responses are gzip-compressed
// when enabled; the event stream never is.
func (s *Server) Handler() http.Handler {
	var static http.Handler = http.HandlerFunc(s.serveStatic)
	if s.cfg.Gzip {
		static = gzhttp.GzipHandler(static)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(eventsPath, s.serveEvents)
	mux.HandleFunc(clientPath, serveClient)
	mux.Handle("/", static)
	return requestLog(s.logger, mux)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Addr == "" {
		return errors.New("addr is required")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Shutdown closes every client
// stream, then waits for other requests to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", "http://"+ln.Addr().String(), "dir", s.cfg.Dir)
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("dev server stopped")
		return nil
	case err := <-errCh:
		s.closeStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) closeStreams() {
	s.once.Do(func() { close(s.done) })
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.cfg.Dir, filepath.FromSlash(name))

	fi, err := os.Stat(full)
	if err == nil && fi.IsDir() && strings.HasSuffix(r.URL.Path, "/") {
		full = filepath.Join(full, "index.html")
		fi, err = os.Stat(full)
	}
	if err == nil && !fi.IsDir() && isHTML(full) {
		data, err := os.ReadFile(full)
		if err != nil {
			http.Error(w, "read failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, fi.Name(), fi.ModTime(), bytes.NewReader(injectClient(data)))
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.FileServer(http.Dir(s.cfg.Dir)).ServeHTTP(w, r)
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

var (
	clientTag = []byte(`<script src="` + clientPath + `"></script>`)
	bodyClose = []byte("</body>")
)

// injectClient inserts the reload script before the last </body>, or
// appends it when there is none.
func injectClient(page []byte) []byte {
	i := lastIndexASCIIFold(page, bodyClose)
	if i < 0 {
		return append(append([]byte{}, page...), clientTag...)
	}
	out := make([]byte, 0, len(page)+len(clientTag))
	out = append(out, page[:i]...)
	out = append(out, clientTag...)
	return append(out, page[i:]...)
}

// lastIndexASCIIFold is bytes.LastIndex ignoring ASCII case. Other bytes
// compare exactly, so offsets stay valid for any input.
func lastIndexASCIIFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j, c := range sep {
			if lowerASCII(s[i+j]) != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

type event struct {
	Paths []string `json:"paths"`
	CSS   bool     `json:"css"`
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Reload notifies every client that paths were rewritten. paths are
// relative to the project root. When only stylesheets changed clients swap
// them in place; otherwise they reload the page. Slow clients whose queue
// is full miss the event.
func (s *Server) Reload(paths ...string) {
	ev := s.newEvent(paths)
	if len(ev.Paths) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.clients {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("reload dropped", "client", id)
		}
	}
	s.logger.Info("reload", "files", len(ev.Paths), "css", ev.CSS, "clients", len(s.clients))
}

func (s *Server) newEvent(paths []string) event {
	ev := event{CSS: true}
	for _, p := range paths {
		p = strings.TrimPrefix(path.Clean("/"+p), "/")
		if s.cfg.Prefix != "" {
			p = strings.TrimPrefix(p, s.cfg.Prefix+"/")
		}
		if strings.HasSuffix(p, ".map") {
			continue
		}
		if path.Ext(p) != ".css" {
			ev.CSS = false
		}
		ev.Paths = append(ev.Paths, "/"+p)
	}
	if len(ev.Paths) == 0 {
		ev.CSS = false
	}
	return ev
}

func (s *Server) register() (string, chan event) {
	id := uuid.NewString()
	ch := make(chan event, 8)
	s.mu.Lock()
	s.clients[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

// serveEvents streams reload events as server-sent events.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := s.register()
	defer s.unregister(id)
	s.logger.Debug("client connected", "client", id)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: hello\ndata: %q\n\n", id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("client disconnected", "client", id)
			return
		case <-s.done:
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("encoding reload event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"imgdiff/internal/fsutil"
	"imgdiff/internal/pipeline"
	"imgdiff/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server exposes the compare pipeline and comparison history over HTTP,
// with a WebSocket feed of live job events.
type Server struct {
	addr     string
	store    *storage.Store
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	hub      *hub
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a server bound to addr. store may be nil when history is
// disabled; the history endpoints then report an error.
func New(addr string, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		store:    store,
		pipeline: pipe,
		log:      log,
		hub:      newHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run()
	go s.forwardEvents(ctx)

	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/compare", s.handleCompare).Methods("POST")
	r.HandleFunc("/api/comparisons", s.handleComparisons).Methods("GET")
	r.HandleFunc("/api/comparisons/{id}", s.handleComparison).Methods("GET")
	r.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/output/{id}", s.handleOutput).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/", s.handleIndex).Methods("GET")
}

// forwardEvents relays pipeline events to WebSocket clients as JSON.
func (s *Server) forwardEvents(ctx context.Context) {
	events, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(wireEvent(ev))
			if err != nil {
				continue
			}
			s.hub.broadcast <- payload
		}
	}
}

// event is the JSON shape sent to WebSocket clients.
type event struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Left       string `json:"left"`
	Right      string `json:"right"`
	Mode       string `json:"mode,omitempty"`
	Badness    int64  `json:"badness,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

func wireEvent(ev pipeline.Event) event {
	we := event{
		Type:  string(ev.Type),
		ID:    ev.Job.ID,
		Left:  ev.Job.Left,
		Right: ev.Job.Right,
		Mode:  ev.Job.Request.Mode,
	}
	if ev.Result != nil {
		we.Badness = ev.Result.Badness
		we.TimedOut = ev.Result.TimedOut
		we.OutputPath = ev.Result.OutputPath
	}
	if ev.Err != nil {
		we.Error = ev.Err.Error()
	}
	return we
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type compareRequest struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Mode  string `json:"mode"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Left == "" || req.Right == "" {
		http.Error(w, "left and right image paths are required", http.StatusBadRequest)
		return
	}
	switch req.Mode {
	case "", "none", "fast", "thorough":
	default:
		http.Error(w, fmt.Sprintf("unknown highlight mode %q", req.Mode), http.StatusBadRequest)
		return
	}
	for _, path := range []string{req.Left, req.Right} {
		if !fsutil.FileExists(path) {
			http.Error(w, fmt.Sprintf("input file does not exist: %s", path), http.StatusBadRequest)
			return
		}
	}

	job := pipeline.Job{
		ID:      pipeline.NewID("api"),
		Left:    req.Left,
		Right:   req.Right,
		Request: pipeline.Request{Mode: req.Mode},
	}
	if err := s.pipeline.Submit(job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": job.ID, "status": "queued"})
}

func (s *Server) handleComparisons(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := s.store.ListRecent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "comparison not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "comparison not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec.OutputPath == "" || !fsutil.FileExists(rec.OutputPath) {
		http.Error(w, "no composite stored for this comparison", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, rec.OutputPath)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.register <- conn

	go func() {
		defer func() {
			s.hub.unregister <- conn
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>imgdiff</title>
    <style>
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: #0f172a;
            color: #f8fafc;
            margin: 0;
            padding: 1.5rem;
            text-align: center;
        }
        h1 { font-size: 1.3rem; color: #3b82f6; }
        #status { color: #cbd5e1; margin: 0.5rem 0 1rem; }
        #composite {
            max-width: 95vw;
            border: 1px solid #475569;
            border-radius: 6px;
        }
    </style>
</head>
<body>
    <h1>imgdiff</h1>
    <div id="status">waiting for a comparison...</div>
    <img id="composite" alt="">
    <script>
        async function refresh() {
            const resp = await fetch('/api/comparisons?limit=20');
            if (!resp.ok) return;
            const list = await resp.json() || [];
            const latest = list.find(c => c.Status === 'completed' && c.OutputPath);
            if (!latest) return;
            document.getElementById('composite').src = '/output/' + latest.ID + '?t=' + Date.now();
            document.getElementById('status').textContent =
                latest.Left + ' vs ' + latest.Right + ' (badness ' + latest.Badness + ')';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(scheme + location.host + '/ws');
            ws.onmessage = (msg) => {
                const ev = JSON.parse(msg.data);
                if (ev.type === 'finished' || ev.type === 'failed') refresh();
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }

        connect();
        refresh();
    </script>
</body>
</html>
`

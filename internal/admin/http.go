// Package admin serves the terminal's operational HTTP API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/hostswitch"
)

// LinkStat is the state of the transport link to one host.
type LinkStat struct {
	Host         string    `json:"host"`
	Up           bool      `json:"up"`
	LastChangeTs time.Time `json:"last_change_ts"`
	LastError    string    `json:"last_error,omitempty"`
	Drops        uint64    `json:"drops"`
}

// OpStat counts dispatched operations of one kind against one host.
type OpStat struct {
	Operation string        `json:"operation"`
	HostIndex int           `json:"host_index"`
	Protocol  string        `json:"protocol"`
	Completed uint64        `json:"completed"`
	Transient uint64        `json:"transient"`
	Perm      uint64        `json:"perm"`
	Unbound   uint64        `json:"unbound"`
	Busy      time.Duration `json:"busy_ns"`
}

type opKey struct {
	op   string
	host int
}

// State collects link and exchange statistics. Observe plugs into the
// host switch and LinkChanged into the transport factory.
type State struct {
	Started time.Time

	mu    sync.Mutex
	links map[string]*LinkStat
	ops   map[opKey]*OpStat
}

func NewState() *State {
	return &State{Started: time.Now(), links: make(map[string]*LinkStat), ops: make(map[opKey]*OpStat)}
}

func (st *State) Observe(ev hostswitch.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k := opKey{ev.Operation, ev.HostIndex}
	s, ok := st.ops[k]
	if !ok {
		s = &OpStat{Operation: ev.Operation, HostIndex: ev.HostIndex}
		if ev.Bound {
			s.Protocol = ev.Protocol.String()
		}
		st.ops[k] = s
	}
	s.Busy += ev.Duration
	switch {
	case !ev.Bound:
		s.Unbound++
	case ev.Status == hostswitch.Completed:
		s.Completed++
	case ev.Status == hostswitch.TransientFailure:
		s.Transient++
	default:
		s.Perm++
	}
}

func (st *State) LinkChanged(host string, up bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	l, ok := st.links[host]
	if !ok {
		l = &LinkStat{Host: host}
		st.links[host] = l
	}
	if l.Up && !up {
		l.Drops++
	}
	l.Up = up
	l.LastChangeTs = time.Now()
	l.LastError = ""
	if err != nil {
		l.LastError = err.Error()
	}
}

// Links returns a copy of the link table ordered by host.
func (st *State) Links() []LinkStat {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]LinkStat, 0, len(st.links))
	for _, l := range st.links {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Counters returns a copy of the operation table.
func (st *State) Counters() []OpStat {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]OpStat, 0, len(st.ops))
	for _, s := range st.ops {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostIndex != out[j].HostIndex {
			return out[i].HostIndex < out[j].HostIndex
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// Router builds the admin routes.
func Router(st *State, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status": "ok",
			"uptime": time.Since(st.Started).Round(time.Second).String(),
		})
	})
	r.Get("/links", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, st.Links())
	})
	r.Get("/links/{host}", func(w http.ResponseWriter, r *http.Request) {
		host := chi.URLParam(r, "host")
		for _, l := range st.Links() {
			if l.Host == host {
				writeJSON(w, l)
				return
			}
		}
		http.Error(w, "unknown host", http.StatusNotFound)
	})
	r.Get("/counters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, st.Counters())
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "terminal_uptime_seconds %d\n", int(time.Since(st.Started).Seconds()))
		for _, l := range st.Links() {
			up := 0
			if l.Up {
				up = 1
			}
			fmt.Fprintf(w, "terminal_link_up{host=%q} %d\n", l.Host, up)
			fmt.Fprintf(w, "terminal_link_drops_total{host=%q} %d\n", l.Host, l.Drops)
		}
		for _, s := range st.Counters() {
			labels := fmt.Sprintf("operation=%q,host_index=\"%d\"", s.Operation, s.HostIndex)
			fmt.Fprintf(w, "terminal_operations_total{%s,status=\"completed\"} %d\n", labels, s.Completed)
			fmt.Fprintf(w, "terminal_operations_total{%s,status=\"transient\"} %d\n", labels, s.Transient)
			fmt.Fprintf(w, "terminal_operations_total{%s,status=\"perm\"} %d\n", labels, s.Perm)
			fmt.Fprintf(w, "terminal_operations_total{%s,status=\"unbound\"} %d\n", labels, s.Unbound)
		}
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("admin request")
		})
	}
}

// Server is the admin listener.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// Serve starts the admin API on addr in the background.
func Serve(addr string, st *State, log zerolog.Logger) *Server {
	log = log.With().Str("component", "admin").Logger()
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(st, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("admin listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin server error")
		}
	}()
	return s
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package control implements the loopback-only HTTP control endpoint
// that the finder's reload keybinding and the watcher post to.
package control

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ddaanet/tuick/internal/session"
)

// HeaderKey is the header a reload request may carry the token in.
const HeaderKey = "X-Tuick-Reload-Key"

// QueryKey is the query parameter a reload request may carry the token in.
const QueryKey = "key"

// Endpoint is the session's control-plane HTTP server. It exposes two
// authenticated routes, POST /reload and POST /loaded, and coalesces
// bursts of reload requests into a single pending signal.
type Endpoint struct {
	token session.Token
	log   *slog.Logger

	listener net.Listener
	server   *http.Server

	reloads   chan struct{}
	coalesced atomic.Int64
	loaded    atomic.Int64
}

// New builds an Endpoint authenticated with token. log may be nil, in
// which case slog.Default() is used.
func New(token session.Token, log *slog.Logger) *Endpoint {
	if log == nil {
		log = slog.Default()
	}
	return &Endpoint{
		token:   token,
		log:     log,
		reloads: make(chan struct{}, 1),
	}
}

// Listen binds the loopback listener and returns its OS-assigned port.
// It must be called before Serve.
func (e *Endpoint) Listen() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	e.listener = ln
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Reloads returns the channel the session.Controller selects on. It
// receives one value per reload request that was not coalesced away.
func (e *Endpoint) Reloads() <-chan struct{} {
	return e.reloads
}

// Coalesced returns the number of reload requests dropped because a
// reload was already pending. Surfaced at --verbose log level.
func (e *Endpoint) Coalesced() int64 {
	return e.coalesced.Load()
}

// Loaded returns the number of times the finder has reported it
// finished consuming the current block stream. Accounting only; tuick
// takes no action on it beyond logging.
func (e *Endpoint) Loaded() int64 {
	return e.loaded.Load()
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
// Listen must have been called first.
func (e *Endpoint) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reload", e.handleReload)
	mux.HandleFunc("POST /loaded", e.handleLoaded)

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.Serve(e.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (e *Endpoint) handleReload(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		e.log.Debug("control: rejected reload from non-loopback peer", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if !e.authenticated(r) {
		e.log.Debug("control: rejected reload with bad or missing token", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	select {
	case e.reloads <- struct{}{}:
	default:
		n := e.coalesced.Add(1)
		e.log.Debug("control: coalesced reload request", "total_coalesced", n)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (e *Endpoint) handleLoaded(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if !e.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	n := e.loaded.Add(1)
	e.log.Debug("control: finder reported load", "total_loaded", n)
	w.WriteHeader(http.StatusAccepted)
}

func (e *Endpoint) authenticated(r *http.Request) bool {
	got := r.Header.Get(HeaderKey)
	if got == "" {
		got = r.URL.Query().Get(QueryKey)
	}
	want := e.token.String()
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

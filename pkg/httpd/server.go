// Package httpd runs an HTTP API behind a managed listener with
// graceful shutdown on signal or context cancellation.
package httpd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneconcern/paramon/pkg/dlogger"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

// RegisterFlags adds the listener flags to the specified pflag set
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("listen", defaultAddr, "the address to listen on")
	fs.Duration("read-timeout", defaultReadTimeout, "maximum duration before timing out read of the request")
	fs.Duration("write-timeout", defaultWriteTimeout, "maximum duration before timing out write of the response")
}

const (
	defaultAddr         = ":8080"
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultGrace        = 10 * time.Second
)

// Option for the server
type Option func(*Server)

// ListensOn sets the listen address
func ListensOn(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// HandlesRequestsWith handles the http requests to the server
func HandlesRequestsWith(h http.Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// LogsWith provides a logger to the server
func LogsWith(l *zap.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

// WithTimeouts overrides the read and write timeouts
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// OnShutdown runs the provided functions once the listener has drained
func OnShutdown(handlers ...func()) Option {
	return func(s *Server) {
		s.onShutdown = append(s.onShutdown, handlers...)
	}
}

// Server wraps http.Server with signal handling and a drain grace period
type Server struct {
	addr         string
	handler      http.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	grace        time.Duration
	onShutdown   []func()
	l            *zap.Logger
}

// New creates a server, not yet listening
func New(opts ...Option) *Server {
	s := &Server{
		addr:         defaultAddr,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		grace:        defaultGrace,
		l:            dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Serve listens until the context is cancelled or a termination signal
// arrives, then drains in-flight requests before returning
func (s *Server) Serve(ctx context.Context) error {
	hs := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.l.Info("listening", zap.String("addr", s.addr))
		errc <- hs.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	select {
	case err := <-errc:
		// the listener died on its own, nothing left to drain
		return err
	case sig := <-sigc:
		s.l.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		s.l.Info("shutting down", zap.String("reason", ctx.Err().Error()))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	err := hs.Shutdown(drainCtx)
	for _, run := range s.onShutdown {
		run()
	}
	if err != nil {
		s.l.Error("forced shutdown", zap.Error(err))
	}
	return err
}

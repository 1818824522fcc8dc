package e2etest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Diego-DPL/zypace/internal/logging"
)

// Keys the application logs at startup. StartServer reads them from the log stream.
const (
	// LogAddrKey holds the address the server listens on.
	LogAddrKey = "addr"
	// LogDsnKey holds the read-write data source name of the database.
	LogDsnKey = "sqlDsn"
)

// RunFunc starts the application and blocks until ctx is done.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

// Server is an application instance started in-process for a test.
type Server struct {
	url      string
	client   *Client
	db       *sql.DB
	cancel   context.CancelCauseFunc
	done     chan struct{}
	shutdown sync.Once
}

// startupValues collects the first value logged under each key of interest.
type startupValues struct {
	addr chan string
	dsn  chan string
}

func (v startupValues) replaceAttr(_ []string, a slog.Attr) slog.Attr {
	var ch chan string
	switch a.Key {
	case LogAddrKey:
		ch = v.addr
	case LogDsnKey:
		ch = v.dsn
	default:
		return a
	}
	// Later values, e.g. from a second database connection, are dropped.
	select {
	case ch <- a.Value.String():
	default:
	}
	return a
}

// StartServer runs the application with lookupEnv as its environment and waits until /api/healthy answers.
// Logs go to logSink, usually a testhelpers.NewWriter. The server shuts down when the test ends.
func StartServer(t *testing.T, logSink io.Writer, lookupEnv func(string) (string, bool), run RunFunc) (*Server, error) {
	ctx, cancel := context.WithCancelCause(t.Context())
	values := startupValues{addr: make(chan string, 1), dsn: make(chan string, 1)}
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: values.replaceAttr,
	})))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()
	stop := func() {
		cancel(nil)
		<-done
	}

	var addr, dsn string
	for addr == "" || dsn == "" {
		select {
		case <-ctx.Done():
			stop()
			return nil, fmt.Errorf("server stopped before listening: %w", context.Cause(ctx))
		case addr = <-values.addr:
		case dsn = <-values.dsn:
		}
	}

	serverURL := "http://" + addr
	client, err := NewClient(serverURL)
	if err != nil {
		stop()
		return nil, fmt.Errorf("new client: %w", err)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		stop()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		stop()
		return nil, fmt.Errorf("open database: %w", err)
	}

	server := &Server{
		url:      serverURL,
		client:   client,
		db:       db,
		cancel:   cancel,
		done:     done,
		shutdown: sync.Once{},
	}
	t.Cleanup(server.Shutdown)
	return server, nil
}

// Client returns the client bound to the server. Tests needing a second runner create another with NewClient.
func (s *Server) Client() *Client {
	return s.client
}

func (s *Server) URL() string {
	return s.url
}

// DB is a connection to the server's database for direct inspection in tests.
func (s *Server) DB() *sql.DB {
	return s.db
}

// Shutdown stops the server and waits for run to return. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdown.Do(func() {
		_ = s.db.Close()
		s.cancel(nil)
		<-s.done
	})
}

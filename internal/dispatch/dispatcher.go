package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fitgate/fitgate/internal/auth"
	"github.com/fitgate/fitgate/internal/instrumentation"
	"github.com/fitgate/fitgate/internal/logging"
	"github.com/fitgate/fitgate/internal/session"
	"github.com/fitgate/fitgate/internal/tools"
	"github.com/fitgate/fitgate/internal/vault"
)

const (
	// DefaultIdleTimeout closes connections with no traffic.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultMaxLineBytes bounds a single request line.
	DefaultMaxLineBytes = 1 << 20

	writeTimeout = 30 * time.Second
)

// Config assembles the dispatcher's collaborators. Vault and Auth are shared
// across every connection goroutine; both are safe for concurrent use.
type Config struct {
	Auth     *auth.Manager
	Vault    *vault.Vault
	Sessions *session.Manager
	Tools    *tools.Registry
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics

	ServerName    string
	ServerVersion string

	IdleTimeout  time.Duration
	MaxLineBytes int
}

// Dispatcher accepts stream connections and serves the JSON-RPC protocol.
type Dispatcher struct {
	cfg Config

	ln net.Listener
	wg sync.WaitGroup
}

// New creates a dispatcher. Defaults are applied for unset limits.
func New(cfg Config) *Dispatcher {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{}
	}
	return &Dispatcher{cfg: cfg}
}

// Listen binds the listener. A bind failure is fatal to startup.
func (d *Dispatcher) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	d.ln = ln
	d.cfg.Logger.Info("dispatcher listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (d *Dispatcher) Addr() net.Addr {
	return d.ln.Addr()
}

// Serve accepts connections until the context is cancelled or the listener
// fails. Each connection gets its own goroutine; no request failure on one
// connection affects another.
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.ln.Close()
	}()

	for {
		conn, err := d.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				d.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				d.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs the per-connection request loop. Requests are handled one
// at a time; the loop does not read the next line until the previous
// response has been flushed.
func (d *Dispatcher) handleConn(ctx context.Context, conn net.Conn) {
	logger := d.cfg.Logger.With(slog.String(logging.KeyRemote, conn.RemoteAddr().String()))
	logger.Debug("connection opened")
	d.cfg.Metrics.ConnectionOpened(ctx)

	defer func() {
		conn.Close()
		d.cfg.Metrics.ConnectionClosed(ctx)
		logger.Debug("connection closed")
	}()

	// Close the socket when the server shuts down so the scanner unblocks.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	initial := 64 * 1024
	if initial > d.cfg.MaxLineBytes {
		initial = d.cfg.MaxLineBytes
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, initial), d.cfg.MaxLineBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(d.cfg.IdleTimeout)); err != nil {
			return
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				var netErr net.Error
				switch {
				case errors.Is(err, bufio.ErrTooLong):
					// Tell the client why before dropping it; a line
					// this long cannot be resynchronized.
					_ = d.writeResponse(conn, errorResponse(nil, CodeParseError, "request line too long"))
					logger.Debug("closing connection, oversized request line")
				case errors.As(err, &netErr) && netErr.Timeout():
					logger.Debug("closing idle connection")
				default:
					logger.Debug("read failed", logging.Err(err))
				}
			}
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := d.handleLine(ctx, logger, line)
		if err := d.writeResponse(conn, resp); err != nil {
			logger.Debug("write failed", logging.Err(err))
			return
		}
	}
}

func (d *Dispatcher) writeResponse(conn net.Conn, resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		// Result failed to serialize; the request id is still good.
		payload, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "internal error"))
	}
	payload = append(payload, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

// handleLine decodes one request line and routes it.
func (d *Dispatcher) handleLine(ctx context.Context, logger *slog.Logger, line []byte) *Response {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		d.cfg.Metrics.RecordRequest(ctx, "parse", instrumentation.StatusError, time.Since(start).Seconds())
		return errorResponse(nil, CodeParseError, "parse error")
	}
	if req.JSONRPC != Version || req.Method == "" {
		d.cfg.Metrics.RecordRequest(ctx, "invalid", instrumentation.StatusError, time.Since(start).Seconds())
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	resp := d.route(ctx, logger, &req)

	status := instrumentation.StatusSuccess
	if resp.Error != nil {
		status = instrumentation.StatusError
	}
	d.cfg.Metrics.RecordRequest(ctx, req.Method, status, time.Since(start).Seconds())
	logger.Debug("request handled",
		logging.Method(req.Method),
		logging.Status(status),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return resp
}

func (d *Dispatcher) route(ctx context.Context, logger *slog.Logger, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "tools/call":
		return d.handleToolsCall(ctx, logger, req)
	case "auth/register":
		return d.handleRegister(ctx, req)
	case "auth/login":
		return d.handleLogin(ctx, req)
	case "oauth/authorize_url":
		return d.handleAuthorizeURL(ctx, req)
	case "oauth/exchange":
		return d.handleExchange(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

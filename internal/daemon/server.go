package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/forgecore/forge/internal/ferr"
)

// RequestHandler handles incoming RPC requests by delegating to a bound
// content.Provider and alias.Provider. DataSpace/KeySpace selection among
// multiple backends, if any, is the handler's responsibility.
type RequestHandler interface {
	ReadContent(ctx context.Context, params ReadContentParams) (ReadContentResult, error)
	WriteContent(ctx context.Context, params WriteContentParams) (WriteContentResult, error)
	GetContentWriter(ctx context.Context, params GetContentWriterParams) (GetContentWriterResult, error)
	RegisterAlias(ctx context.Context, params RegisterAliasParams) error
	ResolveAlias(ctx context.Context, params ResolveAliasParams) (ResolveAliasResult, error)
	ContentDriver() string
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    RequestHandler
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string) (*Server, error) {
	return &Server{
		socketPath: socketPath,
	}, nil
}

// SetHandler sets the request handler for content-store operations.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.started = time.Now()

	// Clean up socket on exit
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon listening", slog.String("socket", s.socketPath))

	// Handle shutdown
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()

	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		resp := NewErrorResponse("", ErrCodeParseError, "failed to parse request")
		_ = encoder.Encode(resp)
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())

	case MethodReadContent:
		return dispatch(ctx, s, req, func(ctx context.Context, h RequestHandler, p ReadContentParams) (ReadContentResult, error) {
			return h.ReadContent(ctx, p)
		})

	case MethodWriteContent:
		return dispatch(ctx, s, req, func(ctx context.Context, h RequestHandler, p WriteContentParams) (WriteContentResult, error) {
			return h.WriteContent(ctx, p)
		})

	case MethodGetContentWriter:
		return dispatch(ctx, s, req, func(ctx context.Context, h RequestHandler, p GetContentWriterParams) (GetContentWriterResult, error) {
			return h.GetContentWriter(ctx, p)
		})

	case MethodRegisterAlias:
		return dispatch(ctx, s, req, func(ctx context.Context, h RequestHandler, p RegisterAliasParams) (RegisterAliasResult, error) {
			if err := h.RegisterAlias(ctx, p); err != nil {
				return RegisterAliasResult{}, err
			}
			return RegisterAliasResult{OK: true}, nil
		})

	case MethodResolveAlias:
		return dispatch(ctx, s, req, func(ctx context.Context, h RequestHandler, p ResolveAliasParams) (ResolveAliasResult, error) {
			return h.ResolveAlias(ctx, p)
		})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// dispatch decodes req.Params into P, invokes fn against the server's
// handler, and shapes the result into a Response. It is generic over the
// five content-store RPCs so handleRequest stays a flat switch instead of
// five near-identical decode/invoke/encode blocks.
func dispatch[P, R any](ctx context.Context, s *Server, req Request, fn func(context.Context, RequestHandler, P) (R, error)) Response {
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no content handler configured")
	}

	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params")
	}

	var params P
	if err := json.Unmarshal(paramsData, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}

	result, err := fn(ctx, s.handler, params)
	if err != nil {
		return NewErrorResponse(req.ID, errorCode(err), err.Error())
	}

	return NewSuccessResponse(req.ID, result)
}

// errorCode maps a ferr.Error's category to a daemon-specific JSON-RPC
// error code, falling back to a generic store failure.
func errorCode(err error) int {
	if ferr.GetCategory(err) == ferr.CategoryNotFound {
		return ErrCodeContentNotFound
	}
	return ErrCodeStoreFailed
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}

	if s.handler != nil {
		status.ContentDriver = s.handler.ContentDriver()
	}

	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

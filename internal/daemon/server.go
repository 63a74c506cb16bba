package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// Server es el servidor Unix socket
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   *Handlers
	log        *slog.Logger
	conns      sync.WaitGroup
}

// Request representa una petición al daemon
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Response representa una respuesta del daemon
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewServer crea un nuevo servidor
func NewServer(socketPath string, handlers *Handlers, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   handlers,
		log:        log,
	}
}

// Start crea el socket y acepta conexiones en segundo plano
func (s *Server) Start(ctx context.Context) error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	// Limpiar socket anterior si existe
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.log.Info("server listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop acepta conexiones entrantes
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection atiende una petición por conexión
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.sendError(conn, fmt.Errorf("decode request: %w", err))
		return
	}

	s.log.Debug("request received", "action", req.Action)

	resp := s.route(ctx, req)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Warn("encode response failed", "action", req.Action, "error", err)
	}
}

func (s *Server) route(ctx context.Context, req Request) Response {
	switch req.Action {
	case "add":
		return s.handlers.HandleAdd(ctx, req.Payload)
	case "status":
		return s.handlers.HandleStatus(ctx, req.Payload)
	case "list":
		return s.handlers.HandleList(ctx, req.Payload)
	case "report":
		return s.handlers.HandleReport(ctx, req.Payload)
	case "stats":
		return s.handlers.HandleStats(ctx)
	case "ping":
		return Response{Success: true, Data: json.RawMessage(`{"message":"pong"}`)}
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

// sendError envía una respuesta de error
func (s *Server) sendError(conn net.Conn, err error) {
	json.NewEncoder(conn).Encode(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// Stop cierra el socket y espera a las conexiones abiertas
func (s *Server) Stop() error {
	s.log.Info("server stopping")
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
	return err
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"drift/internal/daemon"
	"drift/internal/events"
	"drift/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the control server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Drift", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("control server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "control clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale control socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun drift stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.RunID = status.RunID
	resp.StartedAt = events.Stamp(status.StartedAt)
	resp.ActiveProject = status.ActiveProject
	resp.CompositorConnected = status.CompositorConnected
	resp.Workspaces = make([]WorkspaceInfo, 0, len(status.Workspaces))
	for _, ws := range status.Workspaces {
		resp.Workspaces = append(resp.Workspaces, WorkspaceInfo{
			WorkspaceID:   ws.WorkspaceID,
			WorkspaceName: ws.WorkspaceName,
			Project:       ws.Project,
			Output:        ws.Output,
			IsActive:      ws.IsActive,
			IsFocused:     ws.IsFocused,
			WindowCount:   ws.WindowCount,
		})
	}
	resp.Services = status.Services
	resp.Bus = BusInfo{
		Subscribers:     status.Bus.Subscribers,
		BufferedEvents:  status.Bus.BufferedEvents,
		MalformedEvents: status.Bus.MalformedEvents,
		DroppedEvents:   status.Bus.DroppedEvents,
	}
	resp.CPUPercent = status.CPUPercent
	resp.MemoryRSS = status.MemoryRSS
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via control socket",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) OpenProject(req OpenProjectRequest, resp *OpenProjectResponse) error {
	if req.Name == "" {
		return errors.New("open requires a project name")
	}
	s.log().Debug("project open requested", logging.String(logging.FieldProject, req.Name))
	result, err := s.daemon.OpenProject(s.ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Result = result
	s.log().Info("project opened",
		logging.String(logging.FieldEventType, "project_open"),
		logging.String(logging.FieldProject, req.Name),
		logging.Int("windows", result.Windows),
		logging.Int("services", result.Services))
	return nil
}

func (s *service) CloseProject(req CloseProjectRequest, resp *CloseProjectResponse) error {
	if req.Name == "" {
		return errors.New("close requires a project name")
	}
	s.log().Debug("project close requested", logging.String(logging.FieldProject, req.Name))
	result, err := s.daemon.CloseProject(s.ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Result = result
	s.log().Info("project closed",
		logging.String(logging.FieldEventType, "project_close"),
		logging.String(logging.FieldProject, req.Name),
		logging.Int("services_stopped", result.ServicesStopped),
		logging.Int("windows_closed", result.WindowsClosed))
	return nil
}

func (s *service) RestartService(req RestartServiceRequest, resp *RestartServiceResponse) error {
	if req.Project == "" || req.Service == "" {
		return errors.New("restart requires project and service names")
	}
	if err := s.daemon.RestartService(s.ctx, req.Project, req.Service); err != nil {
		return err
	}
	resp.Restarted = true
	s.log().Info("service restarted",
		logging.String(logging.FieldEventType, "service_restart"),
		logging.String(logging.FieldProject, req.Project),
		logging.String(logging.FieldService, req.Service))
	return nil
}

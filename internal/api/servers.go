package api

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/pzmanager/internal/api/models"
	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/metrics"
	"github.com/smazurov/pzmanager/internal/process"
	"github.com/smazurov/pzmanager/internal/profiles"
)

// registerServerRoutes registers the lifecycle and console routes.
func (s *Server) registerServerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-servers",
		Method:      http.MethodGet,
		Path:        "/api/servers",
		Summary:     "List Servers",
		Description: "List configured servers and every server that currently has a process",
		Tags:        []string{"servers"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ServerListResponse, error) {
		infos := make(map[string]process.Info)
		for _, info := range s.supervisor.List() {
			infos[info.ID] = info
		}

		ids := s.profiles.Current().IDs()
		for id := range infos {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)

		servers := make([]models.ServerData, 0, len(ids))
		for _, id := range ids {
			info, ok := infos[id]
			if !ok {
				info = process.Info{ID: id, State: process.StateStopped}
			}
			servers = append(servers, s.serverData(id, info))
		}

		return &models.ServerListResponse{
			Body: models.ServerListData{
				Servers: servers,
				Count:   len(servers),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server",
		Method:      http.MethodGet,
		Path:        "/api/servers/{id}",
		Summary:     "Get Server",
		Description: "Get the state, process and roster details of one server",
		Tags:        []string{"servers"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.ServerIDInput) (*models.ServerResponse, error) {
		data, err := s.lookup(input.ID)
		if err != nil {
			return nil, err
		}
		return &models.ServerResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-server",
		Method:        http.MethodPost,
		Path:          "/api/servers/{id}/start",
		Summary:       "Start Server",
		Description:   "Launch the server from its profile. Starting a server that already has a process does nothing.",
		Tags:          []string{"servers"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404, 422, 500},
	}, func(_ context.Context, input *models.ServerIDInput) (*models.ServerResponse, error) {
		profile, err := s.profiles.Get(input.ID)
		if err != nil {
			return nil, huma.Error404NotFound("Server not configured", err)
		}
		params, err := profile.Params()
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("Invalid server profile", err)
		}

		if err := s.supervisor.Start(input.ID, profile.InstallPath, params); err != nil {
			s.logger.Error("Failed to start server", "server_id", input.ID, "error", err)
			if errors.Is(err, launch.ErrLauncherNotFound) {
				return nil, huma.Error422UnprocessableEntity("No launcher found in install path", err)
			}
			return nil, huma.Error500InternalServerError("Failed to start server", err)
		}

		return &models.ServerResponse{Body: s.serverData(input.ID, s.supervisor.Status(input.ID))}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-server",
		Method:        http.MethodPost,
		Path:          "/api/servers/{id}/stop",
		Summary:       "Stop Server",
		Description:   "Ask the server to shut down. The state becomes stopped once the process exits.",
		Tags:          []string{"servers"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404, 500},
	}, func(_ context.Context, input *models.ServerIDInput) (*models.ServerResponse, error) {
		if _, err := s.lookup(input.ID); err != nil {
			return nil, err
		}
		if err := s.supervisor.Stop(input.ID); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop server", err)
		}
		return &models.ServerResponse{Body: s.serverData(input.ID, s.supervisor.Status(input.ID))}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "send-command",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/command",
		Summary:     "Send Command",
		Description: "Write one line to the server console",
		Tags:        []string{"servers"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.CommandRequest) (*models.CommandResponse, error) {
		if err := s.send(input.ID, input.Body.Command); err != nil {
			return nil, err
		}
		return &models.CommandResponse{
			Body: models.CommandData{ServerID: input.ID, Command: input.Body.Command},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "broadcast-message",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/message",
		Summary:     "Broadcast Message",
		Description: "Show a server message to every connected player",
		Tags:        []string{"servers"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.BroadcastRequest) (*models.CommandResponse, error) {
		cmd := console.Broadcast(input.Body.Message)
		if err := s.send(input.ID, cmd); err != nil {
			return nil, err
		}
		return &models.CommandResponse{
			Body: models.CommandData{ServerID: input.ID, Command: cmd},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-world",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/save",
		Summary:     "Save World",
		Description: "Ask the server to save the world",
		Tags:        []string{"servers"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.ServerIDInput) (*models.CommandResponse, error) {
		if err := s.send(input.ID, console.CommandSave); err != nil {
			return nil, err
		}
		return &models.CommandResponse{
			Body: models.CommandData{ServerID: input.ID, Command: console.CommandSave},
		}, nil
	})
}

// lookup returns the server data for id, or 404 when id has neither a
// profile nor a process.
func (s *Server) lookup(id string) (models.ServerData, error) {
	info := s.supervisor.Status(id)
	if _, err := s.profiles.Get(id); err != nil && info.State == process.StateStopped {
		if errors.Is(err, profiles.ErrNotFound) {
			return models.ServerData{}, huma.Error404NotFound("Server not found")
		}
		return models.ServerData{}, huma.Error500InternalServerError("Failed to read profile", err)
	}
	return s.serverData(id, info), nil
}

// send writes a console command, rejecting servers without a process.
func (s *Server) send(id, command string) error {
	if s.supervisor.Status(id).State == process.StateStopped {
		return huma.Error409Conflict("Server is not running")
	}
	if err := s.supervisor.SendCommand(id, command); err != nil {
		return huma.Error500InternalServerError("Failed to send command", err)
	}
	return nil
}

// serverData merges the profile, the supervisor state and the metrics cache.
func (s *Server) serverData(id string, info process.Info) models.ServerData {
	data := models.ServerData{
		ID:        id,
		State:     info.State.String(),
		RunID:     info.RunID,
		PID:       info.PID,
		StartedAt: info.StartedAt,
		Mode:      info.Mode,
		Command:   info.Command,
	}

	if p, ok := s.profiles.Current().Get(id); ok {
		data.Configured = true
		data.InstallPath = p.InstallPath
		data.Autostart = p.Autostart
		data.ServerName = p.ServerName
		if data.ServerName == "" {
			data.ServerName = id
		}
	}

	if m := metrics.GetServerMetrics(id); m != nil {
		data.Players = m.Players
		data.StdoutLines = m.StdoutLines
		data.StderrLines = m.StderrLines
		data.ManagerLines = m.ManagerLines
	}

	return data
}

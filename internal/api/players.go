package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/pzmanager/internal/api/models"
	"github.com/smazurov/pzmanager/internal/console"
	"github.com/smazurov/pzmanager/internal/events"
)

// registerPlayerRoutes registers the roster and moderation routes.
func (s *Server) registerPlayerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-players",
		Method:      http.MethodGet,
		Path:        "/api/servers/{id}/players",
		Summary:     "List Players",
		Description: "Query the server for its connected players and wait for the roster",
		Tags:        []string{"players"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 504},
	}, func(ctx context.Context, input *models.ServerIDInput) (*models.PlayerListResponse, error) {
		roster, err := s.queryRoster(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		players := roster.Players
		if players == nil {
			players = []string{}
		}
		return &models.PlayerListResponse{
			Body: models.PlayerListData{
				ServerID:  input.ID,
				Players:   players,
				Count:     len(players),
				Timestamp: roster.Timestamp,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "kick-player",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/players/{name}/kick",
		Summary:     "Kick Player",
		Description: "Disconnect a player from the server",
		Tags:        []string{"players"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.PlayerActionRequest) (*models.CommandResponse, error) {
		cmd := console.Kick(input.Name, input.Reason())
		if err := s.send(input.ID, cmd); err != nil {
			return nil, err
		}
		return &models.CommandResponse{Body: models.CommandData{ServerID: input.ID, Command: cmd}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "ban-player",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/players/{name}/ban",
		Summary:     "Ban Player",
		Description: "Ban a player from the server",
		Tags:        []string{"players"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.PlayerActionRequest) (*models.CommandResponse, error) {
		cmd := console.Ban(input.Name, input.Reason())
		if err := s.send(input.ID, cmd); err != nil {
			return nil, err
		}
		return &models.CommandResponse{Body: models.CommandData{ServerID: input.ID, Command: cmd}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "teleport-to-player",
		Method:      http.MethodPost,
		Path:        "/api/servers/{id}/players/{name}/teleport",
		Summary:     "Teleport To Player",
		Description: "Teleport the admin character to a player",
		Tags:        []string{"players"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(_ context.Context, input *models.PlayerInput) (*models.CommandResponse, error) {
		cmd := console.TeleportTo(input.Name)
		if err := s.send(input.ID, cmd); err != nil {
			return nil, err
		}
		return &models.CommandResponse{Body: models.CommandData{ServerID: input.ID, Command: cmd}}, nil
	})
}

// queryRoster sends the players command and waits for the matching roster
// event. The subscription is made before the command is written so a fast
// reply is not missed.
func (s *Server) queryRoster(ctx context.Context, id string) (events.RosterReceivedEvent, error) {
	ch := make(chan any, 4)
	unsubscribe := events.SubscribeToChannel[events.RosterReceivedEvent](s.eventBus, ch)
	defer unsubscribe()

	if err := s.send(id, console.CommandPlayers); err != nil {
		return events.RosterReceivedEvent{}, err
	}

	timer := time.NewTimer(s.rosterWait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return events.RosterReceivedEvent{}, ctx.Err()
		case <-timer.C:
			return events.RosterReceivedEvent{}, huma.Error504GatewayTimeout("Server did not report its players in time")
		case ev := <-ch:
			if roster, ok := ev.(events.RosterReceivedEvent); ok && roster.ServerID == id {
				return roster, nil
			}
		}
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/pzmanager/internal/api/models"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/process"
)

// registerSSERoutes registers the server event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server Event Stream",
		Description: "Console lines, lifecycle transitions and rosters in the order each server produced them. " +
			"The stream opens with the current state of every running server.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"log":    events.LogReceivedEvent{},
		"status": events.StatusChangedEvent{},
		"roster": events.RosterReceivedEvent{},
	}, func(ctx context.Context, input *models.EventStreamInput, send sse.Sender) {
		eventCh := make(chan events.ServerEvent, 256)
		unsubscribe := events.SubscribeServerToChannel(s.eventBus, input.Server, eventCh)
		defer unsubscribe()

		for _, info := range s.supervisor.List() {
			if input.Server != "" && info.ID != input.Server {
				continue
			}
			if err := send.Data(snapshotEvent(info)); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func snapshotEvent(info process.Info) events.StatusChangedEvent {
	ev := events.StatusChangedEvent{
		ServerID: info.ID,
		State:    info.State.String(),
		RunID:    info.RunID,
	}
	if !info.StartedAt.IsZero() {
		ev.Timestamp = info.StartedAt.UTC().Format(timestampLayout)
	}
	return ev
}

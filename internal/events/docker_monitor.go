package events

import (
	"context"
	"strconv"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// ContainerStateEvent is published on topic app:{id} whenever the Docker
// daemon reports a lifecycle transition for a container carrying the
// ployer.app_id label (the label the fleet controller stamps every
// container it creates).
type ContainerStateEvent struct {
	ApplicationID int64  `json:"application_id"`
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name"`
	Status        string `json:"status"` // "created", "running", "stopped", "dead", "removed"
}

// DockerEventMonitor watches the Docker daemon's event stream and
// republishes container lifecycle transitions onto the Bus, generalizing
// the teacher's EventCache (which kept its own service-id map and
// broadcast directly to websocket clients) into a thin adapter feeding the
// shared bus — the websocket fan-out then lives entirely in internal/api.
type DockerEventMonitor struct {
	client *client.Client
	bus    *Bus
}

// NewDockerEventMonitor creates a monitor that publishes onto bus.
func NewDockerEventMonitor(dockerClient *client.Client, bus *Bus) *DockerEventMonitor {
	return &DockerEventMonitor{client: dockerClient, bus: bus}
}

// Start begins monitoring Docker events until ctx is cancelled.
func (m *DockerEventMonitor) Start(ctx context.Context) error {
	log.Info().Msg("starting docker event monitor")

	eventsChan, errChan := m.client.Events(ctx, events.ListOptions{})

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopping docker event monitor")
				return
			case err := <-errChan:
				if err != nil {
					log.Error().Err(err).Msg("docker events error")
				}
			case event := <-eventsChan:
				m.handleDockerEvent(event)
			}
		}
	}()

	return nil
}

func (m *DockerEventMonitor) handleDockerEvent(event events.Message) {
	if event.Type != "container" {
		return
	}

	appIDStr, ok := event.Actor.Attributes["ployer.app_id"]
	if !ok {
		return
	}

	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		log.Warn().Str("app_id", appIDStr).Msg("container carries non-numeric ployer.app_id label")
		return
	}

	status := mapDockerEventToStatus(string(event.Action))
	if status == "" {
		return
	}

	containerName := event.Actor.Attributes["name"]

	m.bus.Publish("app:"+appIDStr, ContainerStateEvent{
		ApplicationID: appID,
		ContainerID:   event.Actor.ID,
		ContainerName: containerName,
		Status:        status,
	})
}

func mapDockerEventToStatus(action string) string {
	switch action {
	case "create":
		return "created"
	case "start":
		return "running"
	case "stop":
		return "stopped"
	case "die":
		return "dead"
	case "destroy":
		return "removed"
	default:
		return ""
	}
}

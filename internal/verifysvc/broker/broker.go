package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/comm"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Broker publishes attempt events to NATS so out-of-process
// collaborators can react to verification activity. Publishing is
// best-effort; a failed publish never affects the verification result.
type Broker struct {
	Conn *nats.Conn

	publish func(subject string, data []byte) error
}

func NewBroker(nc *nats.Conn) *Broker {
	return &Broker{Conn: nc, publish: nc.Publish}
}

func (b *Broker) PublishAttempt(event comm.AttemptEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Error marshaling attempt event %s", err)
		return
	}

	if err := b.publish(comm.TopicVerifyAttempt, data); err != nil {
		log.Errorf("Error publishing attempt event %s", err)
	}
}

// StartHeartbeat announces the instance on a fixed interval until the
// context is cancelled. Run it in its own goroutine.
func (b *Broker) StartHeartbeat(ctx context.Context, instanceID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishHeartbeat(instanceID)
		}
	}
}

func (b *Broker) publishHeartbeat(instanceID string) {
	data, err := json.Marshal(comm.ServiceHeartbeat{
		ID:        instanceID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Errorf("Error marshaling heartbeat %s", err)
		return
	}

	if err := b.publish(comm.TopicServiceHeartbeat, data); err != nil {
		log.Errorf("Error publishing heartbeat %s", err)
	}
}

// PublishShutdown tells subscribers this instance is going away.
func (b *Broker) PublishShutdown(instanceID string) {
	data, err := json.Marshal(comm.ServiceShutdown{ID: instanceID})
	if err != nil {
		log.Errorf("Error marshaling shutdown notice %s", err)
		return
	}

	if err := b.publish(comm.TopicServiceShutdown, data); err != nil {
		log.Errorf("Error publishing shutdown notice %s", err)
	}
}

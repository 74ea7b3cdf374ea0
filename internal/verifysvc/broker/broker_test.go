package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/comm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

func newCaptureBroker(buf int) (*Broker, chan published) {
	out := make(chan published, buf)
	b := &Broker{publish: func(subject string, data []byte) error {
		out <- published{subject: subject, data: data}
		return nil
	}}
	return b, out
}

func TestPublishAttemptFillsEventID(t *testing.T) {
	b, out := newCaptureBroker(1)

	b.PublishAttempt(comm.AttemptEvent{CardKey: "ABC123", AttemptNumber: 1})

	msg := <-out
	assert.Equal(t, comm.TopicVerifyAttempt, msg.subject)

	var event comm.AttemptEvent
	require.NoError(t, json.Unmarshal(msg.data, &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "ABC123", event.CardKey)
}

func TestStartHeartbeatAnnouncesInstance(t *testing.T) {
	b, out := newCaptureBroker(8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.StartHeartbeat(ctx, "instance-7", 5*time.Millisecond)
		close(done)
	}()

	var msg published
	select {
	case msg = <-out:
	case <-time.After(time.Second):
		t.Fatal("no heartbeat published")
	}
	cancel()
	<-done

	assert.Equal(t, comm.TopicServiceHeartbeat, msg.subject)

	var hb comm.ServiceHeartbeat
	require.NoError(t, json.Unmarshal(msg.data, &hb))
	assert.Equal(t, "instance-7", hb.ID)
	assert.False(t, hb.Timestamp.IsZero())
}

func TestPublishShutdown(t *testing.T) {
	b, out := newCaptureBroker(1)

	b.PublishShutdown("instance-7")

	msg := <-out
	assert.Equal(t, comm.TopicServiceShutdown, msg.subject)

	var notice comm.ServiceShutdown
	require.NoError(t, json.Unmarshal(msg.data, &notice))
	assert.Equal(t, "instance-7", notice.ID)
}

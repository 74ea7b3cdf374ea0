package comm

import "time"

const (
	// TopicVerifyAttempt carries one event per recorded verification
	// attempt for out-of-process subscribers (platform dashboards,
	// pushers).
	TopicVerifyAttempt = "verify.attempt"

	// Instance liveness announcements for whoever tracks running
	// verify instances.
	TopicServiceHeartbeat = "verify.service.heartbeat"
	TopicServiceShutdown  = "verify.service.shutdown"
)

type AttemptEvent struct {
	EventID        string    `json:"event_id"`
	CardKey        string    `json:"card_key"`
	IPAddress      string    `json:"ip_address"`
	AttemptNumber  int64     `json:"attempt_number"`
	WasSuccessful  bool      `json:"was_successful"`
	DownloadLinkID *int64    `json:"download_link_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ServiceHeartbeat struct {
	ID        string    `json:"id"` // service instance id
	Timestamp time.Time `json:"timestamp"`
}

type ServiceShutdown struct {
	ID string `json:"id"` // service instance id
}

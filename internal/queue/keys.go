package queue

import (
	"fmt"

	"github.com/google/uuid"
)

func QueueKey(name string) string {
	return fmt.Sprintf("queue:%s", name)
}

func JobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func InFlightKey() string {
	return "queue:inflight"
}

func ExpandedKey(groupID uuid.UUID) string {
	return fmt.Sprintf("group:%s:expanded", groupID)
}

func RateLimitKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s", clientKey)
}

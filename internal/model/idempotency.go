package model

import (
	"encoding/json"
	"time"
)

// IdempotencyStatus is the lifecycle state of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord guards one client request key. It is created in
// processing state and completed once with the final response.
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	StatusCode   int               `json:"statusCode,omitempty"`
	ResponseBody json.RawMessage   `json:"responseBody,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	TTLSeconds   int64             `json:"ttl"`
}

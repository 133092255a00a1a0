package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Engine names accepted on the generation-request topic.
const (
	EngineConsolidated = "consolidated"
	EngineNominee      = "nominee"
)

// GenerationRequest is the payload of a document-generation request
// message. Consolidated requests carry an explicit account set; nominee
// requests carry an optional filter over the day's transaction feed.
type GenerationRequest struct {
	Engine            string  `json:"engine"`
	RTAID             int64   `json:"rta_id"`
	AccountIDs        []int64 `json:"account_ids,omitempty"`
	Date              string  `json:"date,omitempty"` // YYYY-MM-DD, nominee only
	AccountID         *int64  `json:"account_id,omitempty"`
	ServiceProviderID *int64  `json:"service_provider_id,omitempty"`
}

// Validate checks the request is dispatchable.
func (r *GenerationRequest) Validate() error {
	switch r.Engine {
	case EngineConsolidated:
		if len(r.AccountIDs) == 0 {
			return fmt.Errorf("kafka: consolidated request has no account ids")
		}
	case EngineNominee:
		if r.Date != "" {
			if _, err := time.Parse("2006-01-02", r.Date); err != nil {
				return fmt.Errorf("kafka: invalid request date %q: %w", r.Date, err)
			}
		}
	default:
		return fmt.Errorf("kafka: unknown engine %q", r.Engine)
	}
	if r.RTAID == 0 {
		return fmt.Errorf("kafka: request has no registrar id")
	}
	return nil
}

// IncomingMessage wraps a raw Kafka message with parsed headers.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Request *GenerationRequest
}

// ParseRequest parses the message value as a generation request.
func (m *IncomingMessage) ParseRequest() error {
	var req GenerationRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	m.Request = &req
	return nil
}

package ingest

import (
	"context"
	"encoding/json"

	"example.com/commitcollect/internal/consumer"
	"example.com/commitcollect/internal/domain"
)

// KafkaHandler adapts the pipeline to the consumer loop.
type KafkaHandler struct {
	pipeline *Pipeline
}

// NewKafkaHandler builds the handler.
func NewKafkaHandler(pipeline *Pipeline) *KafkaHandler {
	return &KafkaHandler{pipeline: pipeline}
}

// Handle decodes the normalized provider event and runs it through the
// pipeline. Decode failures are terminal; reporting success lets the consumer
// commit past them instead of redelivering a payload that can never decode.
func (h *KafkaHandler) Handle(ctx context.Context, msg consumer.Message) error {
	var event domain.ProviderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.pipeline.logger.Printf("dropping undecodable provider event (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		return nil
	}
	return h.pipeline.Process(ctx, event)
}

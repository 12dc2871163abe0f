package signal

import (
	"encoding/json"
	"fmt"

	"streamhub/internal/core/domain"
	apperrors "streamhub/pkg/errors"
	"streamhub/pkg/validation"
)

// Envelope is an inbound client message before its payload is decoded.
type Envelope struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type StreamPayload struct {
	StreamID domain.StreamID `json:"streamId" validate:"required,streamid"`
}

type ChatPayload struct {
	StreamID domain.StreamID `json:"streamId" validate:"required,streamid"`
	Message  string          `json:"message"`
}

type MediaPayload struct {
	StreamID   domain.StreamID `json:"streamId" validate:"required,streamid"`
	ProducerID string          `json:"producerId" validate:"max=128"`
	ConsumerID string          `json:"consumerId" validate:"max=128"`
	Kind       string          `json:"kind" validate:"omitempty,oneof=audio video"`
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: message type is required", domain.ErrInvalidPayload)
	}
	return env, nil
}

// decodePayload unmarshals env's payload into dst and runs its
// validate tags. Validation messages are passed to the client as-is.
func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		env.Payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := validation.Struct(dst); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return nil
}

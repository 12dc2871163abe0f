package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StreamID identifies a stream and therefore its chat/presence room.
// Clients send it either as a JSON number or a string; both decode to
// the same id, and numeric ids are encoded back as numbers.
type StreamID string

func (id StreamID) String() string { return string(id) }

func (id StreamID) MarshalJSON() ([]byte, error) {
	return marshalFlexibleID(string(id))
}

func (id *StreamID) UnmarshalJSON(data []byte) error {
	s, err := unmarshalFlexibleID(data)
	if err != nil {
		return fmt.Errorf("stream id: %w", err)
	}
	*id = StreamID(s)
	return nil
}

func marshalFlexibleID(s string) ([]byte, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func unmarshalFlexibleID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", ErrInvalidPayload
	}
	if _, err := n.Int64(); err != nil {
		return "", ErrInvalidPayload
	}
	return n.String(), nil
}

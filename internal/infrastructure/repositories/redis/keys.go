package redis

import (
	"fmt"

	"streamhub/internal/core/domain"
)

const (
	keyPrefix        = "streamhub:"
	chatSeqKey       = keyPrefix + "chat:seq"
	viewerCountsKey  = keyPrefix + "viewers"
	schemaVersionKey = keyPrefix + "schema:version"
	migrationLockKey = keyPrefix + "lock:migrations"
)

func chatKey(streamID domain.StreamID) string {
	return fmt.Sprintf("%sstream:%s:chat", keyPrefix, streamID)
}

func userKey(id domain.UserID) string {
	return keyPrefix + "user:" + string(id)
}

package services

import (
	"time"

	"streamhub/internal/core/domain"
)

// NopMetrics discards all instrumentation.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                                      {}
func (NopMetrics) ConnectionClosed(bool)                                  {}
func (NopMetrics) ConnectionAuthenticated()                               {}
func (NopMetrics) RoomViewers(domain.StreamID, int)                       {}
func (NopMetrics) MessageHandled(domain.EventType, string, time.Duration) {}
func (NopMetrics) ChatMessagePersisted(domain.MessageKind)                {}
func (NopMetrics) FramesDropped(int)                                      {}
func (NopMetrics) PersistenceFailed(string)                               {}

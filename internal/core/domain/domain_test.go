package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "streamhub/pkg/errors"
)

func TestStreamID_AcceptsNumberOrString(t *testing.T) {
	var payload struct {
		StreamID StreamID `json:"streamId"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"streamId":7}`), &payload))
	assert.Equal(t, StreamID("7"), payload.StreamID)

	require.NoError(t, json.Unmarshal([]byte(`{"streamId":" 7 "}`), &payload))
	assert.Equal(t, StreamID("7"), payload.StreamID)

	require.NoError(t, json.Unmarshal([]byte(`{"streamId":"launch"}`), &payload))
	assert.Equal(t, StreamID("launch"), payload.StreamID)

	assert.Error(t, json.Unmarshal([]byte(`{"streamId":7.5}`), &payload))
	assert.Error(t, json.Unmarshal([]byte(`{"streamId":true}`), &payload))
}

func TestStreamID_EncodesNumericAsNumber(t *testing.T) {
	out, err := json.Marshal(ViewerCountPayload{StreamID: "7", ViewerCount: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"streamId":7,"viewerCount":2}`, string(out))

	out, err = json.Marshal(ViewerCountPayload{StreamID: "007", ViewerCount: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"streamId":"007","viewerCount":0}`, string(out))
}

func TestEvent_EncodeEmptyPayload(t *testing.T) {
	out, err := NewEvent(EventPong, nil).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","payload":{}}`, string(out))
}

func TestRole(t *testing.T) {
	assert.True(t, RoleAdmin.IsPrivileged())
	assert.True(t, RoleOperator.IsPrivileged())
	assert.False(t, RoleViewer.IsPrivileged())
	assert.False(t, Role("owner").Valid())
	assert.True(t, RoleViewer.OneOf(RoleAdmin, RoleViewer))
}

func TestParticipantHandle_Rooms(t *testing.T) {
	h := NewParticipantHandle("c1", Identity{UserID: "1"}, time.Now())
	h.JoinRoom("9")
	h.JoinRoom("7")
	h.JoinRoom("7")

	assert.Equal(t, []StreamID{"7", "9"}, h.RoomIDs())
	assert.True(t, h.InRoom("7"))

	h.LeaveRoom("7")
	h.LeaveRoom("7")
	assert.False(t, h.InRoom("7"))
	assert.True(t, h.InAnyRoom())
}

func TestIsViolation(t *testing.T) {
	assert.True(t, IsViolation(fmt.Errorf("chat: %w", ErrNotInRoom)))
	assert.True(t, IsViolation(ErrInsufficientRole))
	assert.False(t, IsViolation(ErrEmptyMessage))
	assert.False(t, IsViolation(ErrPersistence))
}

func TestToAppError_ClientMessages(t *testing.T) {
	cases := []struct {
		err  error
		code apperrors.ErrorCode
		msg  string
	}{
		{fmt.Errorf("verify: %w", ErrInvalidToken), apperrors.ErrCodeUnauthorized, "invalid token"},
		{ErrIdentityNotFound, apperrors.ErrCodeUnauthorized, "invalid token"},
		{ErrExpiredToken, apperrors.ErrCodeUnauthorized, "token expired"},
		{ErrNotAuthenticated, apperrors.ErrCodeUnauthorized, "authentication required"},
		{ErrInsufficientRole, apperrors.ErrCodeForbidden, "insufficient rights"},
		{ErrEmptyMessage, apperrors.ErrCodeInvalidInput, "message cannot be empty"},
		{ErrRateLimited, apperrors.ErrCodeRateLimit, "rate limit exceeded"},
	}
	for _, tc := range cases {
		appErr := ToAppError(tc.err)
		assert.Equal(t, tc.code, appErr.Code, tc.err.Error())
		assert.Equal(t, tc.msg, appErr.Message)
	}
}

func TestToAppError_HidesStoreDetails(t *testing.T) {
	storeErr := errors.New("pq: relation chat_messages does not exist")
	appErr := ToAppError(fmt.Errorf("%w: %w", ErrPersistence, storeErr))

	assert.NotContains(t, appErr.Message, "chat_messages")
	assert.ErrorIs(t, appErr, storeErr)

	generic := ToAppError(errors.New("boom"))
	assert.Equal(t, apperrors.ErrCodeInternal, generic.Code)
	assert.Equal(t, "internal error", generic.Message)
}

func TestToAppError_PassesThroughAppErrors(t *testing.T) {
	in := apperrors.NewInvalidInputError("streamid is required")
	assert.Same(t, in, ToAppError(fmt.Errorf("join: %w", in)))
}

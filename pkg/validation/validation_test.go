package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStreamID(t *testing.T) {
	assert.NoError(t, ValidateStreamID("7"))
	assert.NoError(t, ValidateStreamID("launch-day_2"))
	assert.Error(t, ValidateStreamID(""))
	assert.Error(t, ValidateStreamID("has space"))
	assert.Error(t, ValidateStreamID(strings.Repeat("a", 101)))
}

func TestStruct_TranslatesTags(t *testing.T) {
	type joinRequest struct {
		StreamID string `validate:"required,streamid"`
		Kind     string `validate:"omitempty,oneof=audio video"`
	}

	assert.NoError(t, Struct(joinRequest{StreamID: "42"}))
	assert.EqualError(t, Struct(joinRequest{}), "streamid is required")
	assert.EqualError(t, Struct(joinRequest{StreamID: "a b"}), "invalid streamid format")
	assert.EqualError(t, Struct(joinRequest{StreamID: "1", Kind: "data"}), "kind must be one of: audio video")
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("ws://localhost:8081/ws"))
	assert.NoError(t, ValidateURL("https://example.com"))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("ws://"))
	assert.Error(t, ValidateURL(""))
}

func TestValidateStringLength_CountsRunes(t *testing.T) {
	assert.NoError(t, ValidateStringLength("ééé", 1, 3, "message"))
	assert.EqualError(t, ValidateStringLength("éééé", 1, 3, "message"), "message is too long (max 3 characters)")
	assert.Error(t, ValidateStringLength("", 1, 3, "message"))
}

func TestValidateNonEmptyString(t *testing.T) {
	assert.Error(t, ValidateNonEmptyString("   \n\t", "message"))
	assert.NoError(t, ValidateNonEmptyString(" hi ", "message"))
}

// Package errors provides structured error handling with user-facing messages.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Auth errors
	CodeAuthRequired          Code = "AUTH_REQUIRED"
	CodeAuthInvalidToken      Code = "AUTH_INVALID_TOKEN"
	CodeAuthInvalidCredential Code = "AUTH_INVALID_CREDENTIAL"
	CodeAuthUsernameTaken     Code = "AUTH_USERNAME_TAKEN"
	CodeAuthUsernameInvalid   Code = "AUTH_USERNAME_INVALID"
	CodeAuthGuestForbidden    Code = "AUTH_GUEST_FORBIDDEN"

	// Campaign errors
	CodeCampaignNameEmpty       Code = "CAMPAIGN_NAME_EMPTY"
	CodeCampaignInviteInvalid   Code = "CAMPAIGN_INVITE_INVALID"
	CodeCampaignSettingsInvalid Code = "CAMPAIGN_SETTINGS_INVALID"
	CodeCampaignGMRequired      Code = "CAMPAIGN_GM_REQUIRED"
	CodeCampaignMemberRequired  Code = "CAMPAIGN_MEMBER_REQUIRED"
	CodeCampaignMemberKicked    Code = "CAMPAIGN_MEMBER_KICKED"
	CodeCampaignInvalidStatus   Code = "CAMPAIGN_INVALID_MEMBER_STATUS"
	CodeCampaignFull            Code = "CAMPAIGN_FULL"

	// Character errors
	CodeCharacterNameEmpty    Code = "CHARACTER_NAME_EMPTY"
	CodeCharacterSheetInvalid Code = "CHARACTER_SHEET_INVALID"
	CodeCharacterRequired     Code = "CHARACTER_REQUIRED"

	// Profile errors
	CodeProfileKeyInvalid Code = "PROFILE_KEY_INVALID"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeConflict      Code = "CONFLICT"

	// Dice errors
	CodeDiceFormulaInvalid Code = "DICE_FORMULA_INVALID"

	// Chat errors
	CodeChatBodyEmpty   Code = "CHAT_BODY_EMPTY"
	CodeChatBodyTooLong Code = "CHAT_BODY_TOO_LONG"

	// Realtime errors
	CodeRealtimeUnavailable Code = "REALTIME_UNAVAILABLE"
	CodeNetLinkUnavailable  Code = "NETLINK_UNAVAILABLE"

	// Archive errors
	CodeArchiveDisabled Code = "ARCHIVE_DISABLED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, bad input
	case CodeAuthUsernameInvalid,
		CodeCampaignNameEmpty,
		CodeCampaignInviteInvalid,
		CodeCampaignSettingsInvalid,
		CodeCampaignInvalidStatus,
		CodeCharacterNameEmpty,
		CodeCharacterSheetInvalid,
		CodeCharacterRequired,
		CodeProfileKeyInvalid,
		CodeDiceFormulaInvalid,
		CodeChatBodyEmpty,
		CodeChatBodyTooLong:
		return http.StatusBadRequest

	case CodeAuthRequired,
		CodeAuthInvalidToken,
		CodeAuthInvalidCredential:
		return http.StatusUnauthorized

	case CodeAuthGuestForbidden,
		CodeCampaignGMRequired,
		CodeCampaignMemberRequired,
		CodeCampaignMemberKicked:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeAuthUsernameTaken,
		CodeCampaignFull,
		CodeConflict:
		return http.StatusConflict

	case CodeQuotaExceeded:
		return http.StatusRequestEntityTooLarge

	case CodeRealtimeUnavailable,
		CodeNetLinkUnavailable,
		CodeArchiveDisabled:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

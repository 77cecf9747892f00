package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/jsonschema"
)

// Settings is the typed view of a campaign settings blob.
type Settings struct {
	Description     string            `json:"description,omitempty"`
	MaxPlayers      int               `json:"max_players,omitempty"`
	RequireApproval bool              `json:"require_approval,omitempty"`
	Initiative      []InitiativeEntry `json:"initiative,omitempty"`
	Music           *MusicState       `json:"music,omitempty"`
}

// InitiativeEntry is one row of the GM's initiative tracker.
type InitiativeEntry struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	NPC   bool   `json:"npc,omitempty"`
}

// MusicState is the track the GM is playing for the table.
type MusicState struct {
	Track   string `json:"track"`
	Playing bool   `json:"playing"`
}

const settingsSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "description": {"type": "string", "maxLength": 2000},
    "max_players": {"type": "integer", "minimum": 0, "maximum": 12},
    "require_approval": {"type": "boolean"},
    "initiative": {
      "type": "array",
      "maxItems": 64,
      "items": {
        "type": "object",
        "required": ["name", "value"],
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 80},
          "value": {"type": "integer"},
          "npc": {"type": "boolean"}
        }
      }
    },
    "music": {
      "type": "object",
      "required": ["track"],
      "properties": {
        "track": {"type": "string", "maxLength": 500},
        "playing": {"type": "boolean"}
      }
    }
  }
}`

var settingsSchema = jsonschema.MustCompile("campaign settings", []byte(settingsSchemaJSON))

// DefaultSettings returns the settings blob of a new campaign.
func DefaultSettings() json.RawMessage {
	return json.RawMessage(`{"max_players":6}`)
}

// NormalizeSettings validates raw against the settings schema. Empty input
// yields DefaultSettings.
func NormalizeSettings(raw json.RawMessage) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return DefaultSettings(), nil
	}
	if err := settingsSchema.Validate(raw); err != nil {
		var verr *jsonschema.ValidationError
		reason := err.Error()
		if errors.As(err, &verr) {
			reason = strings.Join(verr.Violations, "; ")
		}
		return nil, &apperrors.Error{
			Code:     apperrors.CodeCampaignSettingsInvalid,
			Message:  fmt.Sprintf("campaign settings invalid: %s", reason),
			Metadata: map[string]string{"Reason": reason},
			Cause:    err,
		}
	}
	return raw, nil
}

// DecodeSettings parses a stored settings blob.
func DecodeSettings(raw json.RawMessage) (Settings, error) {
	var settings Settings
	if len(raw) == 0 {
		raw = DefaultSettings()
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("decode campaign settings: %w", err)
	}
	return settings, nil
}

package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zenite-os/zenite/internal/dice"
	"github.com/zenite-os/zenite/internal/platform/jsonschema"
)

const sheetSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "archetype", "level", "attributes"],
  "properties": {
    "id": {"type": "string", "pattern": "^[A-Za-z0-9_-]{1,64}$"},
    "owner_id": {"type": "string"},
    "name": {"type": "string", "minLength": 1, "maxLength": 60},
    "archetype": {"type": "string", "minLength": 1},
    "level": {"type": "integer", "minimum": 1, "maximum": 20},
    "attributes": {
      "type": "object",
      "required": ["strength", "agility", "intellect", "willpower", "presence"],
      "additionalProperties": false,
      "properties": {
        "strength": {"$ref": "#/definitions/attribute"},
        "agility": {"$ref": "#/definitions/attribute"},
        "intellect": {"$ref": "#/definitions/attribute"},
        "willpower": {"$ref": "#/definitions/attribute"},
        "presence": {"$ref": "#/definitions/attribute"}
      }
    },
    "resources": {
      "type": "object",
      "properties": {
        "hp": {"$ref": "#/definitions/pool"},
        "energy": {"$ref": "#/definitions/pool"},
        "sanity": {"$ref": "#/definitions/pool"}
      }
    },
    "inventory": {
      "type": "object",
      "properties": {
        "weapons": {"type": ["array", "null"], "items": {"type": "object", "required": ["name"]}},
        "armor": {"type": ["array", "null"], "items": {"type": "object", "required": ["name"]}},
        "gear": {"type": ["array", "null"], "items": {"type": "object", "required": ["name"]}},
        "social": {"type": ["array", "null"], "items": {"type": "object", "required": ["name"]}}
      }
    },
    "skills": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name", "rank"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "rank": {"type": "integer", "minimum": 0, "maximum": 10}
        }
      }
    },
    "powers": {
      "type": ["array", "null"],
      "items": {"type": "object", "required": ["name"]}
    },
    "notes": {"type": "string", "maxLength": 20000}
  },
  "definitions": {
    "attribute": {"type": "integer", "minimum": -1, "maximum": 5},
    "pool": {
      "type": "object",
      "required": ["current", "max"],
      "properties": {
        "current": {"type": "integer", "minimum": 0},
        "max": {"type": "integer", "minimum": 0},
        "temp": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var sheetSchema = jsonschema.MustCompile("character sheet", []byte(sheetSchemaJSON))

// ValidateSheet checks a JSON sheet against the sheet schema and the weapon
// damage formulas.
func ValidateSheet(raw json.RawMessage) error {
	if err := sheetSchema.Validate(raw); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return sheetError(strings.Join(verr.Violations, "; "))
		}
		return sheetError(err.Error())
	}
	var c Character
	if err := json.Unmarshal(raw, &c); err != nil {
		return sheetError(err.Error())
	}
	for _, w := range c.Inventory.Weapons {
		if strings.TrimSpace(w.Damage) == "" {
			continue
		}
		if _, err := dice.ParseFormula(w.Damage); err != nil {
			return sheetError(fmt.Sprintf("weapon %s damage %q: %v", w.Name, w.Damage, err))
		}
	}
	return nil
}

// DecodeSheet validates and parses a JSON sheet.
func DecodeSheet(raw json.RawMessage) (Character, error) {
	if err := ValidateSheet(raw); err != nil {
		return Character{}, err
	}
	var c Character
	if err := json.Unmarshal(raw, &c); err != nil {
		return Character{}, fmt.Errorf("decode character sheet: %w", err)
	}
	return c, nil
}

// EncodeSheet renders c as a JSON sheet.
func EncodeSheet(c Character) (json.RawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode character sheet: %w", err)
	}
	return data, nil
}

// Package character models Zenite character sheets: the five attribute axes,
// the resource pools derived from them, inventory, skills and powers.
package character

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/id"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxNameLength bounds character names in runes.
	MaxNameLength = 60
	// MaxLevel is the highest character level.
	MaxLevel = 20
	// MinAttribute and MaxAttribute bound each attribute axis.
	MinAttribute = -1
	MaxAttribute = 5
	// WizardAttributePoints is the point budget spread across attributes at creation.
	WizardAttributePoints = 8
	// InactivityWindow is how long an untouched character is retained.
	InactivityWindow = 180 * 24 * time.Hour
)

var (
	// ErrEmptyName indicates a missing character name.
	ErrEmptyName = apperrors.New(apperrors.CodeCharacterNameEmpty, "character name is required")
)

// Attribute names.
const (
	AttrStrength  = "strength"
	AttrAgility   = "agility"
	AttrIntellect = "intellect"
	AttrWillpower = "willpower"
	AttrPresence  = "presence"
)

// Attributes is the five-axis attribute block.
type Attributes struct {
	Strength  int `json:"strength"`
	Agility   int `json:"agility"`
	Intellect int `json:"intellect"`
	Willpower int `json:"willpower"`
	Presence  int `json:"presence"`
}

// Get returns the named attribute, or zero for unknown names.
func (a Attributes) Get(name string) int {
	switch name {
	case AttrStrength:
		return a.Strength
	case AttrAgility:
		return a.Agility
	case AttrIntellect:
		return a.Intellect
	case AttrWillpower:
		return a.Willpower
	case AttrPresence:
		return a.Presence
	default:
		return 0
	}
}

// Sum totals all five axes.
func (a Attributes) Sum() int {
	return a.Strength + a.Agility + a.Intellect + a.Willpower + a.Presence
}

// AttributeNames lists the axes in sheet order.
var AttributeNames = []string{AttrStrength, AttrAgility, AttrIntellect, AttrWillpower, AttrPresence}

func isAttributeName(name string) bool {
	switch name {
	case AttrStrength, AttrAgility, AttrIntellect, AttrWillpower, AttrPresence:
		return true
	default:
		return false
	}
}

// Pool is a current/max/temporary resource triple.
type Pool struct {
	Current int `json:"current"`
	Max     int `json:"max"`
	Temp    int `json:"temp,omitempty"`
}

// Clamp keeps Current within [0, Max] and Temp non-negative.
func (p Pool) Clamp() Pool {
	if p.Max < 0 {
		p.Max = 0
	}
	if p.Current > p.Max {
		p.Current = p.Max
	}
	if p.Current < 0 {
		p.Current = 0
	}
	if p.Temp < 0 {
		p.Temp = 0
	}
	return p
}

// Resources are the derived pools.
type Resources struct {
	HP     Pool `json:"hp"`
	Energy Pool `json:"energy"`
	Sanity Pool `json:"sanity"`
}

// Weapon is an attack entry with a dice formula such as "2D6+1".
type Weapon struct {
	Name   string `json:"name"`
	Damage string `json:"damage"`
	Notes  string `json:"notes,omitempty"`
}

// Armor reduces incoming damage.
type Armor struct {
	Name    string `json:"name"`
	Defense int    `json:"defense"`
}

// Item is a gear or social inventory entry.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Inventory groups the four inventory lists.
type Inventory struct {
	Weapons []Weapon `json:"weapons"`
	Armor   []Armor  `json:"armor"`
	Gear    []Item   `json:"gear"`
	Social  []Item   `json:"social"`
}

// Skill is a trained skill keyed to an attribute.
type Skill struct {
	Name      string `json:"name"`
	Attribute string `json:"attribute"`
	Rank      int    `json:"rank"`
}

// Power is a superhuman ability.
type Power struct {
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Description string `json:"description,omitempty"`
}

// Character is a full character sheet.
type Character struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id,omitempty"`
	Name       string     `json:"name"`
	Archetype  string     `json:"archetype"`
	Level      int        `json:"level"`
	Attributes Attributes `json:"attributes"`
	Resources  Resources  `json:"resources"`
	Inventory  Inventory  `json:"inventory"`
	Skills     []Skill    `json:"skills"`
	Powers     []Power    `json:"powers"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// WizardInput is what the guided creation wizard collects.
type WizardInput struct {
	OwnerID    string
	Name       string
	Archetype  string
	Attributes Attributes
}

// Create builds a level 1 character from wizard input with full pools.
func Create(input WizardInput, now func() time.Time, idGenerator func() (string, error)) (Character, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	name, err := NormalizeName(input.Name)
	if err != nil {
		return Character{}, err
	}
	archetype, ok := LookupArchetype(input.Archetype)
	if !ok {
		return Character{}, sheetError(fmt.Sprintf("unknown archetype %q", input.Archetype))
	}
	if err := validateAttributes(input.Attributes); err != nil {
		return Character{}, err
	}
	if spent := input.Attributes.Sum(); spent > WizardAttributePoints {
		return Character{}, sheetError(fmt.Sprintf("attributes spend %d points, budget is %d", spent, WizardAttributePoints))
	}

	characterID, err := idGenerator()
	if err != nil {
		return Character{}, fmt.Errorf("generate character id: %w", err)
	}

	createdAt := now().UTC()
	c := Character{
		ID:         characterID,
		OwnerID:    strings.TrimSpace(input.OwnerID),
		Name:       name,
		Archetype:  archetype.ID,
		Level:      1,
		Attributes: input.Attributes,
		Inventory:  Inventory{Weapons: []Weapon{}, Armor: []Armor{}, Gear: []Item{}, Social: []Item{}},
		Skills:     []Skill{},
		Powers:     []Power{},
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	c = Derive(c)
	c.Resources.HP.Current = c.Resources.HP.Max
	c.Resources.Energy.Current = c.Resources.Energy.Max
	c.Resources.Sanity.Current = c.Resources.Sanity.Max
	return c, nil
}

// NormalizeName trims, NFC-normalizes and bounds a character name.
func NormalizeName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrEmptyName
	}
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	return name, nil
}

// Derive recomputes pool maximums from archetype, attributes and level, and
// clamps current values. Unknown archetypes leave maximums untouched.
func Derive(c Character) Character {
	if archetype, ok := LookupArchetype(c.Archetype); ok {
		c.Resources.HP.Max = archetype.HP.max(c.Attributes, c.Level)
		c.Resources.Energy.Max = archetype.Energy.max(c.Attributes, c.Level)
		c.Resources.Sanity.Max = archetype.Sanity.max(c.Attributes, c.Level)
	}
	c.Resources.HP = c.Resources.HP.Clamp()
	c.Resources.Energy = c.Resources.Energy.Clamp()
	c.Resources.Sanity = c.Resources.Sanity.Clamp()
	return c
}

// Touch marks the character as edited at now.
func Touch(c Character, now time.Time) Character {
	c.UpdatedAt = now.UTC()
	return c
}

// IsInactive reports whether the character has gone untouched for the
// inactivity window. A zero UpdatedAt falls back to CreatedAt.
func IsInactive(c Character, now time.Time) bool {
	last := c.UpdatedAt
	if last.IsZero() {
		last = c.CreatedAt
	}
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= InactivityWindow
}

// InactiveCutoff is the oldest UpdatedAt still retained at now.
func InactiveCutoff(now time.Time) time.Time {
	return now.Add(-InactivityWindow)
}

func validateAttributes(a Attributes) error {
	for _, name := range AttributeNames {
		if v := a.Get(name); v < MinAttribute || v > MaxAttribute {
			return sheetError(fmt.Sprintf("attribute %s must be between %d and %d", name, MinAttribute, MaxAttribute))
		}
	}
	return nil
}

func sheetError(reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeCharacterSheetInvalid,
		"character sheet invalid: "+reason,
		map[string]string{"Reason": reason},
	)
}

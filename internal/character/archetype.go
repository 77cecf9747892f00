package character

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed archetypes.yaml
var archetypeCatalogYAML []byte

// PoolRule derives a pool maximum from an attribute and the character level.
type PoolRule struct {
	Base      int    `yaml:"base"`
	Attribute string `yaml:"attribute"`
	PerPoint  int    `yaml:"per_point"`
	PerLevel  int    `yaml:"per_level"`
}

// Archetype is a character class offered by the wizard.
type Archetype struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Primary string   `yaml:"primary"`
	HP      PoolRule `yaml:"hp"`
	Energy  PoolRule `yaml:"energy"`
	Sanity  PoolRule `yaml:"sanity"`
}

type archetypeCatalog struct {
	Archetypes []Archetype `yaml:"archetypes"`
}

var loadArchetypes = sync.OnceValues(func() (map[string]Archetype, error) {
	return parseArchetypes(archetypeCatalogYAML)
})

func parseArchetypes(data []byte) (map[string]Archetype, error) {
	var catalog archetypeCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse archetype catalog: %w", err)
	}
	byID := make(map[string]Archetype, len(catalog.Archetypes))
	for _, a := range catalog.Archetypes {
		for _, rule := range []PoolRule{a.HP, a.Energy, a.Sanity} {
			if !isAttributeName(rule.Attribute) {
				return nil, fmt.Errorf("archetype %s: unknown attribute %q", a.ID, rule.Attribute)
			}
		}
		byID[a.ID] = a
	}
	return byID, nil
}

// LookupArchetype finds an archetype by id, case-insensitively.
func LookupArchetype(archetypeID string) (Archetype, bool) {
	catalog, err := loadArchetypes()
	if err != nil {
		return Archetype{}, false
	}
	a, ok := catalog[strings.ToLower(strings.TrimSpace(archetypeID))]
	return a, ok
}

// Archetypes lists the catalog ordered by id.
func Archetypes() []Archetype {
	catalog, err := loadArchetypes()
	if err != nil {
		return nil
	}
	out := make([]Archetype, 0, len(catalog))
	for _, a := range catalog {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r PoolRule) max(attrs Attributes, level int) int {
	if level < 1 {
		level = 1
	}
	v := r.Base + attrs.Get(r.Attribute)*r.PerPoint + (level-1)*r.PerLevel
	if v < 1 {
		return 1
	}
	return v
}

package matcher

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

// Entity is one legal entity of the group
type Entity struct {
	ProfileID int64    `yaml:"profile_id" json:"profile_id"`
	Name      string   `yaml:"name" json:"name"`
	Country   string   `yaml:"country" json:"country"`
	Accounts  []string `yaml:"accounts,omitempty" json:"accounts,omitempty"`

	// SubsidiaryID is the entity's ledger subsidiary; empty when unknown
	SubsidiaryID string `yaml:"subsidiary_id,omitempty" json:"subsidiary_id,omitempty"`
}

// EntityAccount identifies the owner of a known bank account
type EntityAccount struct {
	EntityName string
	ProfileID  int64
}

type entityPattern struct {
	re     *regexp.Regexp
	entity Entity
}

// EntityRegistry is an immutable lookup of group entities and their bank
// accounts. Registering an account returns a new registry, so a registry can
// be shared between goroutines without locking.
type EntityRegistry struct {
	entities []Entity
	byName   map[string]Entity
	accounts map[string]EntityAccount
	patterns []entityPattern
}

// DefaultEntities is the group structure used when no registry file is configured
func DefaultEntities() []Entity {
	return []Entity{
		{ProfileID: 19941830, Name: "Phygrid Limited", Country: "UK"},
		{ProfileID: 76219117, Name: "Phygrid S.A.", Country: "Luxembourg"},
		{ProfileID: 70350947, Name: "Phygrid Inc", Country: "US"},
		{ProfileID: 52035101, Name: "PHYGRID AB (PUBL)", Country: "Sweden"},
		{ProfileID: 78680339, Name: "Ombori, Inc", Country: "US"},
		{ProfileID: 47253364, Name: "Ombori AG", Country: "Switzerland"},
		{ProfileID: 25587793, Name: "Fendops Limited", Country: "UK"},
		{ProfileID: 21069793, Name: "Fendops Kft", Country: "Hungary"},
		{ProfileID: 66668662, Name: "NEXORA AB", Country: "Sweden"},
		{ProfileID: 49911299, Name: "Ombori Services Limited", Country: "Hong Kong"},
		{ProfileID: 52034148, Name: "OMBORI GROUP SWEDEN AB", Country: "Sweden"},
	}
}

// DefaultEntityRegistry builds a registry from DefaultEntities
func DefaultEntityRegistry() *EntityRegistry {
	registry, err := NewEntityRegistry(DefaultEntities())
	if err != nil {
		panic(fmt.Sprintf("default entity registry is invalid: %v", err))
	}
	return registry
}

// NewEntityRegistry builds a registry. Accounts listed on an entity are
// registered against it. Entity order is kept for pattern matching.
func NewEntityRegistry(entities []Entity) (*EntityRegistry, error) {
	r := &EntityRegistry{
		entities: make([]Entity, 0, len(entities)),
		byName:   make(map[string]Entity, len(entities)),
		accounts: make(map[string]EntityAccount),
	}

	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("entity %d has no name", e.ProfileID)
		}
		e.Name = name
		key := strings.ToLower(name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate entity name %q", name)
		}

		r.entities = append(r.entities, e)
		r.byName[key] = e
		r.patterns = append(r.patterns, entityPattern{re: entityNamePattern(name), entity: e})
		for _, account := range e.Accounts {
			r.accounts[NormalizeAccount(account)] = EntityAccount{EntityName: name, ProfileID: e.ProfileID}
		}
	}
	return r, nil
}

type registryFile struct {
	Entities []Entity `yaml:"entities"`
}

// LoadEntityRegistry reads a YAML registry file of the form
//
//	entities:
//	  - profile_id: 19941830
//	    name: Phygrid Limited
//	    country: UK
//	    subsidiary_id: "3"
//	    accounts: ["GB29 NWBK 6016 1331 9268 19"]
func LoadEntityRegistry(path string) (*EntityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity registry: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity registry %s: %w", path, err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("entity registry %s lists no entities", path)
	}
	return NewEntityRegistry(file.Entities)
}

// entityNamePattern matches the common ways a bank renders an entity name:
// with spaces, dots or commas dropped and with Limited/Inc abbreviated or expanded.
func entityNamePattern(name string) *regexp.Regexp {
	variants := []string{
		name,
		strings.ReplaceAll(name, " ", ""),
		strings.ReplaceAll(name, ".", ""),
		strings.ReplaceAll(name, ",", ""),
	}
	if strings.Contains(name, "Limited") {
		variants = append(variants, strings.ReplaceAll(name, "Limited", "Ltd"))
	}
	if strings.Contains(name, "Inc") {
		variants = append(variants, strings.ReplaceAll(name, "Inc", "Incorporated"))
	}

	quoted := make([]string, len(variants))
	for i, v := range variants {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
}

// NormalizeAccount strips spaces and upper-cases an IBAN-like identifier
func NormalizeAccount(account string) string {
	return strings.ToUpper(strings.ReplaceAll(account, " ", ""))
}

// WithAccount returns a copy of the registry with account registered to the entity
func (r *EntityRegistry) WithAccount(account, entityName string, profileID int64) *EntityRegistry {
	clone := &EntityRegistry{
		entities: r.entities,
		byName:   r.byName,
		patterns: r.patterns,
		accounts: make(map[string]EntityAccount, len(r.accounts)+1),
	}
	for k, v := range r.accounts {
		clone.accounts[k] = v
	}
	clone.accounts[NormalizeAccount(account)] = EntityAccount{EntityName: entityName, ProfileID: profileID}
	return clone
}

// Entities returns the registered entities in registry order
func (r *EntityRegistry) Entities() []Entity {
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// LookupName finds an entity by its exact name, ignoring case and surrounding spaces
func (r *EntityRegistry) LookupName(name string) (Entity, bool) {
	e, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// LookupAccount finds the owner of a bank account
func (r *EntityRegistry) LookupAccount(account string) (EntityAccount, bool) {
	if account == "" {
		return EntityAccount{}, false
	}
	owner, ok := r.accounts[NormalizeAccount(account)]
	return owner, ok
}

// IsKnownAccount reports whether account belongs to a group entity
func (r *EntityRegistry) IsKnownAccount(account string) bool {
	_, ok := r.LookupAccount(account)
	return ok
}

// SearchName returns the first entity, in registry order, whose name
// variants occur anywhere in text
func (r *EntityRegistry) SearchName(text string) (Entity, bool) {
	if text == "" {
		return Entity{}, false
	}
	for _, p := range r.patterns {
		if p.re.MatchString(text) {
			return p.entity, true
		}
	}
	return Entity{}, false
}

// Closest returns the entity whose lower-cased name has the smallest edit
// distance to name, for "did you mean" hints
func (r *EntityRegistry) Closest(name string) (Entity, int, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" || len(r.entities) == 0 {
		return Entity{}, 0, false
	}

	best, bestDistance := r.entities[0], -1
	for _, e := range r.entities {
		d := levenshtein.ComputeDistance(target, strings.ToLower(e.Name))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = e, d
		}
	}
	return best, bestDistance, true
}

package suggest

import "github.com/lazypower/tether/internal/domain"

// ArchetypeTable is the static content lookup for archetypes.
type ArchetypeTable interface {
	PreferredCategory(a domain.Archetype) (domain.Category, bool)
}

// StaticArchetypes is an in-memory ArchetypeTable.
type StaticArchetypes map[domain.Archetype]domain.Category

// PreferredCategory returns the archetype's single preferred category.
func (s StaticArchetypes) PreferredCategory(a domain.Archetype) (domain.Category, bool) {
	c, ok := s[a]
	return c, ok
}

// DefaultArchetypes is the built-in archetype table.
var DefaultArchetypes = StaticArchetypes{
	"anchor":     domain.CategoryDeepTalk,
	"adventurer": domain.CategoryActivity,
	"connector":  domain.CategoryEvent,
	"nurturer":   domain.CategorySharedMeal,
	"spark":      domain.CategoryConversation,
	"celebrant":  domain.CategoryCelebration,
}

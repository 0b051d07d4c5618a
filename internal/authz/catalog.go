package authz

// Catalog holds the role level, role permission and tier feature tables.
// A catalog is immutable after construction and safe for concurrent use;
// the Engine takes one by injection so tests can evaluate against alternate
// tables without touching package state.
type Catalog struct {
	levels map[Role]int
	grants map[Role][]Grant
	tiers  map[PlanTier][]Feature
}

// CatalogTables supplies alternate tables for NewCatalogWith. Nil fields
// fall back to the defaults.
type CatalogTables struct {
	Levels       map[Role]int
	Grants       map[Role][]Grant
	TierFeatures map[PlanTier][]Feature
}

// NewCatalog returns a catalog over the compiled-in default tables.
func NewCatalog() *Catalog {
	return &Catalog{
		levels: roleLevels,
		grants: defaultGrants,
		tiers:  defaultTierFeatures,
	}
}

// NewCatalogWith returns a catalog over custom tables. Intended for tests.
func NewCatalogWith(tables CatalogTables) *Catalog {
	c := NewCatalog()
	if tables.Levels != nil {
		c.levels = tables.Levels
	}
	if tables.Grants != nil {
		c.grants = tables.Grants
	}
	if tables.TierFeatures != nil {
		c.tiers = tables.TierFeatures
	}
	return c
}

package authz

import "fmt"

// PlanTier is a subscription tier. Tiers are totally ordered:
// starter < pro < enterprise.
type PlanTier string

const (
	TierStarter    PlanTier = "starter"
	TierPro        PlanTier = "pro"
	TierEnterprise PlanTier = "enterprise"
)

// AllTiers lists every tier, lowest first.
var AllTiers = []PlanTier{TierStarter, TierPro, TierEnterprise}

// UnknownTierError reports a plan tier outside the closed tier set.
type UnknownTierError struct {
	Tier PlanTier
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("authz: unknown plan tier %q", string(e.Tier))
}

// IsValidTier reports whether tier is in the closed tier set.
func IsValidTier(tier PlanTier) bool {
	switch tier {
	case TierStarter, TierPro, TierEnterprise:
		return true
	}
	return false
}

// ParsePlanTier converts a string into a PlanTier. "free" is the legacy
// billing name for the starter tier and normalizes to it.
func ParsePlanTier(s string) (PlanTier, error) {
	if s == "free" {
		return TierStarter, nil
	}
	t := PlanTier(s)
	if !IsValidTier(t) {
		return "", &UnknownTierError{Tier: t}
	}
	return t, nil
}

// Feature is a capability gated by subscription tier, orthogonal to role.
type Feature string

const (
	FeatureMultiWorkspace    Feature = "multi_workspace"
	FeatureSSOSCIM           Feature = "sso_scim"
	FeatureWhiteLabel        Feature = "white_label"
	FeatureAIRAG             Feature = "ai_rag"
	FeatureCustomGPT         Feature = "custom_gpt"
	FeatureDataExport        Feature = "data_export"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureCustomRoles       Feature = "custom_roles"
	FeatureAPIUnlimited      Feature = "api_unlimited"
	FeaturePrioritySupport   Feature = "priority_support"
)

// AllFeatures lists every feature flag.
var AllFeatures = []Feature{
	FeatureMultiWorkspace,
	FeatureSSOSCIM,
	FeatureWhiteLabel,
	FeatureAIRAG,
	FeatureCustomGPT,
	FeatureDataExport,
	FeatureAdvancedAnalytics,
	FeatureCustomRoles,
	FeatureAPIUnlimited,
	FeaturePrioritySupport,
}

var validFeatures = func() map[Feature]struct{} {
	m := make(map[Feature]struct{}, len(AllFeatures))
	for _, f := range AllFeatures {
		m[f] = struct{}{}
	}
	return m
}()

// IsValidFeature reports whether f is a known feature flag.
func IsValidFeature(f Feature) bool {
	_, ok := validFeatures[f]
	return ok
}

// ParseFeature converts a string into a Feature.
func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if !IsValidFeature(f) {
		return "", fmt.Errorf("authz: unknown feature %q", s)
	}
	return f, nil
}

// defaultTierFeatures defines the feature set available at each tier.
// Every tier enumerates its full set; there is no wildcard and enterprise
// gets no implicit shortcut. TestTierFeatureMonotonicity verifies
// starter ⊆ pro ⊆ enterprise over these tables.
var defaultTierFeatures = map[PlanTier][]Feature{
	TierStarter: {
		FeatureDataExport,
	},
	TierPro: {
		FeatureDataExport,
		FeatureMultiWorkspace,
		FeatureAdvancedAnalytics,
		FeatureAIRAG,
		FeaturePrioritySupport,
	},
	TierEnterprise: {
		FeatureDataExport,
		FeatureMultiWorkspace,
		FeatureAdvancedAnalytics,
		FeatureAIRAG,
		FeaturePrioritySupport,
		FeatureSSOSCIM,
		FeatureWhiteLabel,
		FeatureCustomGPT,
		FeatureCustomRoles,
		FeatureAPIUnlimited,
	},
}

// FeaturesFor returns the feature set for a plan tier.
func (c *Catalog) FeaturesFor(tier PlanTier) ([]Feature, error) {
	features, ok := c.tiers[tier]
	if !ok {
		return nil, &UnknownTierError{Tier: tier}
	}
	return features, nil
}

// HasFeature reports whether tier includes the feature. Exact membership
// only; no tier holds a wildcard.
func (c *Catalog) HasFeature(tier PlanTier, feature Feature) (bool, error) {
	features, ok := c.tiers[tier]
	if !ok {
		return false, &UnknownTierError{Tier: tier}
	}
	for _, f := range features {
		if f == feature {
			return true, nil
		}
	}
	return false, nil
}

package entitlement

import (
	"testing"

	"voyage/internal/types"
)

func TestNewStaticPolicyRegistry(t *testing.T) {
	reg := NewStaticPolicyRegistry()
	if reg == nil {
		t.Fatal("NewStaticPolicyRegistry returned nil")
	}
}

func TestPolicyFor_FreeTier(t *testing.T) {
	reg := NewStaticPolicyRegistry()
	policy := reg.PolicyFor(types.PlanFree)

	assertPolicy(t, "Free", policy, types.QuotaPolicy{
		MaxEntries:         10,
		MaxImagesPerEntry:  1,
		MaxPinnedLocations: 2,
		CanExportDocument:  false,
		CanShareSocial:     true,
	})
}

func TestPolicyFor_PremiumTier(t *testing.T) {
	reg := NewStaticPolicyRegistry()
	policy := reg.PolicyFor(types.PlanPremium)

	assertPolicy(t, "Premium", policy, types.QuotaPolicy{
		MaxEntries:         50,
		MaxImagesPerEntry:  8,
		MaxPinnedLocations: types.Unlimited,
		CanExportDocument:  true,
		CanShareSocial:     true,
	})
}

func TestPolicyFor_UnknownTierFallsBackToFree(t *testing.T) {
	reg := NewStaticPolicyRegistry()
	policy := reg.PolicyFor(types.PlanTier("platinum"))

	assertPolicy(t, "Unknown (fallback to Free)", policy, reg.PolicyFor(types.PlanFree))
}

func TestPolicyFor_EmptyTierFallsBackToFree(t *testing.T) {
	reg := NewStaticPolicyRegistry()
	policy := reg.PolicyFor(types.PlanTier(""))

	assertPolicy(t, "Empty (fallback to Free)", policy, reg.PolicyFor(types.PlanFree))
}

func TestPolicyFor_PremiumDominatesFree(t *testing.T) {
	// Every numeric premium limit admits at least what free admits, and
	// every boolean grant free has, premium has too. Guards against a
	// future edit accidentally making an upgrade lose capability.
	reg := NewStaticPolicyRegistry()
	free := reg.PolicyFor(types.PlanFree)
	premium := reg.PolicyFor(types.PlanPremium)

	if !numericAtLeast(premium.MaxEntries, free.MaxEntries) {
		t.Errorf("MaxEntries: premium %d < free %d", premium.MaxEntries, free.MaxEntries)
	}
	if !numericAtLeast(premium.MaxImagesPerEntry, free.MaxImagesPerEntry) {
		t.Errorf("MaxImagesPerEntry: premium %d < free %d", premium.MaxImagesPerEntry, free.MaxImagesPerEntry)
	}
	if !numericAtLeast(premium.MaxPinnedLocations, free.MaxPinnedLocations) {
		t.Errorf("MaxPinnedLocations: premium %d < free %d", premium.MaxPinnedLocations, free.MaxPinnedLocations)
	}
	if free.CanExportDocument && !premium.CanExportDocument {
		t.Error("CanExportDocument: free grants but premium does not")
	}
	if free.CanShareSocial && !premium.CanShareSocial {
		t.Error("CanShareSocial: free grants but premium does not")
	}
}

func TestPolicyRegistryInterface(t *testing.T) {
	// Compile-time check that staticPolicyRegistry satisfies PolicyRegistry.
	var _ PolicyRegistry = NewStaticPolicyRegistry()
}

func TestPolicyFor_IndependentInstances(t *testing.T) {
	reg1 := NewStaticPolicyRegistry()
	reg2 := NewStaticPolicyRegistry()

	p1 := reg1.PolicyFor(types.PlanPremium)
	p2 := reg2.PolicyFor(types.PlanPremium)

	if p1 != p2 {
		t.Errorf("Two independent registries returned different premium policies: %+v vs %+v", p1, p2)
	}
}

// numericAtLeast compares numeric limits where types.Unlimited (0) is the
// top of the order.
func numericAtLeast(a, b int) bool {
	if a == types.Unlimited {
		return true
	}
	if b == types.Unlimited {
		return false
	}
	return a >= b
}

// assertPolicy compares two QuotaPolicy values and reports field-level
// mismatches.
func assertPolicy(t *testing.T, tier string, got, want types.QuotaPolicy) {
	t.Helper()

	if got.MaxEntries != want.MaxEntries {
		t.Errorf("%s: MaxEntries = %d, want %d", tier, got.MaxEntries, want.MaxEntries)
	}
	if got.MaxImagesPerEntry != want.MaxImagesPerEntry {
		t.Errorf("%s: MaxImagesPerEntry = %d, want %d", tier, got.MaxImagesPerEntry, want.MaxImagesPerEntry)
	}
	if got.MaxPinnedLocations != want.MaxPinnedLocations {
		t.Errorf("%s: MaxPinnedLocations = %d, want %d", tier, got.MaxPinnedLocations, want.MaxPinnedLocations)
	}
	if got.CanExportDocument != want.CanExportDocument {
		t.Errorf("%s: CanExportDocument = %v, want %v", tier, got.CanExportDocument, want.CanExportDocument)
	}
	if got.CanShareSocial != want.CanShareSocial {
		t.Errorf("%s: CanShareSocial = %v, want %v", tier, got.CanShareSocial, want.CanShareSocial)
	}
}

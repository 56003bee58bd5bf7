package domainmodel

import "fmt"

// Registered is the static table of concrete domain registries the
// engine ships with, keyed by DomainRegistry.Domain. internal/config's
// LEDGER_DEFAULT_DOMAIN selects an entry; internal/precedent and
// internal/shadow accept a DomainRegistry directly and never consult
// this table themselves, keeping the dependency direction one-way
// (core -> domain adapters).
var Registered = map[string]DomainRegistry{
	"banking_aml":      bankingAML,
	"insurance_claims": insuranceClaims,
}

var bankingAML = DomainRegistry{
	Domain:  "banking_aml",
	Version: "v1",
	Fields: map[string]FieldDefinition{
		"customer.relationship_length": {
			Name: "customer.relationship_length", Label: "Relationship Length",
			Type: FieldTypeOrdinal, Comparison: ComparisonStep,
			Weight: 0.15, Tier: TierContextual,
			OrderedValues: []string{"LT_6M", "6M_2Y", "2Y_5Y", "GT_5Y"},
		},
		"customer.pep": {
			Name: "customer.pep", Label: "Politically Exposed Person",
			Type: FieldTypeBoolean, Comparison: ComparisonExact,
			Weight: 0.20, Tier: TierBehavioral,
		},
		"txn.type": {
			Name: "txn.type", Label: "Transaction Type",
			Type: FieldTypeCategorical, Comparison: ComparisonEquivalenceClass,
			Weight: 0.20, Tier: TierBehavioral,
			EquivalenceClasses: map[string][]string{
				"CASH":     {"cash_deposit", "cash_withdrawal"},
				"WIRE":     {"wire_in", "wire_out"},
				"ACH":      {"ach_credit", "ach_debit"},
				"INTERNAL": {"internal_transfer"},
			},
		},
		"prior.sars_filed": {
			Name: "prior.sars_filed", Label: "Prior SARs Filed",
			Type: FieldTypeNumeric, Comparison: ComparisonDistanceDecay,
			Weight: 0.15, Tier: TierBehavioral, MaxDistance: 5,
		},
		"screening.adverse_media_level": {
			Name: "screening.adverse_media_level", Label: "Adverse Media Level",
			Type: FieldTypeCategorical, Comparison: ComparisonExact,
			Weight: 0.15, Tier: TierBehavioral,
		},
		"flag.structuring_pattern": {
			Name: "flag.structuring_pattern", Label: "Structuring Pattern Flag",
			Type: FieldTypeBoolean, Comparison: ComparisonExact,
			Weight: 0.10, Tier: TierBehavioral,
		},
		"flag.sanctions_list_match": {
			Name: "flag.sanctions_list_match", Label: "Sanctions List Match Flag",
			Type: FieldTypeBoolean, Comparison: ComparisonExact,
			Weight: 0.10, Tier: TierBehavioral,
		},
		"screening.typologies": {
			Name: "screening.typologies", Label: "Screening Typologies",
			Type: FieldTypeSet, Comparison: ComparisonJaccard,
			Weight: 0.15, Tier: TierBehavioral,
		},
	},
	ComparabilityGates: []ComparabilityGate{
		{Field: "jurisdiction_regime", EquivalenceClasses: map[string][]string{
			"FATF_ALIGNED": {"US", "GB", "DE", "FR", "CA", "AU", "JP"},
			"HIGH_RISK":    {"IR", "KP", "MM"},
			"MONITORED":    {"PK", "NG", "PH"},
		}},
		{Field: "customer_segment", EquivalenceClasses: map[string][]string{
			"RETAIL":          {"retail", "mass_market"},
			"COMMERCIAL":      {"commercial", "sme"},
			"PRIVATE_BANKING": {"private_banking", "wealth"},
		}},
		{Field: "channel_family", EquivalenceClasses: map[string][]string{
			"DIGITAL":        {"mobile", "web", "api"},
			"BRANCH":         {"branch", "teller"},
			"CORRESPONDENT":  {"correspondent_bank", "nostro_vostro"},
		}},
		{Field: "disposition_basis", EquivalenceClasses: map[string][]string{
			"MANDATORY":     {"MANDATORY"},
			"DISCRETIONARY": {"DISCRETIONARY"},
			"UNKNOWN":       {"UNKNOWN"},
		}},
	},
	SimilarityFloor: 0.60,
	SimilarityFloorOverrides: map[string]float64{
		"sanctions":     0.75,
		"adverse_media": 0.50,
	},
	PoolMinimum: 5,
	DispositionMapping: map[string]string{
		"clear": "ALLOW", "no_action": "ALLOW",
		"escalate": "EDD", "enhanced_due_diligence": "EDD",
		"file_sar": "REPORT", "sar_filed": "REPORT",
		"reject": "BLOCK", "account_closed": "BLOCK",
	},
	ReportingMapping: map[string]string{
		"sar_filed": "REPORTED", "no_filing": "NOT_REPORTED",
	},
	BasisMapping: map[string]string{
		"regulatory_requirement": "MANDATORY", "policy_threshold": "MANDATORY",
		"analyst_judgment": "DISCRETIONARY",
	},
}

var insuranceClaims = DomainRegistry{
	Domain:  "insurance_claims",
	Version: "v1",
	Fields: map[string]FieldDefinition{
		"claim.peril_type": {
			Name: "claim.peril_type", Label: "Peril Type",
			Type: FieldTypeCategorical, Comparison: ComparisonEquivalenceClass,
			Weight: 0.25, Tier: TierBehavioral,
			EquivalenceClasses: map[string][]string{
				"WATER":     {"burst_pipe", "flood", "water_damage"},
				"FIRE":      {"fire", "smoke_damage"},
				"THEFT":     {"theft", "burglary"},
				"LIABILITY": {"third_party_injury", "property_damage_liability"},
			},
		},
		"claim.severity_band": {
			Name: "claim.severity_band", Label: "Severity Band",
			Type: FieldTypeOrdinal, Comparison: ComparisonStep,
			Weight: 0.20, Tier: TierBehavioral,
			OrderedValues: []string{"MINOR", "MODERATE", "SEVERE", "CATASTROPHIC"},
		},
		"claim.prior_claims_count": {
			Name: "claim.prior_claims_count", Label: "Prior Claims Count",
			Type: FieldTypeNumeric, Comparison: ComparisonDistanceDecay,
			Weight: 0.15, Tier: TierBehavioral, MaxDistance: 10,
		},
		"claim.fraud_indicators": {
			Name: "claim.fraud_indicators", Label: "Fraud Indicators",
			Type: FieldTypeSet, Comparison: ComparisonJaccard,
			Weight: 0.20, Tier: TierBehavioral,
		},
		"claim.policy_tenure": {
			Name: "claim.policy_tenure", Label: "Policy Tenure",
			Type: FieldTypeOrdinal, Comparison: ComparisonStep,
			Weight: 0.10, Tier: TierContextual,
			OrderedValues: []string{"NEW", "ESTABLISHED", "LONGSTANDING"},
		},
		"claim.documentation_complete": {
			Name: "claim.documentation_complete", Label: "Documentation Complete",
			Type: FieldTypeBoolean, Comparison: ComparisonExact,
			Weight: 0.10, Tier: TierBehavioral, Critical: true,
		},
	},
	ComparabilityGates: []ComparabilityGate{
		{Field: "jurisdiction_regime", EquivalenceClasses: map[string][]string{
			"FATF_ALIGNED": {"US", "GB", "DE", "FR", "CA", "AU", "JP"},
			"HIGH_RISK":    {"IR", "KP", "MM"},
			"MONITORED":    {"PK", "NG", "PH"},
		}},
		{Field: "claim_segment", EquivalenceClasses: map[string][]string{
			"PERSONAL":   {"auto", "homeowners", "renters"},
			"COMMERCIAL": {"commercial_property", "general_liability", "workers_comp"},
		}},
		{Field: "channel_family", EquivalenceClasses: map[string][]string{
			"DIGITAL": {"app", "web_portal"},
			"AGENT":   {"agent", "broker"},
			"FNOL":    {"call_center", "first_notice_of_loss"},
		}},
		{Field: "disposition_basis", EquivalenceClasses: map[string][]string{
			"MANDATORY":     {"MANDATORY"},
			"DISCRETIONARY": {"DISCRETIONARY"},
			"UNKNOWN":       {"UNKNOWN"},
		}},
	},
	SimilarityFloor: 0.60,
	PoolMinimum:     5,
	CriticalFields: map[string]struct{}{
		"claim.documentation_complete": {},
	},
	DispositionMapping: map[string]string{
		"pay": "ALLOW", "approved": "ALLOW",
		"investigate": "EDD", "siu_referral": "EDD",
		"deny": "BLOCK", "denied": "BLOCK",
	},
	ReportingMapping: map[string]string{
		"siu_referral_filed": "REPORTED", "no_referral": "NOT_REPORTED",
	},
	BasisMapping: map[string]string{
		"policy_exclusion": "MANDATORY", "coverage_limit": "MANDATORY",
		"adjuster_judgment": "DISCRETIONARY",
	},
}

// init validates every statically registered domain eagerly: a
// misconfigured field definition (bad weight, a STEP field missing
// ordered_values) must fail at program startup, not on the first case
// that happens to touch it.
func init() {
	for domainID, reg := range Registered {
		for name, fd := range reg.Fields {
			if err := fd.Validate(); err != nil {
				panic(fmt.Sprintf("domainmodel: invalid field %q in domain %q: %v", name, domainID, err))
			}
		}
	}
}

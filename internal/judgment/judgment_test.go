package judgment

import "testing"

func TestToDict_FromDict_RoundTrip(t *testing.T) {
	facts := []AnchorFact{{FieldID: "channel", Value: "cash"}, {FieldID: "amount", Value: 500.0}}
	dict := ToDict(facts)
	if len(dict) != 2 || dict["channel"] != "cash" || dict["amount"] != 500.0 {
		t.Fatalf("unexpected dict: %v", dict)
	}
	back := FromDict(dict)
	if len(back) != 2 {
		t.Fatalf("expected 2 anchor facts, got %d", len(back))
	}
	// FromDict is field-name sorted: "amount" < "channel"
	if back[0].FieldID != "amount" || back[1].FieldID != "channel" {
		t.Fatalf("expected sorted order amount, channel; got %v, %v", back[0].FieldID, back[1].FieldID)
	}
}

func TestToDict_SkipsEmptyFieldID(t *testing.T) {
	facts := []AnchorFact{{FieldID: "", Value: "ignored"}, {FieldID: "channel", Value: "cash"}}
	dict := ToDict(facts)
	if len(dict) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(dict))
	}
}

func TestCaseIDHash_DeterministicAndOrderIndependent(t *testing.T) {
	a := map[string]any{"channel": "cash", "amount": 500.0}
	b := map[string]any{"amount": 500.0, "channel": "cash"}
	h1, err := CaseIDHash(a, "schema-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := CaseIDHash(b, "schema-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected map key order to not affect hash: %s != %s", h1, h2)
	}
}

func TestCaseIDHash_DifferentSchemaDiffersHash(t *testing.T) {
	facts := map[string]any{"channel": "cash"}
	h1, _ := CaseIDHash(facts, "schema-v1")
	h2, _ := CaseIDHash(facts, "schema-v2")
	if h1 == h2 {
		t.Fatal("expected different schema ids to produce different case_id_hash values")
	}
}

func TestFingerprintHash_OnlyGateFieldsAffectHash(t *testing.T) {
	gateFields := []string{"channel", "basis"}
	a := map[string]any{"channel": "cash", "basis": "MANDATORY", "amount": 1.0}
	b := map[string]any{"channel": "cash", "basis": "MANDATORY", "amount": 999.0}
	h1, err := FingerprintHash(a, gateFields, "schema-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := FingerprintHash(b, gateFields, "schema-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected non-gate fields to not affect fingerprint hash")
	}
}

func TestFingerprintHash_GateFieldChangeChangesHash(t *testing.T) {
	gateFields := []string{"channel", "basis"}
	a := map[string]any{"channel": "cash", "basis": "MANDATORY"}
	b := map[string]any{"channel": "wire", "basis": "MANDATORY"}
	h1, _ := FingerprintHash(a, gateFields, "schema-v1")
	h2, _ := FingerprintHash(b, gateFields, "schema-v1")
	if h1 == h2 {
		t.Fatal("expected a gate field change to change the fingerprint hash")
	}
}

func TestPayload_ToCanonical_IncludesAllFields(t *testing.T) {
	p := Payload{
		ScenarioCode:     "SCN-001",
		OutcomeCode:      "BLOCK",
		AnchorFacts:      []AnchorFact{{FieldID: "channel", Value: "cash"}},
		CaseIDHash:       "abc",
		FingerprintHash:  "def",
		DispositionBasis: BasisMandatory,
		Domain:           "banking_aml",
		PolicyRegime:     PolicyRegime{Version: "v1", IsPostShift: false},
	}
	dict := p.ToCanonical()
	m, ok := dict.(map[string]any)
	if !ok {
		t.Fatalf("expected a map[string]any, got %T", dict)
	}
	if m["outcome_code"] != "BLOCK" {
		t.Fatalf("expected outcome_code BLOCK, got %v", m["outcome_code"])
	}
	for _, key := range []string{
		"precedent_id", "scenario_code", "outcome_code", "anchor_facts", "reason_codes",
		"case_id_hash", "jurisdiction_code", "fingerprint_hash", "fingerprint_schema_id",
		"policy_pack_hash", "policy_pack_id", "policy_pack_version", "decision_level",
		"decided_at", "disposition_basis", "reporting_obligation", "policy_regime", "domain",
	} {
		if _, ok := m[key]; !ok {
			t.Fatalf("expected key %q in canonical payload", key)
		}
	}
}

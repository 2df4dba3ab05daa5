package docstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LeaseSchemaVersion is the shape lease records are upgraded to on load.
const LeaseSchemaVersion = 4

// leaseUpgrades[i] moves a lease record from schema version i to i+1. Each
// step only fills in what is missing, so records that already carry a field
// keep it.
var leaseUpgrades = []func(Record){
	addVersioning,
	nestCurrentValues,
	addExpectedPayments,
	addConfirmationFlag,
}

var flatLeaseFields = []string{
	"lease_nickname", "lessor_name", "lessee_name",
	"lease_start_date", "lease_end_date",
	"monthly_rent", "security_deposit", "rent_due_day",
}

// UpgradeLease brings one lease record to LeaseSchemaVersion and reports
// whether anything changed.
func UpgradeLease(rec Record) bool {
	v := SchemaVersion(rec)
	if v >= LeaseSchemaVersion {
		return false
	}
	for ; v < LeaseSchemaVersion; v++ {
		leaseUpgrades[v](rec)
	}
	rec["schema_version"] = LeaseSchemaVersion
	return true
}

// SchemaVersion reads a record's schema_version; records without one are 0.
func SchemaVersion(rec Record) int {
	switch v := rec["schema_version"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// wrapSingleLease turns the oldest file format, a bare lease object, into a
// one-element lease list entry.
func wrapSingleLease(raw map[string]any, now time.Time) Record {
	rec := Record(raw)
	rec["id"] = uuid.NewString()
	savedAt, ok := rec["saved_at"].(string)
	if !ok || savedAt == "" {
		savedAt = now.Format(time.RFC3339)
	}
	rec["created_at"] = savedAt
	rec["updated_at"] = savedAt
	return rec
}

// v0 -> v1: every lease becomes version 1 of its own group.
func addVersioning(rec Record) {
	if _, ok := rec["lease_group_id"]; ok {
		return
	}
	rec["lease_group_id"] = rec["id"]
	rec["version"] = 1
	rec["is_current"] = true
}

// v1 -> v2: flat terms move under current_values, with lock-in and renewal
// terms added empty.
func nestCurrentValues(rec Record) {
	cv, ok := rec["current_values"].(map[string]any)
	if !ok {
		cv = map[string]any{}
		for _, f := range flatLeaseFields {
			cv[f] = rec[f]
			delete(rec, f)
		}
		filename := rec["source_filename"]
		delete(rec, "source_filename")
		rec["source_document"] = map[string]any{
			"filename":       filename,
			"mimetype":       nil,
			"extracted_text": nil,
			"extracted_at":   nil,
		}
		rec["ai_extraction"] = nil
		rec["current_values"] = cv
	}
	if _, ok := cv["lock_in_period"]; !ok {
		cv["lock_in_period"] = map[string]any{"duration_months": nil}
	}
	if _, ok := cv["renewal_terms"]; !ok {
		cv["renewal_terms"] = map[string]any{"rent_escalation_percent": nil}
	}
}

// v2 -> v3: rent expected at the monthly rent, other categories not expected.
func addExpectedPayments(rec Record) {
	cv, ok := rec["current_values"].(map[string]any)
	if !ok {
		return
	}
	if _, ok := cv["expected_payments"]; ok {
		return
	}
	cv["expected_payments"] = []any{
		map[string]any{"type": "rent", "expected": true, "typical_amount": cv["monthly_rent"]},
		map[string]any{"type": "maintenance", "expected": false, "typical_amount": nil},
		map[string]any{"type": "utilities", "expected": false, "typical_amount": nil},
	}
}

// v3 -> v4: existing leases do not ask the landlord to confirm categories.
func addConfirmationFlag(rec Record) {
	if _, ok := rec["needs_expected_payment_confirmation"]; ok {
		return
	}
	rec["needs_expected_payment_confirmation"] = false
}

package model

import "sort"

// Resource types the server accepts. Conditional references naming a type
// outside this set fail fast instead of producing an empty search.
var knownTypes = map[string]struct{}{
	"AllergyIntolerance": {},
	"ClinicalImpression": {},
	"Composition":        {},
	"Condition":          {},
	"DiagnosticReport":   {},
	"Encounter":          {},
	"MedicationRequest":  {},
	"Observation":        {},
	"Organization":       {},
	"Patient":            {},
	"Practitioner":       {},
	"PractitionerRole":   {},
	"Procedure":          {},
}

func IsKnownType(resourceType string) bool {
	_, ok := knownTypes[resourceType]
	return ok
}

func KnownTypes() []string {
	out := make([]string, 0, len(knownTypes))
	for t := range knownTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

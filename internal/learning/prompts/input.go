package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	PackTitle string
	// Sampled windows, one "[window N]" block each
	Excerpts string
	// Number of records requested in this attempt
	Count int

	// Existing-state summary for extensions and follow-up attempts
	Vocabulary     string
	ExistingItems  string
	CandidatesJSON string
}

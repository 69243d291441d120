package core

// Question is one entry in the fixed intake questionnaire.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// IntakeSchema is the ordered questionnaire every beneficiary walks through.
// It is fixed data, shared process-wide and read-only at runtime; the
// intake pointer in a session indexes into this slice.
var IntakeSchema = []Question{
	{ID: "chief_complaint", Prompt: "What is your main issue today?"},
	{ID: "location", Prompt: "Where is the problem located?"},
	{ID: "onset", Prompt: "When did it start?"},
	{ID: "severity", Prompt: "How severe is it from 1 to 10?"},
	{ID: "relieving_factors", Prompt: "What makes it better?"},
	{ID: "aggravating_factors", Prompt: "What makes it worse?"},
	{ID: "fever", Prompt: "Have you had a fever?"},
	{ID: "medications", Prompt: "What medications are you currently taking?"},
	{ID: "conditions", Prompt: "Any chronic conditions?"},
	{ID: "prior_contact", Prompt: "Have you contacted us about this before?"},
}

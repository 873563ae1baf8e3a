package extractor

// ParsedSessionEvent is one distinct activity extracted from a transcript.
// ObjectiveDescription and Memo are third-person and describe a single
// observation.
type ParsedSessionEvent struct {
	StudentName          string `json:"student_name"`
	ObjectiveDescription string `json:"objective_description"`
	Memo                 string `json:"memo"`
}

// Drop records an element of the model's response that failed validation.
type Drop struct {
	Index  int
	Reason string
}

// Result is the validated extraction of one transcript.
type Result struct {
	Events  []ParsedSessionEvent
	Dropped []Drop
}

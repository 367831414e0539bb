package search

// Result is a single doubt hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
}

// Query describes a search over one user's doubts. OwnerID scopes hits to
// doubts where the caller is a participant; results never cross that line.
type Query struct {
	Text    string
	OwnerID string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DoubtRecord is the data we index per doubt. Thread is the concatenated
// reply text so answers are searchable alongside the question.
type DoubtRecord struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Status      string `json:"status"`
	StudentID   string `json:"studentId"`
	TeacherID   string `json:"teacherId"`
	Thread      string `json:"thread"`
}

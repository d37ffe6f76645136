package domain

// RowFailure records one failed row: who it was, why it failed, and a deep
// copy of its pre-execution state so the operator can correct and retry.
type RowFailure struct {
	MemberName string       `json:"member_name"`
	Error      string       `json:"error"`
	Snapshot   *DraftRecord `json:"snapshot"`
}

// ImportResult aggregates one executor pass over a batch of drafts.
type ImportResult struct {
	Total    int              `json:"total"`
	Success  int              `json:"success"`
	Failures []RowFailure     `json:"failures"`
	Created  []map[string]any `json:"created"`
	Log      []string         `json:"log"`
}

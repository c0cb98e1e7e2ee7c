package dav

// FailureRecord pairs the logical URI of a resource with the status of
// its failed elementary operation.
type FailureRecord struct {
	Href   string
	Status int
}

// FailureSet accumulates per-node failures during one recursive
// operation, in insertion order. An empty set means the operation fully
// succeeded. Per-request, discarded after the response is sent.
type FailureSet struct {
	records []FailureRecord
}

// Add appends a failure record.
func (f *FailureSet) Add(href string, status int) {
	f.records = append(f.records, FailureRecord{Href: href, Status: status})
}

// Empty reports whether the operation fully succeeded.
func (f *FailureSet) Empty() bool {
	return len(f.records) == 0
}

// Len returns the number of recorded failures.
func (f *FailureSet) Len() int {
	return len(f.records)
}

// Records returns the accumulated failures in insertion order.
func (f *FailureSet) Records() []FailureRecord {
	return f.records
}

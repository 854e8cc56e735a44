package domain

// FetchStatus is the outcome class of a listing fetch.
type FetchStatus int

const (
	FetchOK FetchStatus = iota
	FetchEmpty
	FetchErr
)

func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchEmpty:
		return "empty"
	case FetchErr:
		return "error"
	default:
		return "unknown"
	}
}

// FetchResult is what a source returns for a listing request. Expected
// "no data" outcomes are values, not errors.
type FetchResult struct {
	Status FetchStatus
	Items  []RawItem
	Err    error
	Source string
}

// OK wraps a listing. An empty listing becomes an Empty result.
func OK(source string, items []RawItem) FetchResult {
	if len(items) == 0 {
		return Empty(source)
	}
	return FetchResult{Status: FetchOK, Items: items, Source: source}
}

// Empty is a successful call that produced nothing.
func Empty(source string) FetchResult {
	return FetchResult{Status: FetchEmpty, Source: source}
}

// Failed wraps an adapter failure.
func Failed(source string, err error) FetchResult {
	return FetchResult{Status: FetchErr, Err: err, Source: source}
}

// Usable reports whether the result carries at least one item.
func (r FetchResult) Usable() bool {
	return r.Status == FetchOK && len(r.Items) > 0
}

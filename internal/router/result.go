package router

// SearchStatus is the outcome of a trie search.
type SearchStatus int

const (
	// NotFound means no registered path structurally matches.
	NotFound SearchStatus = iota
	// MethodNotAllowed means the path matched but not for the requested method.
	MethodNotAllowed
	// Found means an action was resolved.
	Found
)

// String returns the string representation of the status.
func (s SearchStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case MethodNotAllowed:
		return "method_not_allowed"
	default:
		return "unknown"
	}
}

// SearchResult is the tagged result of PathTrie.Search. Action and Params
// are set only when Status is Found; Allowed lists the registered methods
// of the matched node when Status is MethodNotAllowed; it is empty for a
// node that only leads to deeper routes.
type SearchResult struct {
	Status  SearchStatus
	Action  *Action
	Params  []Param
	Allowed []string
}

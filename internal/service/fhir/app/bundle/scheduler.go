package bundle

// Verb classes in execution priority order. A transaction must apply deletes
// before creates before updates before reads so that, e.g., replacing a
// resource that another entry deletes yields a consistent end state. Response
// assembly uses Entry.Index, so this ordering never leaks into the response.
type verbClass int

const (
	classDelete verbClass = iota
	classCreate
	classUpdate
	classRead
	numClasses
)

func classify(method string) verbClass {
	switch method {
	case "DELETE":
		return classDelete
	case "POST":
		return classCreate
	case "PUT", "PATCH":
		return classUpdate
	default:
		// GET, HEAD and anything exotic run last; unknown verbs surface as
		// per-entry routing failures at dispatch time.
		return classRead
	}
}

// schedule partitions entries into the four ordered execution groups,
// preserving submission order within each group. Malformed entries (no verb)
// are returned separately and never dispatched.
func schedule(entries []Entry) (groups [numClasses][]Entry, malformed []Entry) {
	for _, e := range entries {
		if e.Method == "" {
			malformed = append(malformed, e)
			continue
		}
		c := classify(e.Method)
		groups[c] = append(groups[c], e)
	}
	return groups, malformed
}

package domain

import (
	"net/url"
	"slices"
)

// GroundingSource is a single citation attached to a model turn.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Label is the text shown for the source: its title, or the URI host.
func (s GroundingSource) Label() string {
	if s.Title != "" {
		return s.Title
	}
	u, err := url.Parse(s.URI)
	if err != nil || u.Host == "" {
		return s.URI
	}
	return u.Hostname()
}

// GroundingMetadata is the set of citations the model attached to a fragment.
// Sources may contain duplicate URIs; see UniqueSources.
type GroundingMetadata struct {
	Sources          []GroundingSource `json:"sources,omitempty"`
	WebSearchQueries []string          `json:"web_search_queries,omitempty"`
}

// IsEmpty reports whether md carries nothing worth attaching to a message.
func (md *GroundingMetadata) IsEmpty() bool {
	return md == nil || (len(md.Sources) == 0 && len(md.WebSearchQueries) == 0)
}

// Clone returns a deep copy of md. Nil stays nil.
func (md *GroundingMetadata) Clone() *GroundingMetadata {
	if md == nil {
		return nil
	}
	return &GroundingMetadata{
		Sources:          slices.Clone(md.Sources),
		WebSearchQueries: slices.Clone(md.WebSearchQueries),
	}
}

// UniqueSources returns the sources of md de-duplicated by URI, keeping the
// first occurrence of each. Sources without a URI are dropped.
func UniqueSources(md *GroundingMetadata) []GroundingSource {
	if md == nil {
		return nil
	}
	seen := make(map[string]bool, len(md.Sources))
	var out []GroundingSource
	for _, s := range md.Sources {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		out = append(out, s)
	}
	return out
}

package types

// Filter is a caller-supplied SQL fragment and whether it is applied.
// An empty Text means no filter is set.
type Filter struct {
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}

// IsSet reports whether the filter carries a fragment.
func (f Filter) IsSet() bool {
	return f.Text != ""
}

// Active reports whether the filter should be added to a query.
func (f Filter) Active() bool {
	return f.IsSet() && f.Enabled
}

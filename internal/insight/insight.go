// Package insight implements spec.md §4.G's insight session: load a plugin
// by id from an installed-plugins registry, validate its declared
// custom-option schema against the caller's values, bundle storage handles
// and options into a Config, and run it behind a per-session actor that
// forwards Query messages to it.
package insight

// OptionKind is the closed enumeration of custom-option types a plugin can
// declare, per spec.md §4.G: { Boolean, Number{min,max,step}, String{hidden?},
// Option{values}, Button }.
type OptionKind int

const (
	KindBoolean OptionKind = iota
	KindNumber
	KindString
	KindOption
	KindButton
)

func (k OptionKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindOption:
		return "option"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

// OptionSpec is one custom option a plugin declares. Only the fields
// relevant to Kind are meaningful: Min/Max/Step for Number, Hidden for
// String, Values for Option.
type OptionSpec struct {
	Name string
	Kind OptionKind

	Min, Max, Step float64
	Hidden         bool
	Values         []string
}

// AnalystRequest creates an insight session bound to one plugin, one
// collection, and one validated set of option values.
type AnalystRequest struct {
	SessionID    string
	PluginID     string
	CollectionID string
	Options      map[string]any
}

// Query is one prompt routed to an open insight session's runner actor.
type Query struct {
	SessionID string
	Text      string
}

// Result is a runner's reply to a Query, carrying the session id and a
// serialized result per spec.md §4.G ("responses carry the session id and
// serialized result").
type Result struct {
	SessionID string
	PluginID  string
	Output    string
}

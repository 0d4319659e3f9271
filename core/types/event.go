package types

// Event is the canonical structured payload emitted on every observable state
// transition. Attributes are flat string pairs so downstream indexers can
// consume them without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

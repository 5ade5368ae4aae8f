package testutil

// FixedRunIDGenerator generates the same run ID every time.
//
// The same scenario with the same FixedRunIDGenerator produces
// byte-identical snapshots.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a fixed generator. If id is empty,
// Generate returns "00000000-0000-7000-8000-000000000000".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "00000000-0000-7000-8000-000000000000"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

package testutil

// FixedIDGenerator returns the same change-set id every time.
//
// Golden transcripts embed change-set ids, so tests that render them need
// a generator whose output never varies.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// If id is empty, Generate returns "changeset-fixed".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "changeset-fixed"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

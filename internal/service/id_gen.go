package service

import "github.com/google/uuid"

// DefaultPlaceholderPrefix marks ids the remote store has not issued yet.
const DefaultPlaceholderPrefix = "tmp-"

type IDGenerator interface {
	NewID() (string, error)
}

// PlaceholderIDGenerator issues client-side ids for tasks waiting on the
// remote store.
type PlaceholderIDGenerator struct {
	prefix string
}

func NewPlaceholderIDGenerator(prefix string) *PlaceholderIDGenerator {
	if prefix == "" {
		prefix = DefaultPlaceholderPrefix
	}
	return &PlaceholderIDGenerator{prefix: prefix}
}

// NewID returns random identifier.
func (g *PlaceholderIDGenerator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return g.prefix + id.String(), nil
}


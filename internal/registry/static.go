package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/tideline/internal/stream"
)

// Static is an in-memory registry populated at construction. Read-only
// afterwards, so safe for concurrent use.
type Static struct {
	byID      map[string]ModelInfo
	byName    map[nameKey]ModelInfo
	endpoints map[uuid.UUID]string
}

type nameKey struct {
	dapp uuid.UUID
	name string
}

// NewStatic builds a registry from literal entries. Model endpoints are
// filled from the owning dapp.
func NewStatic(dapps []Dapp, models []ModelInfo) *Static {
	s := &Static{
		byID:      make(map[string]ModelInfo, len(models)),
		byName:    make(map[nameKey]ModelInfo, len(models)),
		endpoints: make(map[uuid.UUID]string, len(dapps)),
	}
	for _, d := range dapps {
		s.endpoints[d.ID] = d.Endpoint
	}
	for _, m := range models {
		if m.Endpoint == "" {
			m.Endpoint = s.endpoints[m.DappID]
		}
		s.byID[m.ID.String()] = m
		s.byName[nameKey{dapp: m.DappID, name: m.Name}] = m
	}
	return s
}

// Model implements Registry.
func (s *Static) Model(_ context.Context, id stream.ID) (*ModelInfo, error) {
	info, ok := s.byID[id.String()]
	if !ok {
		return nil, stream.NewNotFoundError("model", id.String())
	}
	return &info, nil
}

// ModelByName implements Registry.
func (s *Static) ModelByName(_ context.Context, dappID uuid.UUID, name string) (*ModelInfo, error) {
	info, ok := s.byName[nameKey{dapp: dappID, name: name}]
	if !ok {
		return nil, stream.NewNotFoundError("model", name)
	}
	return &info, nil
}

// DappEndpoint implements Registry.
func (s *Static) DappEndpoint(_ context.Context, dappID uuid.UUID) (string, error) {
	endpoint, ok := s.endpoints[dappID]
	if !ok {
		return "", stream.NewNotFoundError("dapp", dappID.String())
	}
	return endpoint, nil
}

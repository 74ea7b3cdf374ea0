package service

import (
	"context"

	"github.com/wwwskbjxyz/Agent-web-sub001/internal/verifysvc/store"
)

// BindingService resolves opaque binding codes to the software
// identity the verify call should use.
type BindingService struct {
	store *store.BindingStore
}

func NewBindingService(store *store.BindingStore) *BindingService {
	return &BindingService{store: store}
}

func (s *BindingService) ResolveSoftware(ctx context.Context, bindingCode string) (string, error) {
	return s.store.GetSoftwareByBindingCode(ctx, bindingCode)
}

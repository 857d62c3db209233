package akenc

import (
	"sync"

	"github.com/tdsgo/tds/internal/errs"
)

// Provider decrypts an encrypted CEK blob using an external key store
// (spec.md S4.5's CEK resolution). Implementations of the key stores
// themselves (Azure Key Vault, a Java keystore, a local certificate store,
// etc.) are out of scope; this package only specifies the contract.
type Provider interface {
	DecryptCEK(keyPath, algorithmName string, encryptedCEK []byte) (plaintextCEK []byte, err error)
}

// ProviderRegistry maps a key-store name to its Provider. The zero value
// is not usable; construct with NewRegistry or use Default().
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an independent, non-singleton registry — the
// idiomatic Go alternative to Default() for tests and multi-tenant hosts,
// avoiding the single global registry's biggest testability problem
// (SPEC_FULL.md S7 supplement).
func NewRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

var (
	defaultRegistry     *ProviderRegistry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide provider registry, grounded on the
// teacher's sync.Once-initialized global-singleton shape
// (pkg/log.Default()) for the case where a process legitimately wants one
// shared set of key-store providers.
func Default() *ProviderRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds or replaces the provider for name.
func (r *ProviderRegistry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Lookup returns the provider registered under name, or
// KindMissingKeyStoreProvider if none is registered.
func (r *ProviderRegistry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, errs.Newf(errs.KindMissingKeyStoreProvider, "akenc.ProviderRegistry.Lookup", "no key-store provider registered under %q", name)
	}
	return p, nil
}

package akenc

import (
	"sync"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/logutil"
	"github.com/tdsgo/tds/metrics"
)

// EncryptedCEKBlob is one `{ciphertext, key-path, key-store-name,
// algorithm-name}` tuple; within one CekTableEntry, every blob must
// decrypt to the same plaintext CEK (spec.md S4.5).
type EncryptedCEKBlob struct {
	Ciphertext    []byte
	KeyPath       string
	KeyStoreName  string
	AlgorithmName string
}

// CekTableEntry is one ordinal-indexed row: identity fields plus the
// ordered list of encrypted-key blobs to try, and the plaintext cache
// populated on first successful decrypt.
type CekTableEntry struct {
	DatabaseID   int32
	CekID        int32
	CekVersion   int32
	CekMdVersion []byte

	Blobs []EncryptedCEKBlob

	mu        sync.RWMutex
	plaintext []byte
}

// Plaintext returns the cached decrypted CEK, or nil if not yet resolved.
func (e *CekTableEntry) Plaintext() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.plaintext
}

// CekTable is the ordered, ordinal-indexed table described in spec.md
// S4.5: single-writer (the owning Connection), multi-reader (concurrent
// Statements/ResultSets) — a lost race on a fresh decrypt is harmless
// because decryption is idempotent, so no lock is held across the
// provider call itself.
type CekTable struct {
	mu      sync.RWMutex
	entries []*CekTableEntry
}

// NewCekTable returns an empty table.
func NewCekTable() *CekTable {
	return &CekTable{}
}

// Add appends entry and returns its ordinal.
func (t *CekTable) Add(entry *CekTableEntry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	return len(t.entries) - 1
}

// Entry returns the entry at ordinal, or nil if out of range.
func (t *CekTable) Entry(ordinal int) *CekTableEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(t.entries) {
		return nil
	}
	return t.entries[ordinal]
}

// Resolve returns entry's plaintext CEK, decrypting it via registry on
// first use. It tries each blob in order; a provider lookup or decrypt
// failure is logged and the next blob is tried (spec.md S8 Testable
// Property #S6, CEK provider failover). If every blob fails, the last
// provider error is returned wrapped in KindCekDecryptionFailed.
func (t *CekTable) Resolve(entry *CekTableEntry, registry *ProviderRegistry, log *logutil.Logger) ([]byte, error) {
	if pt := entry.Plaintext(); pt != nil {
		metrics.CekCacheTotal.WithLabelValues("hit").Inc()
		return pt, nil
	}
	if log == nil {
		log = logutil.Default()
	}

	var lastErr error
	for _, blob := range entry.Blobs {
		provider, err := registry.Lookup(blob.KeyStoreName)
		if err != nil {
			lastErr = err
			metrics.CekProviderFailuresTotal.WithLabelValues(blob.KeyStoreName).Inc()
			log.Warn(logutil.CategoryEncryption, "key-store provider lookup failed: "+err.Error())
			continue
		}
		plaintext, err := provider.DecryptCEK(blob.KeyPath, blob.AlgorithmName, blob.Ciphertext)
		if err != nil {
			lastErr = err
			metrics.CekProviderFailuresTotal.WithLabelValues(blob.KeyStoreName).Inc()
			log.Warn(logutil.CategoryEncryption, "CEK decrypt failed via provider "+blob.KeyStoreName+": "+err.Error())
			continue
		}

		entry.mu.Lock()
		if entry.plaintext == nil {
			entry.plaintext = plaintext
		}
		cached := entry.plaintext
		entry.mu.Unlock()
		metrics.CekCacheTotal.WithLabelValues("miss_resolved").Inc()
		return cached, nil
	}

	metrics.CekCacheTotal.WithLabelValues("miss_failed").Inc()
	if lastErr == nil {
		return nil, errs.New(errs.KindCekDecryptionFailed, "akenc.CekTable.Resolve", "CEK entry has no encrypted-key blobs")
	}
	return nil, errs.Wrap(lastErr, errs.KindCekDecryptionFailed, "akenc.CekTable.Resolve", "all key-store providers failed to decrypt the CEK")
}

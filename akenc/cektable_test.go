package akenc

import (
	"errors"
	"testing"
)

type stubProvider struct {
	plaintext []byte
	err       error
	calls     int
}

func (p *stubProvider) DecryptCEK(keyPath, algorithmName string, encryptedCEK []byte) ([]byte, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.plaintext, nil
}

func TestCekTableResolveCachesOnFirstSuccess(t *testing.T) {
	reg := NewRegistry()
	provider := &stubProvider{plaintext: testCEK()}
	reg.Register("AZURE_KEY_VAULT", provider)

	entry := &CekTableEntry{
		Blobs: []EncryptedCEKBlob{{Ciphertext: []byte("blob"), KeyStoreName: "AZURE_KEY_VAULT"}},
	}

	got, err := NewCekTable().Resolve(entry, reg, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(got) != string(provider.plaintext) {
		t.Fatal("resolve returned unexpected plaintext")
	}

	if _, err := NewCekTable().Resolve(entry, reg, nil); err != nil {
		t.Fatalf("second resolve should hit the cache: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected provider to be called once (cached thereafter), got %d calls", provider.calls)
	}
}

func TestCekTableResolveFailsOverToNextBlob(t *testing.T) {
	reg := NewRegistry()
	bad := &stubProvider{err: errors.New("key vault unreachable")}
	good := &stubProvider{plaintext: testCEK()}
	reg.Register("BAD_PROVIDER", bad)
	reg.Register("GOOD_PROVIDER", good)

	entry := &CekTableEntry{
		Blobs: []EncryptedCEKBlob{
			{Ciphertext: []byte("blob1"), KeyStoreName: "BAD_PROVIDER"},
			{Ciphertext: []byte("blob2"), KeyStoreName: "GOOD_PROVIDER"},
		},
	}

	got, err := NewCekTable().Resolve(entry, reg, nil)
	if err != nil {
		t.Fatalf("resolve should fail over to the second blob: %v", err)
	}
	if string(got) != string(good.plaintext) {
		t.Fatal("resolve returned the wrong provider's plaintext")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("expected exactly one call to each provider, got bad=%d good=%d", bad.calls, good.calls)
	}
}

func TestCekTableResolveFailsWhenAllBlobsFail(t *testing.T) {
	reg := NewRegistry()
	reg.Register("BAD", &stubProvider{err: errors.New("boom")})

	entry := &CekTableEntry{
		Blobs: []EncryptedCEKBlob{{Ciphertext: []byte("blob"), KeyStoreName: "BAD"}},
	}

	if _, err := NewCekTable().Resolve(entry, reg, nil); err == nil {
		t.Fatal("expected an error when every blob's provider fails")
	}
}

func TestCekTableResolveFailsOnUnregisteredProvider(t *testing.T) {
	reg := NewRegistry()
	entry := &CekTableEntry{
		Blobs: []EncryptedCEKBlob{{Ciphertext: []byte("blob"), KeyStoreName: "UNKNOWN"}},
	}
	if _, err := NewCekTable().Resolve(entry, reg, nil); err == nil {
		t.Fatal("expected an error resolving against an unregistered provider")
	}
}

func TestCekTableAddAndEntry(t *testing.T) {
	table := NewCekTable()
	e0 := &CekTableEntry{CekID: 1}
	e1 := &CekTableEntry{CekID: 2}

	if ord := table.Add(e0); ord != 0 {
		t.Fatalf("expected ordinal 0, got %d", ord)
	}
	if ord := table.Add(e1); ord != 1 {
		t.Fatalf("expected ordinal 1, got %d", ord)
	}
	if table.Entry(1).CekID != 2 {
		t.Fatal("Entry(1) returned the wrong entry")
	}
	if table.Entry(5) != nil {
		t.Fatal("Entry with an out-of-range ordinal should return nil")
	}
}

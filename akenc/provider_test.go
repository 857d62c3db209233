package akenc

import "testing"

func TestProviderRegistryLookupMissing(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Lookup("NONE"); err == nil {
		t.Fatal("expected an error looking up an unregistered provider")
	}
}

func TestProviderRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	p := &stubProvider{plaintext: testCEK()}
	reg.Register("MY_PROVIDER", p)

	got, err := reg.Lookup("MY_PROVIDER")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != p {
		t.Fatal("lookup returned a different provider instance")
	}
}

func TestDefaultRegistryIsASingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default() should return the same registry instance across calls")
	}
}

func TestNewRegistryIsIndependentOfDefault(t *testing.T) {
	if NewRegistry() == Default() {
		t.Fatal("NewRegistry() should never alias the process-wide Default() registry")
	}
}

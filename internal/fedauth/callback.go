package fedauth

// CallbackResolver wraps a caller-supplied function, for hosts that manage
// their own token acquisition (e.g. a workload-identity or managed-identity
// integration outside this package's scope) -- the third flow spec.md
// S4.4 names alongside password and Kerberos.
type CallbackResolver struct {
	Fn func(stsURL, spn string) ([]byte, error)
}

var _ Resolver = (*CallbackResolver)(nil)

func (c *CallbackResolver) Resolve(stsURL, spn string) ([]byte, error) {
	return c.Fn(stsURL, spn)
}

package fedauth

import (
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/tdsgo/tds/internal/errs"
)

// KerberosResolver implements the ActiveDirectoryIntegrated flow: it logs
// into the realm with the caller's credentials and negotiates an SPNEGO
// token for the SQL Server SPN the FEDAUTHINFO challenge named (spec.md
// S4.4). Grounded on `github.com/jcmturner/gokrb5/v8`, the one Kerberos
// library anywhere in the retrieval pack.
type KerberosResolver struct {
	Realm    string
	Username string
	Password string
	KrbConfigPath string // path to krb5.conf; defaults to /etc/krb5.conf
}

var _ Resolver = (*KerberosResolver)(nil)

func (k *KerberosResolver) Resolve(stsURL, spn string) ([]byte, error) {
	cfgPath := k.KrbConfigPath
	if cfgPath == "" {
		cfgPath = "/etc/krb5.conf"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.KerberosResolver.Resolve", "loading krb5 configuration")
	}

	cl := client.NewWithPassword(k.Username, k.Realm, k.Password, cfg, client.DisablePAFXFAST(true))
	if err := cl.Login(); err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.KerberosResolver.Resolve", "kerberos login failed")
	}
	defer cl.Destroy()

	spnegoCl := spnego.SPNEGOClient(cl, spn)
	if err := spnegoCl.AcquireCred(); err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.KerberosResolver.Resolve", "acquiring SPNEGO credential")
	}
	ctxTok, err := spnegoCl.InitSecContext()
	if err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.KerberosResolver.Resolve", "initializing SPNEGO security context")
	}
	tok, err := ctxTok.Marshal()
	if err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.KerberosResolver.Resolve", "marshaling SPNEGO token")
	}
	return tok, nil
}

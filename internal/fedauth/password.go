package fedauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tdsgo/tds/internal/errs"
)

// PasswordResolver implements the ActiveDirectoryPassword flow: a resource-
// owner-password-credentials grant against the STS URL the server named in
// FEDAUTHINFO (spec.md S4.4). No OAuth2 client library appears anywhere in
// the retrieval pack, so this POSTs the token request directly with
// net/http + encoding/json -- the standard-library-justified choice in the
// absence of a pack dependency for this.
type PasswordResolver struct {
	Username string
	Password string
	ClientID string // application (client) ID registered with the STS
	HTTPClient *http.Client
	Timeout    time.Duration
}

var _ Resolver = (*PasswordResolver)(nil)

func (p *PasswordResolver) Resolve(stsURL, spn string) ([]byte, error) {
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: p.timeout()}
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", p.Username)
	form.Set("password", p.Password)
	form.Set("client_id", p.ClientID)
	form.Set("resource", spn)
	form.Set("scope", spn+"/.default")

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.PasswordResolver.Resolve", "building STS token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.PasswordResolver.Resolve", "contacting STS")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.KindFedAuthFailed, "fedauth.PasswordResolver.Resolve", "STS returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errs.Wrap(err, errs.KindFedAuthFailed, "fedauth.PasswordResolver.Resolve", "decoding STS response")
	}
	if body.AccessToken == "" {
		return nil, errs.New(errs.KindFedAuthFailed, "fedauth.PasswordResolver.Resolve", "STS response carried no access_token")
	}
	return encodeUTF16LE(body.AccessToken), nil
}

func (p *PasswordResolver) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 15 * time.Second
}

// encodeUTF16LE encodes an ASCII bearer token as UTF-16LE, the wire
// encoding FEDAUTH_TOKEN carries it in. Each byte of s becomes one code
// unit, so only ASCII input is encoded correctly.
func encodeUTF16LE(s string) []byte {
	out := make([]byte, len(s)*2)
	for i, r := range []byte(s) {
		out[i*2] = r
		out[i*2+1] = 0
	}
	return out
}

// Package token implements the pull-based TDS response dispatcher: peek one
// byte, identify the token, invoke a pluggable Handler, repeat until the
// handler signals stop or the stream ends. It is the client-side mirror of
// the teacher's tds/token.go, which builds these same tokens for a server
// to send; here the driver only ever consumes them.
package token

import "github.com/tdsgo/tds/internal/tds"

// Handler receives one callback per token the Parser dispatches. Each
// method returns whether the parser should keep going (true) or stop
// (false); returning an error aborts the loop immediately.
type Handler interface {
	OnEOF() error
	OnError(e *tds.ServerError) (bool, error)
	OnInfo(e *tds.ServerError) (bool, error)
	OnEnvChange(ch EnvChange) (bool, error)
	OnLoginAck(ack LoginAck) (bool, error)
	OnFeatureExtAck(raw []byte) error
	OnDone(d Done) (bool, error)
	OnColMetadata(cols []tds.Column) (bool, error)
	OnRow(cols []tds.Column, values []interface{}) (bool, error)
	OnNBCRow(cols []tds.Column, values []interface{}) (bool, error)
	OnReturnStatus(status int32) (bool, error)
	OnReturnValue() (bool, error)
	OnIgnoredLengthPrefixed(t tds.TokenType) (bool, error)
	OnSSPI(raw []byte) (bool, error)
	OnFedAuthInfo(info FedAuthInfo) (bool, error)
}

// LoginAck is the decoded content of a LOGINACK token.
type LoginAck struct {
	Interface  uint8
	TDSVersion uint32
	ProgName   string
	ProgVerMaj uint8
	ProgVerMin uint8
	ProgVerBld uint16
}

// Done is the decoded content of a DONE/DONEPROC/DONEINPROC token.
type Done struct {
	Kind     tds.TokenType
	Status   uint16
	CurCmd   uint16
	RowCount uint64
}

func (d Done) Final() bool  { return d.Status&tds.DoneMore == 0 }
func (d Done) HasErr() bool { return d.Status&tds.DoneError != 0 }
func (d Done) IsAttnAck() bool { return d.Status&tds.DoneAttn != 0 }

// FedAuthInfo is the decoded content of a FEDAUTHINFO token: STSURL and SPN
// items keyed by the federated-authentication library.
type FedAuthInfo struct {
	STSURL string
	SPN    string
}

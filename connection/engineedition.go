package connection

import (
	"github.com/tdsgo/tds/internal/tds"
	"github.com/tdsgo/tds/internal/token"
)

// engineEditionHandler drains the single-column, single-row result of the
// `SELECT CAST(SERVERPROPERTY('EngineEdition') AS INT)` probe (SPEC_FULL.md
// domain-stack supplement). It implements the full token.Handler interface
// but only cares about ROW and DONE.
type engineEditionHandler struct {
	edition   int
	serverErr *tds.ServerError
}

func (h *engineEditionHandler) OnEOF() error { return nil }

func (h *engineEditionHandler) OnError(e *tds.ServerError) (bool, error) {
	if h.serverErr == nil {
		h.serverErr = e
	}
	return true, nil
}

func (h *engineEditionHandler) OnInfo(e *tds.ServerError) (bool, error) { return true, nil }

func (h *engineEditionHandler) OnEnvChange(ch token.EnvChange) (bool, error) { return true, nil }

func (h *engineEditionHandler) OnLoginAck(ack token.LoginAck) (bool, error) { return true, nil }

func (h *engineEditionHandler) OnFeatureExtAck(raw []byte) error { return nil }

func (h *engineEditionHandler) OnDone(d token.Done) (bool, error) {
	return !d.Final(), nil
}

func (h *engineEditionHandler) OnColMetadata(cols []tds.Column) (bool, error) { return true, nil }

func (h *engineEditionHandler) OnRow(cols []tds.Column, values []interface{}) (bool, error) {
	if len(values) > 0 {
		if v, ok := values[0].(int32); ok {
			h.edition = int(v)
		}
	}
	return true, nil
}

func (h *engineEditionHandler) OnNBCRow(cols []tds.Column, values []interface{}) (bool, error) {
	return h.OnRow(cols, values)
}

func (h *engineEditionHandler) OnReturnStatus(status int32) (bool, error) { return true, nil }
func (h *engineEditionHandler) OnReturnValue() (bool, error)              { return true, nil }
func (h *engineEditionHandler) OnIgnoredLengthPrefixed(t tds.TokenType) (bool, error) {
	return true, nil
}
func (h *engineEditionHandler) OnSSPI(raw []byte) (bool, error) { return true, nil }
func (h *engineEditionHandler) OnFedAuthInfo(info token.FedAuthInfo) (bool, error) {
	return true, nil
}

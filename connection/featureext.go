package connection

// Feature extension IDs carried in LOGIN7 (spec.md S4.4).
const (
	featureExtSessionRecovery  uint8 = 0x01
	featureExtFedAuth          uint8 = 0x02
	featureExtColumnEncryption uint8 = 0x04
	featureExtTerminator       uint8 = 0xFF
)

// featureExtBuilder accumulates `{feature_id:u8, data_len:u32, data}`
// blocks and terminates the stream with 0xFF, matching the wire format
// spec.md S4.4 assigns to the LOGIN7 feature-extension block.
type featureExtBuilder struct {
	buf []byte
}

func newFeatureExtBuilder() *featureExtBuilder {
	return &featureExtBuilder{}
}

func (b *featureExtBuilder) add(featureID uint8, data []byte) {
	b.buf = append(b.buf, featureID)
	n := uint32(len(data))
	b.buf = append(b.buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	b.buf = append(b.buf, data...)
}

func (b *featureExtBuilder) build() []byte {
	return append(append([]byte{}, b.buf...), featureExtTerminator)
}

// columnEncryptionFeatureData is the AE feature-extension payload: a
// single version byte (1 = supported).
func columnEncryptionFeatureData() []byte {
	return []byte{0x01}
}

// sessionRecoveryFeatureData is the empty-initial-state session-recovery
// request payload: on first login the client has no prior state to
// resume, so the request body is empty (spec.md S4.4 resiliency).
func sessionRecoveryFeatureData() []byte {
	return nil
}

// fedAuthFeatureData builds the FEDAUTH feature-extension request body for
// the three supported flows. libraryType: 0x02 = ADAL token-based (covers
// ActiveDirectoryPassword/MSI/callback), 0x00 = SSPI-integrated (Kerberos).
func fedAuthFeatureData(libraryType uint8, fedAuthEcho bool) []byte {
	b := []byte{libraryType}
	if fedAuthEcho {
		b = append(b, 0x01)
	} else {
		b = append(b, 0x00)
	}
	return b
}

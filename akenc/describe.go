package akenc

import (
	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/tds"
)

// describeCekColumns is the fixed, position-sensitive column order the
// describe-parameter-encryption RPC's first result set must carry (spec.md
// S4.5). Any reshaping by the server is a protocol break, not a data
// question, so ParseCekResultSetSchema validates column count and name before
// trusting ordinal position.
var describeCekColumns = []string{
	"KeyOrdinal", "DbId", "KeyId", "KeyVersion", "KeyMdVersion",
	"EncryptedKey", "ProviderName", "KeyPath", "KeyEncryptionAlgorithm",
}

// ParseCekResultSetSchema validates that cols matches the describe-
// parameter-encryption RPC's required column order, failing
// UnexpectedServerSchema on any mismatch (spec.md S4.5: "Column ordinals
// are position-sensitive; any reshaping by the server breaks the client").
func ParseCekResultSetSchema(cols []tds.Column) error {
	if len(cols) != len(describeCekColumns) {
		return errs.Newf(errs.KindUnexpectedServerSchema, "akenc.ParseCekResultSetSchema", "expected %d columns, got %d", len(describeCekColumns), len(cols))
	}
	for i, want := range describeCekColumns {
		if cols[i].Name != want {
			return errs.Newf(errs.KindUnexpectedServerSchema, "akenc.ParseCekResultSetSchema", "column %d: expected %q, got %q", i, want, cols[i].Name)
		}
	}
	return nil
}

// CekDescribeRow is one row of the describe-parameter-encryption RPC's
// first result set, in the fixed column order ParseCekResultSetSchema
// validates.
type CekDescribeRow struct {
	KeyOrdinal             int16
	DbID                   int32
	KeyID                  int32
	KeyVersion             int32
	KeyMdVersion           []byte
	EncryptedKey           []byte
	ProviderName           string
	KeyPath                string
	KeyEncryptionAlgorithm string
}

// BuildCekTable groups a describe RPC's rows by KeyOrdinal into a CekTable,
// one entry per distinct ordinal and one blob per row sharing that
// ordinal — a CEK may have several encrypted blobs (one per key-store
// provider) per spec.md S4.5's CEK-table entry shape.
func BuildCekTable(rows []CekDescribeRow) *CekTable {
	t := NewCekTable()
	byOrdinal := make(map[int16]*CekTableEntry)
	order := make([]int16, 0)

	for _, row := range rows {
		entry, ok := byOrdinal[row.KeyOrdinal]
		if !ok {
			entry = &CekTableEntry{
				DatabaseID:   row.DbID,
				CekID:        row.KeyID,
				CekVersion:   row.KeyVersion,
				CekMdVersion: row.KeyMdVersion,
			}
			byOrdinal[row.KeyOrdinal] = entry
			order = append(order, row.KeyOrdinal)
		}
		entry.Blobs = append(entry.Blobs, EncryptedCEKBlob{
			Ciphertext:    row.EncryptedKey,
			KeyPath:       row.KeyPath,
			KeyStoreName:  row.ProviderName,
			AlgorithmName: row.KeyEncryptionAlgorithm,
		})
	}

	for _, ordinal := range order {
		t.Add(byOrdinal[ordinal])
	}
	return t
}

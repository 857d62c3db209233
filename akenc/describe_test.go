package akenc

import (
	"testing"

	"github.com/tdsgo/tds/internal/tds"
)

func validDescribeColumns() []tds.Column {
	cols := make([]tds.Column, len(describeCekColumns))
	for i, name := range describeCekColumns {
		cols[i] = tds.Column{Name: name}
	}
	return cols
}

func TestParseCekResultSetSchemaAccepts(t *testing.T) {
	if err := ParseCekResultSetSchema(validDescribeColumns()); err != nil {
		t.Fatalf("expected the canonical column order to validate, got %v", err)
	}
}

func TestParseCekResultSetSchemaRejectsReshape(t *testing.T) {
	cols := validDescribeColumns()
	cols[0], cols[1] = cols[1], cols[0]
	if err := ParseCekResultSetSchema(cols); err == nil {
		t.Fatal("expected a reshaped column order to fail schema validation")
	}
}

func TestParseCekResultSetSchemaRejectsWrongColumnCount(t *testing.T) {
	cols := validDescribeColumns()[:len(describeCekColumns)-1]
	if err := ParseCekResultSetSchema(cols); err == nil {
		t.Fatal("expected a short column list to fail schema validation")
	}
}

func TestBuildCekTableGroupsByOrdinal(t *testing.T) {
	rows := []CekDescribeRow{
		{KeyOrdinal: 0, KeyID: 1, ProviderName: "PROVIDER_A", EncryptedKey: []byte("a1")},
		{KeyOrdinal: 0, KeyID: 1, ProviderName: "PROVIDER_B", EncryptedKey: []byte("a2")},
		{KeyOrdinal: 1, KeyID: 2, ProviderName: "PROVIDER_A", EncryptedKey: []byte("b1")},
	}

	table := BuildCekTable(rows)

	e0 := table.Entry(0)
	if e0 == nil || len(e0.Blobs) != 2 {
		t.Fatalf("expected ordinal 0 to have 2 blobs, got %+v", e0)
	}
	e1 := table.Entry(1)
	if e1 == nil || len(e1.Blobs) != 1 {
		t.Fatalf("expected ordinal 1 to have 1 blob, got %+v", e1)
	}
	if table.Entry(2) != nil {
		t.Fatal("expected only two ordinals to be present")
	}
}

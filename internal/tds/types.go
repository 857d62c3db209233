package tds

import "fmt"

// SQLType is the TDS TYPE_INFO type byte (spec.md S3, S6).
type SQLType uint8

const (
	TypeNull  SQLType = 0x1F
	TypeInt1  SQLType = 0x30
	TypeBit   SQLType = 0x32
	TypeInt2  SQLType = 0x34
	TypeInt4  SQLType = 0x38
	TypeFloat4 SQLType = 0x3B
	TypeMoney SQLType = 0x3C
	TypeDateTime  SQLType = 0x3D
	TypeFloat8    SQLType = 0x3E
	TypeDateTime4 SQLType = 0x3A
	TypeMoney4    SQLType = 0x7A
	TypeInt8      SQLType = 0x7F

	TypeGUID            SQLType = 0x24
	TypeIntN            SQLType = 0x26
	TypeDecimal         SQLType = 0x37
	TypeNumeric         SQLType = 0x3F
	TypeBitN            SQLType = 0x68
	TypeDecimalN        SQLType = 0x6A
	TypeNumericN        SQLType = 0x6C
	TypeFloatN          SQLType = 0x6D
	TypeMoneyN          SQLType = 0x6E
	TypeDateTimeN       SQLType = 0x6F
	TypeDateN           SQLType = 0x28
	TypeTimeN           SQLType = 0x29
	TypeDateTime2N      SQLType = 0x2A
	TypeDateTimeOffsetN SQLType = 0x2B

	TypeChar      SQLType = 0x2F
	TypeVarChar   SQLType = 0x27
	TypeBinary    SQLType = 0x2D
	TypeVarBinary SQLType = 0x25

	TypeBigVarBin  SQLType = 0xA5
	TypeBigVarChar SQLType = 0xA7
	TypeBigBinary  SQLType = 0xAD
	TypeBigChar    SQLType = 0xAF
	TypeNVarChar   SQLType = 0xE7
	TypeNChar      SQLType = 0xEF
	TypeXML        SQLType = 0xF1
	TypeUDT        SQLType = 0xF0

	TypeText      SQLType = 0x23
	TypeImage     SQLType = 0x22
	TypeNText     SQLType = 0x63
	TypeSSVariant SQLType = 0x62
)

func (t SQLType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInt1:
		return "TINYINT"
	case TypeBit, TypeBitN:
		return "BIT"
	case TypeInt2:
		return "SMALLINT"
	case TypeInt4:
		return "INT"
	case TypeInt8:
		return "BIGINT"
	case TypeIntN:
		return "INTN"
	case TypeFloat4:
		return "REAL"
	case TypeFloat8, TypeFloatN:
		return "FLOAT"
	case TypeDateTime, TypeDateTimeN:
		return "DATETIME"
	case TypeDateTime4:
		return "SMALLDATETIME"
	case TypeMoney, TypeMoneyN:
		return "MONEY"
	case TypeMoney4:
		return "SMALLMONEY"
	case TypeGUID:
		return "UNIQUEIDENTIFIER"
	case TypeDateN:
		return "DATE"
	case TypeTimeN:
		return "TIME"
	case TypeDateTime2N:
		return "DATETIME2"
	case TypeDateTimeOffsetN:
		return "DATETIMEOFFSET"
	case TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return "DECIMAL"
	case TypeChar, TypeBigChar:
		return "CHAR"
	case TypeVarChar, TypeBigVarChar:
		return "VARCHAR"
	case TypeBinary, TypeBigBinary:
		return "BINARY"
	case TypeVarBinary, TypeBigVarBin:
		return "VARBINARY"
	case TypeNVarChar:
		return "NVARCHAR"
	case TypeNChar:
		return "NCHAR"
	case TypeText:
		return "TEXT"
	case TypeNText:
		return "NTEXT"
	case TypeImage:
		return "IMAGE"
	case TypeXML:
		return "XML"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// ColumnFlags are the COLMETADATA per-column flag bits.
const (
	ColFlagNullable        uint16 = 0x0001
	ColFlagCaseSen         uint16 = 0x0002
	ColFlagUpdateable      uint16 = 0x0008
	ColFlagIdentity        uint16 = 0x0010
	ColFlagComputed        uint16 = 0x0020
	ColFlagFixedLenCLR     uint16 = 0x0100
	ColFlagSparseColumn    uint16 = 0x0400
	ColFlagEncrypted       uint16 = 0x0800
	ColFlagHidden          uint16 = 0x2000
	ColFlagKey             uint16 = 0x4000
	ColFlagNullableUnknown uint16 = 0x8000
)

// DefaultCollation is the 5-byte collation used when a server doesn't
// supply one (mirrors SQL_Latin1_General_CP1_CI_AS).
var DefaultCollation = []byte{0x09, 0x04, 0xD0, 0x00, 0x34}

// Column describes one column of a COLMETADATA result set.
type Column struct {
	Name      string
	Type      SQLType
	Length    uint32
	Precision uint8
	Scale     uint8
	Collation []byte
	Flags     uint16
	UserType  uint32

	// Set when ColFlagEncrypted is present; nil otherwise.
	Crypto *CryptoMetadata
}

func (c Column) Nullable() bool { return c.Flags&ColFlagNullable != 0 }

// CryptoMetadata is the per-column Always Encrypted metadata attached to a
// COLMETADATA entry (spec.md S3 "Crypto Metadata").
type CryptoMetadata struct {
	BaseType             SQLType
	BaseLength           uint32
	BasePrecision        uint8
	BaseScale            uint8
	BaseCollation        []byte
	CekTableOrdinal      int
	AlgorithmID          uint8
	AlgorithmName        string
	EncryptionType       EncryptionType
	NormalizationVersion uint8
	Ordinal              uint16

	cipherAlgInitialized bool
}

// EncryptionType is the Always Encrypted per-value encryption mode.
type EncryptionType uint8

const (
	EncryptionDeterministic EncryptionType = 1
	EncryptionRandomized    EncryptionType = 2
	EncryptionPlaintext     EncryptionType = 0
)

// MarkCipherInitialized sets the lazy-init flag; it is an error to call this
// twice (spec.md S3 invariant: "once initialized, never replaced").
func (c *CryptoMetadata) MarkCipherInitialized() bool {
	if c.cipherAlgInitialized {
		return false
	}
	c.cipherAlgInitialized = true
	return true
}

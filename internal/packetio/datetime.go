package packetio

import (
	"time"

	"github.com/golang-sql/civil"
	"github.com/tdsgo/tds/internal/errs"
)

// readDateAsTime reads a 3-byte little-endian days-since-CE value (DATE /
// the date portion of DATETIME2 and DATETIMEOFFSET) as a time.Time at
// midnight UTC, the representation the DATETIME2/DATETIMEOFFSET composers
// below need for arithmetic.
func (r *Reader) readDateAsTime() (time.Time, error) {
	days, err := r.readDaysSinceCE()
	if err != nil {
		return time.Time{}, err
	}
	return daysSinceCEToTime(days), nil
}

func (r *Reader) readDaysSinceCE() (int32, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	days := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if days&0x800000 != 0 {
		return 0, errs.New(errs.KindInvalidProtocol, "packetio.ReadDate", "negative days-since-CE is not valid TDS")
	}
	return days, nil
}

// ReadDate reads the TDS DATE type as a civil.Date: DATE has no time-of-day
// or timezone component on the wire, so civil.Date models it exactly where
// time.Time would carry a spurious midnight-UTC instant.
func (r *Reader) ReadDate() (civil.Date, error) {
	days, err := r.readDaysSinceCE()
	if err != nil {
		return civil.Date{}, err
	}
	t := daysSinceCEToTime(days)
	return civil.DateOf(t), nil
}

// ReadTime reads the TIME(scale) nanos-since-midnight field.
func (r *Reader) ReadTime(scale uint8) (time.Duration, error) {
	if scale > 7 {
		return 0, errs.Newf(errs.KindInvalidProtocol, "packetio.ReadTime", "scale %d out of range", scale)
	}
	n := timeScaleBytes[scale]
	b, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	var raw uint64
	for i := n - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(b[i])
	}
	ns, err := decodeNanosSinceMidnight(raw, scale)
	if err != nil {
		return 0, err
	}
	return time.Duration(ns), nil
}

// ReadDateTime2 reads a DATETIME2(scale) value: TIME(scale) followed by a
// 3-byte date.
func (r *Reader) ReadDateTime2(scale uint8) (time.Time, error) {
	tod, err := r.ReadTime(scale)
	if err != nil {
		return time.Time{}, err
	}
	date, err := r.readDateAsTime()
	if err != nil {
		return time.Time{}, err
	}
	return date.Add(tod), nil
}

// ReadDateTimeOffset reads a DATETIMEOFFSET(scale) value: DATETIME2(scale)
// followed by a signed 2-byte minutes offset applied as a fixed zone.
func (r *Reader) ReadDateTimeOffset(scale uint8) (time.Time, error) {
	utc, err := r.ReadDateTime2(scale)
	if err != nil {
		return time.Time{}, err
	}
	offMin, err := r.ReadI16()
	if err != nil {
		return time.Time{}, err
	}
	loc := time.FixedZone("", int(offMin)*60)
	return utc.In(loc), nil
}

// ReadDateTime reads the legacy 8-byte DATETIME type.
func (r *Reader) ReadDateTime() (time.Time, error) {
	days, err := r.ReadI32()
	if err != nil {
		return time.Time{}, err
	}
	ticks, err := r.ReadU32()
	if err != nil {
		return time.Time{}, err
	}
	return decodeDateTime(days, ticks), nil
}

// ReadSmallDateTime reads the 4-byte SMALLDATETIME type.
func (r *Reader) ReadSmallDateTime() (time.Time, error) {
	days, err := r.ReadU16()
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := r.ReadU16()
	if err != nil {
		return time.Time{}, err
	}
	return decodeSmallDateTime(days, minutes), nil
}

package packetio

import (
	"fmt"
	"sync"
	"time"
)

// ceEpoch is 0001-01-01, the origin of the TDS "days since CE" encoding.
var ceEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

// sql1900Epoch is 1900-01-01, the origin used by DATETIME/SMALLDATETIME.
var sql1900Epoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// timeScaleBytes maps a TIME/DATETIME2/DATETIMEOFFSET fractional-seconds
// scale (0..7) to the wire length in bytes of the nanos-since-midnight
// field (spec.md S4.2).
var timeScaleBytes = [8]int{3, 3, 3, 4, 4, 5, 5, 5}

var calendarOnce sync.Once
var calendarCorrectionDays int

// calendarCorrection returns the fixed day offset that must be added to a
// days-since-CE value computed against a hybrid Julian/Gregorian host
// calendar so it lines up with the server's pure-Gregorian one. Probed
// once by checking how a reference implementation would represent the
// 1582-10-15 Gregorian cutover date; Go's time.Time is already proleptic
// Gregorian throughout, so the probe always resolves to zero here — the
// mechanism exists so the logic mirrors the teacher/driver-ecosystem
// calendars that are not.
func calendarCorrection() int {
	calendarOnce.Do(func() {
		cutover := time.Date(1582, time.October, 15, 0, 0, 0, 0, time.UTC)
		days := int((cutover.Unix() - ceEpoch.Unix()) / 86400)
		reconstructed := ceEpoch.AddDate(0, 0, days)
		if reconstructed.Equal(cutover) {
			calendarCorrectionDays = 0
		} else {
			calendarCorrectionDays = 2
		}
	})
	return calendarCorrectionDays
}

// daysSinceCEToTime converts a days-since-0001-01-01 count to a UTC date.
func daysSinceCEToTime(days int32) time.Time {
	return ceEpoch.AddDate(0, 0, int(days)+calendarCorrection())
}

// timeToDaysSinceCE is the writer-side inverse, used when building RPC
// parameters for DATE/DATETIME2/DATETIMEOFFSET columns.
func timeToDaysSinceCE(t time.Time) int32 {
	days := int((t.UTC().Unix() - ceEpoch.Unix()) / 86400)
	return int32(days - calendarCorrection())
}

// decodeNanosSinceMidnight converts the raw little-endian integer read from
// a TIME/DATETIME2/DATETIMEOFFSET field (length determined by scale) into
// nanoseconds since midnight.
func decodeNanosSinceMidnight(raw uint64, scale uint8) (int64, error) {
	ns := int64(raw) * pow10(7-int(scale)) * 100
	const dayNanos = 24 * 3600 * 1_000_000_000
	if ns < 0 || ns >= dayNanos {
		return 0, fmt.Errorf("packetio: time value out of range: %d ns", ns)
	}
	return ns, nil
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// decodeDateTime decodes the legacy 8-byte DATETIME encoding: 4-byte signed
// days since 1900-01-01 plus 4-byte ticks-since-midnight at 1/300s.
func decodeDateTime(days int32, ticks uint32) time.Time {
	ms := (int64(ticks)*10 + 1) / 3
	return sql1900Epoch.AddDate(0, 0, int(days)).Add(time.Duration(ms) * time.Millisecond)
}

// decodeSmallDateTime decodes the 4-byte SMALLDATETIME encoding: u16 days
// since 1900-01-01 plus u16 minutes since midnight.
func decodeSmallDateTime(days, minutes uint16) time.Time {
	return sql1900Epoch.AddDate(0, 0, int(days)).Add(time.Duration(minutes) * time.Minute)
}

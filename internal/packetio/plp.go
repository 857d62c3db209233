package packetio

const (
	plpNull       uint64 = 0xFFFFFFFFFFFFFFFF
	plpUnknownLen uint64 = 0xFFFFFFFFFFFFFFFE
)

// ReadPLP reads a partially-length-prefixed value: an 8-byte length
// sentinel followed by a chain of {u32 chunk length, chunk bytes} pairs
// terminated by a zero-length chunk. Used for VARCHAR(MAX)/NVARCHAR(MAX)/
// VARBINARY(MAX)/XML columns.
func (r *Reader) ReadPLP() (data []byte, isNull bool, err error) {
	total, err := r.ReadU64()
	if err != nil {
		return nil, false, err
	}
	if total == plpNull {
		return nil, true, nil
	}
	// total == plpUnknownLen or an exact byte count; either way we drain
	// chunks until the terminator, which is correct in both cases.
	for {
		chunkLen, err := r.ReadU32()
		if err != nil {
			return nil, false, err
		}
		if chunkLen == 0 {
			break
		}
		chunk, err := r.ReadBytes(int(chunkLen))
		if err != nil {
			return nil, false, err
		}
		data = append(data, chunk...)
	}
	return data, false, nil
}

package rdb

// lzfDecompress decompresses an LZF payload into exactly outLen bytes.
//
// The stream alternates literal runs (control byte < 32, run length ctrl+1)
// with back references (length in the top three bits, extended by one byte
// when 7, offset in the low five bits plus one byte).
func lzfDecompress(in []byte, outLen int) ([]byte, error) {
	out := make([]byte, outLen)
	op := 0
	ip := 0

	for ip < len(in) {
		ctrl := int(in[ip])
		ip++

		if ctrl < 32 {
			run := ctrl + 1
			if ip+run > len(in) {
				return nil, corruptf("literal run of %d past end of input", run)
			}
			if op+run > outLen {
				return nil, corruptf("literal run overflows output of %d bytes", outLen)
			}
			copy(out[op:], in[ip:ip+run])
			op += run
			ip += run
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if ip >= len(in) {
				return nil, corruptf("missing extended length")
			}
			length += int(in[ip])
			ip++
		}
		length += 2

		if ip >= len(in) {
			return nil, corruptf("missing back reference offset")
		}
		ref := op - ((ctrl&0x1f)<<8 | int(in[ip])) - 1
		ip++

		if ref < 0 {
			return nil, corruptf("back reference before start of output")
		}
		if op+length > outLen {
			return nil, corruptf("back reference overflows output of %d bytes", outLen)
		}
		// Byte by byte: the reference may overlap the bytes being written.
		for i := 0; i < length; i++ {
			out[op] = out[ref]
			op++
			ref++
		}
	}

	if op != outLen {
		return nil, corruptf("decompressed %d bytes, expected %d", op, outLen)
	}
	return out, nil
}

package rdb

import "hash/crc64"

// jonesReversed is the bit-reversed form of the Jones polynomial
// 0xad93d23594c935a9 used by Redis.
const jonesReversed = 0x95ac9329ac4bc9b5

var jonesTable = crc64.MakeTable(jonesReversed)

// crcUpdate continues a Redis CRC-64 over p. Redis uses init 0 and no final
// xor while hash/crc64 complements on entry and exit, so undo both.
func crcUpdate(crc uint64, p []byte) uint64 {
	return ^crc64.Update(^crc, jonesTable, p)
}

func crcUpdateByte(crc uint64, b byte) uint64 {
	return jonesTable[byte(crc)^b] ^ (crc >> 8)
}

// Checksum returns the Redis CRC-64 of p
func Checksum(p []byte) uint64 {
	return crcUpdate(0, p)
}

// Package rdb implements a streaming decoder for the Redis RDB snapshot format.
//
// The decoder reads from a Cursor, which buffers the underlying source and
// accumulates the CRC-64 checksum of every byte consumed. Decoded keys are
// delivered to a Handler one Entity at a time, in on-disk order:
//
//	cur := rdb.NewCursor(f, 0)
//	p := rdb.NewParser(cur, handler)
//	res, err := p.Parse()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("checksum %x verified=%v\n", res.Checksum, res.Verified())
//
// All container encodings produced by Redis 2.x through 7.x are supported:
// plain lists, sets, hashes and sorted sets, zipmaps, ziplists, intsets,
// quicklists, listpacks, streams and self-describing module values.
package rdb

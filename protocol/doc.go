// Package protocol implements the parts of the Redis Serialization Protocol
// (RESP) a replica needs: reading the master's replies and its stream of
// multi-bulk write commands, and writing handshake commands.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	for {
//		cmd, err := reader.ReadCommand()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		// Process cmd
//	}
//
// Malformed frames are reported as ErrProtocolFraming. A frame cut short
// by the end of input is reported as io.ErrUnexpectedEOF and never yields
// a partial command.
package protocol

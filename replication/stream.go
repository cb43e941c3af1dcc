package replication

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/raniellyferreira/redis-replicator/protocol"
	"github.com/raniellyferreira/redis-replicator/rdb"
)

// streamOperations decodes the multi-bulk frames following the snapshot
// until a clean end of input. Each frame is dispatched as one Operation.
func (s *Session) streamOperations() error {
	rd := protocol.NewReader(s.cur)
	start := s.cur.Offset()
	base := s.info.BaseOffset

	for {
		more, err := s.cur.More()
		if err != nil {
			return err
		}
		if !more {
			s.logger.Debug("Operation stream ended", "offset", s.offset.Load())
			return nil
		}

		cmd, err := rd.ReadCommand()
		if err == io.ErrUnexpectedEOF {
			return rdb.ErrTruncatedInput
		}
		if err != nil {
			return err
		}
		offset := base + s.cur.Offset() - start
		s.offset.Store(offset)

		switch cmd.Name {
		case "SELECT":
			if len(cmd.Args) != 1 {
				return errors.Wrap(protocol.ErrProtocolFraming, "SELECT without a database")
			}
			db, err := strconv.Atoi(string(cmd.Args[0]))
			if err != nil || db < 0 {
				return errors.Wrapf(protocol.ErrProtocolFraming, "SELECT %q", cmd.Args[0])
			}
			s.db = db

		case "REPLCONF":
			// GETACK is addressed to the replica, not a write
			if len(cmd.Args) > 0 && strings.EqualFold(string(cmd.Args[0]), "GETACK") {
				if err := s.ack(offset); err != nil {
					s.logger.Error("Failed to answer GETACK", "error", err)
				}
				continue
			}
		}

		op := &Operation{
			Name:   cmd.Name,
			Args:   cmd.Args,
			DB:     s.db,
			Offset: offset,
		}
		if _, err := s.dispatch.operation(op); err != nil {
			return err
		}
	}
}

// ack sends REPLCONF ACK when the source supports it
func (s *Session) ack(offset int64) error {
	a, ok := s.src.(Acker)
	if !ok {
		return nil
	}
	return a.Ack(offset)
}

package rdb

import (
	"encoding/binary"
	"strconv"
	"time"
)

const (
	streamIDSize = 16

	streamFlagDeleted    = 1
	streamFlagSameFields = 2
)

// StreamID is a stream entry identifier
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// String formats the ID as Redis does, "<ms>-<seq>"
func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// StreamEntry is a single live stream entry
type StreamEntry struct {
	ID     StreamID
	Fields []HashField
}

// StreamPending is a pending entry list record of a consumer group
type StreamPending struct {
	ID            StreamID
	DeliveryTime  time.Time
	DeliveryCount uint64
}

// StreamConsumer is a consumer of a group
type StreamConsumer struct {
	Name       []byte
	SeenTime   time.Time
	ActiveTime time.Time // zero before stream encoding 3
	Pending    []StreamID
}

// StreamGroup is a consumer group
type StreamGroup struct {
	Name        []byte
	LastID      StreamID
	EntriesRead int64 // -1 before stream encoding 2
	Pending     []StreamPending
	Consumers   []StreamConsumer
}

// StreamValue is a stream value
type StreamValue struct {
	Entries      []StreamEntry
	Length       uint64
	LastID       StreamID
	FirstID      StreamID
	MaxDeletedID StreamID
	EntriesAdded uint64
	Groups       []StreamGroup
}

func (p *Parser) readStream(t TypeTag) (Value, error) {
	s := &StreamValue{}

	nodes, err := p.readCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nodes; i++ {
		key, err := p.readString()
		if err != nil {
			return nil, err
		}
		if len(key) != streamIDSize {
			return nil, encodingf("stream node key of %d bytes", len(key))
		}
		master := parseRawStreamID(key)
		lp, err := p.readString()
		if err != nil {
			return nil, err
		}
		items, err := decodeListpack(lp)
		if err != nil {
			return nil, err
		}
		entries, err := decodeStreamNode(master, items)
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, entries...)
	}

	if s.Length, err = p.readLen(); err != nil {
		return nil, err
	}
	if s.LastID, err = p.readStreamID(); err != nil {
		return nil, err
	}
	if t >= TypeStreamListpacks2 {
		if s.FirstID, err = p.readStreamID(); err != nil {
			return nil, err
		}
		if s.MaxDeletedID, err = p.readStreamID(); err != nil {
			return nil, err
		}
		if s.EntriesAdded, err = p.readLen(); err != nil {
			return nil, err
		}
	}

	groups, err := p.readCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < groups; i++ {
		g, err := p.readStreamGroup(t)
		if err != nil {
			return nil, err
		}
		s.Groups = append(s.Groups, g)
	}
	return s, nil
}

func (p *Parser) readStreamGroup(t TypeTag) (StreamGroup, error) {
	g := StreamGroup{EntriesRead: -1}
	var err error
	if g.Name, err = p.readString(); err != nil {
		return g, err
	}
	if g.LastID, err = p.readStreamID(); err != nil {
		return g, err
	}
	if t >= TypeStreamListpacks2 {
		read, err := p.readLen()
		if err != nil {
			return g, err
		}
		g.EntriesRead = int64(read)
	}

	pel, err := p.readCount()
	if err != nil {
		return g, err
	}
	for i := 0; i < pel; i++ {
		id, err := p.readRawStreamID()
		if err != nil {
			return g, err
		}
		delivered, err := p.readMillisTime()
		if err != nil {
			return g, err
		}
		count, err := p.readLen()
		if err != nil {
			return g, err
		}
		g.Pending = append(g.Pending, StreamPending{ID: id, DeliveryTime: delivered, DeliveryCount: count})
	}

	consumers, err := p.readCount()
	if err != nil {
		return g, err
	}
	for i := 0; i < consumers; i++ {
		var c StreamConsumer
		if c.Name, err = p.readString(); err != nil {
			return g, err
		}
		if c.SeenTime, err = p.readMillisTime(); err != nil {
			return g, err
		}
		if t >= TypeStreamListpacks3 {
			if c.ActiveTime, err = p.readMillisTime(); err != nil {
				return g, err
			}
		}
		n, err := p.readCount()
		if err != nil {
			return g, err
		}
		for j := 0; j < n; j++ {
			id, err := p.readRawStreamID()
			if err != nil {
				return g, err
			}
			c.Pending = append(c.Pending, id)
		}
		g.Consumers = append(g.Consumers, c)
	}
	return g, nil
}

func (p *Parser) readStreamID() (StreamID, error) {
	ms, err := p.readLen()
	if err != nil {
		return StreamID{}, err
	}
	seq, err := p.readLen()
	if err != nil {
		return StreamID{}, err
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

func (p *Parser) readRawStreamID() (StreamID, error) {
	var buf [streamIDSize]byte
	if err := p.cur.ReadInto(buf[:]); err != nil {
		return StreamID{}, err
	}
	return parseRawStreamID(buf[:]), nil
}

func parseRawStreamID(b []byte) StreamID {
	return StreamID{
		Ms:  binary.BigEndian.Uint64(b[0:8]),
		Seq: binary.BigEndian.Uint64(b[8:16]),
	}
}

// streamNode iterates the listpack items of one stream node
type streamNode struct {
	items [][]byte
	pos   int
}

func (n *streamNode) next() ([]byte, error) {
	if n.pos >= len(n.items) {
		return nil, truncatedf("stream listpack ends mid entry")
	}
	it := n.items[n.pos]
	n.pos++
	return it, nil
}

func (n *streamNode) int() (int64, error) {
	it, err := n.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(string(it), 10, 64)
	if err != nil {
		return 0, encodingf("stream listpack integer %q", it)
	}
	return v, nil
}

// decodeStreamNode expands the delta-encoded entries of a node. The node
// starts with a master entry: count, deleted, the master field names and a
// zero terminator. Deleted entries are skipped.
func decodeStreamNode(master StreamID, items [][]byte) ([]StreamEntry, error) {
	n := &streamNode{items: items}

	count, err := n.int()
	if err != nil {
		return nil, err
	}
	deleted, err := n.int()
	if err != nil {
		return nil, err
	}
	numMaster, err := n.int()
	if err != nil {
		return nil, err
	}
	if count < 0 || deleted < 0 || numMaster < 0 || numMaster > int64(len(items)) {
		return nil, encodingf("stream node header %d/%d/%d", count, deleted, numMaster)
	}
	masterFields := make([][]byte, 0, numMaster)
	for i := int64(0); i < numMaster; i++ {
		f, err := n.next()
		if err != nil {
			return nil, err
		}
		masterFields = append(masterFields, f)
	}
	if _, err := n.int(); err != nil { // master entry terminator
		return nil, err
	}

	entries := make([]StreamEntry, 0, min(count, int64(len(items))))
	for seen := int64(0); seen < count+deleted; seen++ {
		flags, err := n.int()
		if err != nil {
			return nil, err
		}
		msDiff, err := n.int()
		if err != nil {
			return nil, err
		}
		seqDiff, err := n.int()
		if err != nil {
			return nil, err
		}
		e := StreamEntry{ID: StreamID{
			Ms:  master.Ms + uint64(msDiff),
			Seq: master.Seq + uint64(seqDiff),
		}}

		if flags&streamFlagSameFields != 0 {
			for _, f := range masterFields {
				v, err := n.next()
				if err != nil {
					return nil, err
				}
				e.Fields = append(e.Fields, HashField{Field: f, Value: v})
			}
		} else {
			nf, err := n.int()
			if err != nil {
				return nil, err
			}
			for i := int64(0); i < nf; i++ {
				f, err := n.next()
				if err != nil {
					return nil, err
				}
				v, err := n.next()
				if err != nil {
					return nil, err
				}
				e.Fields = append(e.Fields, HashField{Field: f, Value: v})
			}
		}
		if _, err := n.int(); err != nil { // lp-count back pointer
			return nil, err
		}
		if flags&streamFlagDeleted == 0 {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

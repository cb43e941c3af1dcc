package rdb

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Quicklist 2 node containers
const (
	quicklistNodePlain  = 1
	quicklistNodePacked = 2
)

// readValue decodes the value that follows a key of the given type
func (p *Parser) readValue(t TypeTag) (Value, error) {
	switch t {
	case TypeString:
		data, err := p.readString()
		if err != nil {
			return nil, err
		}
		return StringValue{Data: data}, nil

	case TypeList:
		elems, err := p.readStrings(1)
		if err != nil {
			return nil, err
		}
		return ListValue{Elements: elems}, nil

	case TypeSet:
		members, err := p.readStrings(1)
		if err != nil {
			return nil, err
		}
		return SetValue{Members: members}, nil

	case TypeZSet, TypeZSet2:
		return p.readZSet(t == TypeZSet2)

	case TypeHash:
		items, err := p.readStrings(2)
		if err != nil {
			return nil, err
		}
		fields, err := splitPairs("hash", items)
		if err != nil {
			return nil, err
		}
		return HashValue{Fields: fields}, nil

	case TypeModulePreGA:
		return nil, encodingf("pre-GA module values are not self-describing")

	case TypeModule2:
		return p.readModule()

	case TypeHashZipmap:
		buf, err := p.readString()
		if err != nil {
			return nil, err
		}
		fields, err := decodeZipmap(buf)
		if err != nil {
			return nil, err
		}
		return HashValue{Fields: fields}, nil

	case TypeListZiplist:
		elems, err := p.readPacked(decodeZiplist)
		if err != nil {
			return nil, err
		}
		return ListValue{Elements: elems}, nil

	case TypeSetIntset:
		members, err := p.readPacked(decodeIntset)
		if err != nil {
			return nil, err
		}
		return SetValue{Members: members}, nil

	case TypeSetListpack:
		members, err := p.readPacked(decodeListpack)
		if err != nil {
			return nil, err
		}
		return SetValue{Members: members}, nil

	case TypeZSetZiplist, TypeZSetListpack:
		decode, name := decodeZiplist, "zset ziplist"
		if t == TypeZSetListpack {
			decode, name = decodeListpack, "zset listpack"
		}
		items, err := p.readPacked(decode)
		if err != nil {
			return nil, err
		}
		members, err := splitScores(name, items)
		if err != nil {
			return nil, err
		}
		return SortedSetValue{Members: members}, nil

	case TypeHashZiplist, TypeHashListpack:
		decode, name := decodeZiplist, "hash ziplist"
		if t == TypeHashListpack {
			decode, name = decodeListpack, "hash listpack"
		}
		items, err := p.readPacked(decode)
		if err != nil {
			return nil, err
		}
		fields, err := splitPairs(name, items)
		if err != nil {
			return nil, err
		}
		return HashValue{Fields: fields}, nil

	case TypeListQuicklist:
		return p.readQuicklist(false)

	case TypeListQuicklist2:
		return p.readQuicklist(true)

	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		return p.readStream(t)

	case TypeHashMetadataPreGA, TypeHashListpackExPreGA:
		return nil, encodingf("pre-GA hash field expiration")

	case TypeHashMetadata:
		return p.readHashMetadata()

	case TypeHashListpackEx:
		return p.readHashListpackEx()
	}

	return nil, errors.Wrapf(ErrUnknownTypeTag, "type %d", byte(t))
}

// readStrings reads a length followed by length*per strings
func (p *Parser) readStrings(per int) ([][]byte, error) {
	n, err := p.readCount()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, min(n*per, 1024))
	for i := 0; i < n*per; i++ {
		s, err := p.readString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Parser) readZSet(binaryScores bool) (Value, error) {
	n, err := p.readCount()
	if err != nil {
		return nil, err
	}
	members := make([]ZSetMember, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		member, err := p.readString()
		if err != nil {
			return nil, err
		}
		var score float64
		if binaryScores {
			score, err = p.readBinaryDouble()
		} else {
			score, err = p.readStringDouble()
		}
		if err != nil {
			return nil, err
		}
		members = append(members, ZSetMember{Member: member, Score: score})
	}
	return SortedSetValue{Members: members}, nil
}

// readPacked reads a string holding a packed buffer and decodes it
func (p *Parser) readPacked(decode func([]byte) ([][]byte, error)) ([][]byte, error) {
	buf, err := p.readString()
	if err != nil {
		return nil, err
	}
	return decode(buf)
}

// readQuicklist reads a list stored as a sequence of ziplist nodes (v1) or
// of plain/listpack nodes (v2)
func (p *Parser) readQuicklist(v2 bool) (Value, error) {
	nodes, err := p.readCount()
	if err != nil {
		return nil, err
	}

	var elems [][]byte
	for i := 0; i < nodes; i++ {
		container := uint64(quicklistNodePacked)
		if v2 {
			if container, err = p.readLen(); err != nil {
				return nil, err
			}
		}
		buf, err := p.readString()
		if err != nil {
			return nil, err
		}

		switch {
		case !v2:
			items, err := decodeZiplist(buf)
			if err != nil {
				return nil, err
			}
			elems = append(elems, items...)
		case container == quicklistNodePlain:
			elems = append(elems, buf)
		case container == quicklistNodePacked:
			items, err := decodeListpack(buf)
			if err != nil {
				return nil, err
			}
			elems = append(elems, items...)
		default:
			return nil, encodingf("quicklist container %d", container)
		}
	}
	if elems == nil {
		elems = [][]byte{}
	}
	return ListValue{Elements: elems}, nil
}

// readHashMetadata reads a hash with field TTLs: the minimum expiration
// time, then field count triples of <ttl><field><value>. A stored ttl of 0
// means the field does not expire, otherwise it is relative to the minimum
// plus one.
func (p *Parser) readHashMetadata() (Value, error) {
	minExpire, err := p.readUint64(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	n, err := p.readCount()
	if err != nil {
		return nil, err
	}
	fields := make([]HashField, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		ttl, err := p.readLen()
		if err != nil {
			return nil, err
		}
		field, err := p.readString()
		if err != nil {
			return nil, err
		}
		value, err := p.readString()
		if err != nil {
			return nil, err
		}
		f := HashField{Field: field, Value: value}
		if ttl != 0 {
			f.Expiry = fieldExpiry(minExpire + ttl - 1)
		}
		fields = append(fields, f)
	}
	return HashValue{Fields: fields}, nil
}

// readHashListpackEx reads the minimum expiration time followed by a
// listpack of <field><value><ttl> triples, ttl being an absolute unix time
// in milliseconds or 0.
func (p *Parser) readHashListpackEx() (Value, error) {
	if _, err := p.readUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	items, err := p.readPacked(decodeListpack)
	if err != nil {
		return nil, err
	}
	if len(items)%3 != 0 {
		return nil, encodingf("hash listpackex of %d items", len(items))
	}
	fields := make([]HashField, 0, len(items)/3)
	for i := 0; i < len(items); i += 3 {
		ttl, err := strconv.ParseUint(string(items[i+2]), 10, 64)
		if err != nil {
			return nil, encodingf("hash listpackex ttl %q", items[i+2])
		}
		f := HashField{Field: items[i], Value: items[i+1]}
		if ttl != 0 {
			f.Expiry = fieldExpiry(ttl)
		}
		fields = append(fields, f)
	}
	return HashValue{Fields: fields}, nil
}

func fieldExpiry(ms uint64) *time.Time {
	t := time.UnixMilli(int64(ms))
	return &t
}

package rdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const magic = "REDIS"

// Handler receives the decoded records of a snapshot. Any error returned
// stops parsing and is returned from Parse unchanged.
type Handler interface {
	// OnHeader is called once the header has been validated
	OnHeader(version int) error

	// OnDatabase is called when a SELECTDB opcode switches database
	OnDatabase(index int) error

	// OnAux is called for AUX, RESIZEDB and FUNCTION2 records
	OnAux(aux Aux) error

	// OnEntity is called for each fully decoded key
	OnEntity(e *Entity) error

	// OnEnd is called after the footer has been read
	OnEnd(res Result) error
}

// ChecksumPolicy selects what happens with the trailing checksum
type ChecksumPolicy int

const (
	// ChecksumReport compares the checksum and reports a mismatch in the
	// Result without failing
	ChecksumReport ChecksumPolicy = iota
	// ChecksumIgnore skips the comparison
	ChecksumIgnore
	// ChecksumStrict fails the parse with ErrChecksumMismatch
	ChecksumStrict
)

// String returns the policy name as used in configuration
func (c ChecksumPolicy) String() string {
	switch c {
	case ChecksumReport:
		return "report"
	case ChecksumIgnore:
		return "ignore"
	case ChecksumStrict:
		return "strict"
	default:
		return "unknown(" + strconv.Itoa(int(c)) + ")"
	}
}

// ParseChecksumPolicy parses "report", "ignore" or "strict"
func ParseChecksumPolicy(s string) (ChecksumPolicy, error) {
	switch s {
	case "", "report":
		return ChecksumReport, nil
	case "ignore":
		return ChecksumIgnore, nil
	case "strict":
		return ChecksumStrict, nil
	}
	return 0, errors.Errorf("unknown checksum policy %q", s)
}

// Logger is the subset of logging the parser uses
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
}

// Parser decodes one snapshot from a Cursor
type Parser struct {
	cur     *Cursor
	handler Handler
	logger  Logger

	policy     ChecksumPolicy
	allowNewer bool

	version int
	db      int

	// Pending metadata for the next entity
	expiry *time.Time
	idle   int64
	freq   int
}

// NewParser creates a parser reading from cur and delivering to handler
func NewParser(cur *Cursor, handler Handler) *Parser {
	return &Parser{
		cur:     cur,
		handler: handler,
		idle:    -1,
		freq:    -1,
	}
}

// SetLogger sets the logger for the parser
func (p *Parser) SetLogger(logger Logger) {
	p.logger = logger
}

// SetChecksumPolicy sets how the trailing checksum is handled
func (p *Parser) SetChecksumPolicy(policy ChecksumPolicy) {
	p.policy = policy
}

// SetAllowNewerVersions makes the parser accept versions above
// MaxSupportedVersion, decoding them with the latest known encoding table
func (p *Parser) SetAllowNewerVersions(allow bool) {
	p.allowNewer = allow
}

func (p *Parser) logDebug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Parser) logInfo(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

// Parse decodes the snapshot up to and including its footer. The cursor is
// left positioned at the first byte after the snapshot, with checksum
// accumulation turned off.
func (p *Parser) Parse() (Result, error) {
	res := Result{}

	p.cur.ResetChecksum()
	p.cur.SetChecksumming(true)
	defer p.cur.SetChecksumming(false)

	version, err := p.readHeader()
	if err != nil {
		return res, err
	}
	res.Version = version
	p.version = version
	p.logDebug("RDB header", "version", version)

	if err := p.handler.OnHeader(version); err != nil {
		return res, err
	}

	for {
		start := p.cur.Offset()
		opcode, err := p.cur.ReadByte()
		if err != nil {
			return res, p.fail(start, "opcode", err)
		}

		switch opcode {
		case OpcodeEOF:
			return p.readFooter(res)

		case OpcodeSelectDB:
			db, err := p.readCount()
			if err != nil {
				return res, p.fail(start, "database selector", err)
			}
			p.db = db
			if err := p.handler.OnDatabase(db); err != nil {
				return res, err
			}

		case OpcodeExpireTime:
			secs, err := p.readUint32(binary.LittleEndian)
			if err != nil {
				return res, p.fail(start, "expire time", err)
			}
			t := time.Unix(int64(int32(secs)), 0)
			p.expiry = &t

		case OpcodeExpireTimeMs:
			ms, err := p.readUint64(binary.LittleEndian)
			if err != nil {
				return res, p.fail(start, "expire time ms", err)
			}
			t := time.UnixMilli(int64(ms))
			p.expiry = &t

		case OpcodeResizeDB:
			size, err := p.readLen()
			if err != nil {
				return res, p.fail(start, "resizedb", err)
			}
			expires, err := p.readLen()
			if err != nil {
				return res, p.fail(start, "resizedb", err)
			}
			aux := Aux{Kind: AuxResizeDB, DB: p.db, DBSize: size, ExpiresSize: expires}
			if err := p.handler.OnAux(aux); err != nil {
				return res, err
			}

		case OpcodeAux:
			key, err := p.readString()
			if err != nil {
				return res, p.fail(start, "aux key", err)
			}
			value, err := p.readString()
			if err != nil {
				return res, p.fail(start, "aux value", err)
			}
			if err := p.handler.OnAux(Aux{Kind: AuxField, Key: key, Value: value}); err != nil {
				return res, err
			}

		case OpcodeFreq:
			b, err := p.cur.ReadByte()
			if err != nil {
				return res, p.fail(start, "lfu frequency", err)
			}
			p.freq = int(b)

		case OpcodeIdle:
			idle, err := p.readLen()
			if err != nil {
				return res, p.fail(start, "lru idle", err)
			}
			p.idle = int64(idle)

		case OpcodeModuleAux:
			if err := p.skipModuleAux(); err != nil {
				return res, p.fail(start, "module aux", err)
			}

		case OpcodeFunctionPreGA:
			return res, p.fail(start, "function", encodingf("pre-GA function payload"))

		case OpcodeFunction2:
			code, err := p.readString()
			if err != nil {
				return res, p.fail(start, "function", err)
			}
			if err := p.handler.OnAux(Aux{Kind: AuxFunction, Value: code}); err != nil {
				return res, err
			}

		case OpcodeSlotInfo:
			for i := 0; i < 3; i++ {
				if _, err := p.readLen(); err != nil {
					return res, p.fail(start, "slot info", err)
				}
			}

		default:
			e, err := p.readEntity(TypeTag(opcode))
			if err != nil {
				return res, p.fail(start, fmt.Sprintf("value of type %d", opcode), err)
			}
			res.Entities++
			if err := p.handler.OnEntity(e); err != nil {
				return res, err
			}
		}
	}
}

func (p *Parser) readHeader() (int, error) {
	var header [9]byte
	if err := p.cur.ReadInto(header[:]); err != nil {
		return 0, p.fail(0, "header", err)
	}
	if string(header[:5]) != magic {
		return 0, p.fail(0, "header", errors.Wrapf(ErrInvalidHeader, "magic %q", header[:5]))
	}
	version, err := strconv.Atoi(string(header[5:]))
	if err != nil || version < 0 {
		return 0, p.fail(5, "header", errors.Wrapf(ErrInvalidHeader, "version %q", header[5:]))
	}
	if version < MinSupportedVersion {
		return 0, p.fail(5, "header", errors.Wrapf(ErrUnsupportedVersion, "version %d", version))
	}
	if version > MaxSupportedVersion {
		if !p.allowNewer {
			return 0, p.fail(5, "header", errors.Wrapf(ErrUnsupportedVersion,
				"version %d (max supported: %d)", version, MaxSupportedVersion))
		}
		p.logInfo("Decoding newer RDB version with latest known encodings", "version", version)
	}
	return version, nil
}

// readEntity decodes the key and value following a type tag and attaches
// the pending metadata, which is then reset
func (p *Parser) readEntity(t TypeTag) (*Entity, error) {
	if t == TypeZSet2 && p.version < versionBinaryDouble {
		p.logDebug("Binary double zset in old RDB version", "version", p.version)
	}
	key, err := p.readString()
	if err != nil {
		return nil, err
	}
	value, err := p.readValue(t)
	if err != nil {
		return nil, err
	}

	e := &Entity{
		DB:      p.db,
		Key:     key,
		Type:    t,
		Value:   value,
		Expiry:  p.expiry,
		LRUIdle: p.idle,
		LFUFreq: p.freq,
	}
	p.expiry = nil
	p.idle = -1
	p.freq = -1
	return e, nil
}

// readFooter reads the trailing checksum and applies the checksum policy
func (p *Parser) readFooter(res Result) (Result, error) {
	res.Computed = p.cur.Checksum()
	p.cur.SetChecksumming(false)

	if res.Version >= versionChecksum {
		start := p.cur.Offset()
		stored, err := p.readUint64(binary.LittleEndian)
		if err != nil {
			return res, p.fail(start, "checksum", err)
		}
		res.Checksum = stored

		if res.HasChecksum() && p.policy != ChecksumIgnore && stored != res.Computed {
			res.Mismatch = true
			if p.policy == ChecksumStrict {
				return res, p.fail(start, "checksum", errors.Wrapf(ErrChecksumMismatch,
					"stored %016x, computed %016x", stored, res.Computed))
			}
			p.logInfo("RDB checksum mismatch",
				"stored", fmt.Sprintf("%016x", stored),
				"computed", fmt.Sprintf("%016x", res.Computed))
		}
	}

	p.logDebug("RDB parsing complete", "entities", res.Entities, "checksum", fmt.Sprintf("%016x", res.Computed))
	if err := p.handler.OnEnd(res); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Parser) fail(offset int64, context string, err error) error {
	return &DecodeError{Offset: offset, Context: context, Err: err}
}

// Parse decodes a complete snapshot from r with default settings
func Parse(r io.Reader, handler Handler) (Result, error) {
	return NewParser(NewCursor(r, 0), handler).Parse()
}

package rdb

import (
	"strconv"
	"time"
)

// RDB format versions
const (
	MinSupportedVersion = 1
	MaxSupportedVersion = 12 // Redis 7.4 and 8.x

	// versionChecksum is the first version with a trailing CRC-64
	versionChecksum = 5
	// versionBinaryDouble is the first version that may use ZSET_2
	versionBinaryDouble = 8
)

// Opcodes found in the snapshot body
const (
	OpcodeSlotInfo      = 0xF4
	OpcodeFunction2     = 0xF5
	OpcodeFunctionPreGA = 0xF6
	OpcodeModuleAux     = 0xF7
	OpcodeIdle          = 0xF8
	OpcodeFreq          = 0xF9
	OpcodeAux           = 0xFA
	OpcodeResizeDB      = 0xFB
	OpcodeExpireTimeMs  = 0xFC
	OpcodeExpireTime    = 0xFD
	OpcodeSelectDB      = 0xFE
	OpcodeEOF           = 0xFF
)

// TypeTag is the on-disk type byte preceding a key
type TypeTag byte

// Type tags, as defined by the Redis encoding table
const (
	TypeString           TypeTag = 0
	TypeList             TypeTag = 1
	TypeSet              TypeTag = 2
	TypeZSet             TypeTag = 3
	TypeHash             TypeTag = 4
	TypeZSet2            TypeTag = 5
	TypeModulePreGA      TypeTag = 6
	TypeModule2          TypeTag = 7
	TypeHashZipmap       TypeTag = 9
	TypeListZiplist      TypeTag = 10
	TypeSetIntset        TypeTag = 11
	TypeZSetZiplist      TypeTag = 12
	TypeHashZiplist      TypeTag = 13
	TypeListQuicklist    TypeTag = 14
	TypeStreamListpacks  TypeTag = 15
	TypeHashListpack     TypeTag = 16
	TypeZSetListpack     TypeTag = 17
	TypeListQuicklist2   TypeTag = 18
	TypeStreamListpacks2 TypeTag = 19
	TypeSetListpack      TypeTag = 20
	TypeStreamListpacks3 TypeTag = 21
)

// Hashes with field expiration. The pre-GA variants were only written by
// Redis 7.4 release candidates.
const (
	TypeHashMetadataPreGA   TypeTag = 22
	TypeHashListpackExPreGA TypeTag = 23
	TypeHashMetadata        TypeTag = 24
	TypeHashListpackEx      TypeTag = 25
)

// Kind returns the logical value kind a type tag decodes to.
// The second return value is false for unknown tags.
func (t TypeTag) Kind() (Kind, bool) {
	switch t {
	case TypeString:
		return KindString, true
	case TypeList, TypeListZiplist, TypeListQuicklist, TypeListQuicklist2:
		return KindList, true
	case TypeSet, TypeSetIntset, TypeSetListpack:
		return KindSet, true
	case TypeZSet, TypeZSet2, TypeZSetZiplist, TypeZSetListpack:
		return KindSortedSet, true
	case TypeHash, TypeHashZipmap, TypeHashZiplist, TypeHashListpack,
		TypeHashMetadataPreGA, TypeHashListpackExPreGA, TypeHashMetadata, TypeHashListpackEx:
		return KindHash, true
	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		return KindStream, true
	case TypeModulePreGA, TypeModule2:
		return KindModule, true
	}
	return 0, false
}

// String returns the encoding name used by OBJECT ENCODING where one exists
func (t TypeTag) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "linkedlist"
	case TypeSet:
		return "hashtable-set"
	case TypeZSet, TypeZSet2:
		return "skiplist"
	case TypeHash, TypeHashMetadataPreGA, TypeHashMetadata:
		return "hashtable"
	case TypeHashListpackExPreGA, TypeHashListpackEx:
		return "listpackex"
	case TypeModulePreGA, TypeModule2:
		return "module"
	case TypeHashZipmap:
		return "zipmap"
	case TypeListZiplist, TypeZSetZiplist, TypeHashZiplist:
		return "ziplist"
	case TypeSetIntset:
		return "intset"
	case TypeListQuicklist, TypeListQuicklist2:
		return "quicklist"
	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		return "stream"
	case TypeHashListpack, TypeZSetListpack, TypeSetListpack:
		return "listpack"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Kind is the logical Redis data type of a value
type Kind int

const (
	KindString Kind = iota
	KindList
	KindSet
	KindSortedSet
	KindHash
	KindStream
	KindModule
)

// String returns the Redis-compatible type name
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "zset"
	case KindHash:
		return "hash"
	case KindStream:
		return "stream"
	case KindModule:
		return "module"
	default:
		return "none"
	}
}

// ParseKind parses a Redis type name as returned by Kind.String
func ParseKind(s string) (Kind, bool) {
	for k := KindString; k <= KindModule; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Value is the decoded value of a key. It is one of StringValue, ListValue,
// SetValue, SortedSetValue, HashValue, StreamValue or ModuleValue.
type Value interface {
	Kind() Kind
	isValue()
}

// StringValue is a string value
type StringValue struct {
	Data []byte
}

// ListValue is a list value, in list order
type ListValue struct {
	Elements [][]byte
}

// SetValue is a set value, in snapshot order
type SetValue struct {
	Members [][]byte
}

// SortedSetValue is a sorted set value, in snapshot order
type SortedSetValue struct {
	Members []ZSetMember
}

// ZSetMember is a sorted set member with score
type ZSetMember struct {
	Member []byte
	Score  float64
}

// HashValue is a hash value, in snapshot order
type HashValue struct {
	Fields []HashField
}

// HashField is a single hash field
type HashField struct {
	Field  []byte
	Value  []byte
	Expiry *time.Time // field TTL set with HEXPIRE, nil when none
}

func (StringValue) Kind() Kind    { return KindString }
func (ListValue) Kind() Kind      { return KindList }
func (SetValue) Kind() Kind       { return KindSet }
func (SortedSetValue) Kind() Kind { return KindSortedSet }
func (HashValue) Kind() Kind      { return KindHash }
func (*StreamValue) Kind() Kind   { return KindStream }
func (*ModuleValue) Kind() Kind   { return KindModule }

func (StringValue) isValue()    {}
func (ListValue) isValue()      {}
func (SetValue) isValue()       {}
func (SortedSetValue) isValue() {}
func (HashValue) isValue()      {}
func (*StreamValue) isValue()   {}
func (*ModuleValue) isValue()   {}

// Entity is one decoded key with its value and metadata
type Entity struct {
	DB      int
	Key     []byte
	Type    TypeTag
	Value   Value
	Expiry  *time.Time // nil when the key does not expire
	LRUIdle int64      // idle seconds from an IDLE opcode, -1 if absent
	LFUFreq int        // LFU counter from a FREQ opcode, -1 if absent
}

// KeyString returns the key as a string
func (e *Entity) KeyString() string {
	return string(e.Key)
}

// Kind returns the logical kind of the entity's value
func (e *Entity) Kind() Kind {
	return e.Value.Kind()
}

// ExpiredAt reports whether the entity has expired at time t
func (e *Entity) ExpiredAt(t time.Time) bool {
	return e.Expiry != nil && !t.Before(*e.Expiry)
}

// AuxKind distinguishes the metadata records found in a snapshot
type AuxKind int

const (
	// AuxField is an AUX key/value pair such as redis-ver or repl-id
	AuxField AuxKind = iota
	// AuxResizeDB is a RESIZEDB size hint for the current database
	AuxResizeDB
	// AuxFunction is a FUNCTION2 library payload
	AuxFunction
)

// Aux is a metadata record. It is informational and never produces an Entity.
type Aux struct {
	Kind  AuxKind
	Key   []byte
	Value []byte

	// Set for AuxResizeDB
	DB          int
	DBSize      uint64
	ExpiresSize uint64
}

// Result describes a completed snapshot decode
type Result struct {
	Version  int
	Checksum uint64 // trailing checksum as stored, 0 if absent or disabled
	Computed uint64 // checksum computed over the bytes read
	Entities int    // number of entities decoded
	// Mismatch is set when a stored checksum was compared and differed
	Mismatch bool
}

// HasChecksum reports whether the snapshot carried a usable checksum
func (r Result) HasChecksum() bool {
	return r.Version >= versionChecksum && r.Checksum != 0
}

// Verified reports whether the stored checksum matched the computed one
func (r Result) Verified() bool {
	return r.HasChecksum() && r.Checksum == r.Computed
}

// Package ledger implements the VM host environment and write-log execution
// context: the tx/vp host ABI, the staged write log, gas metering, and the
// native validity-predicate dispatcher (including the IBC VP in the ibc
// sub-package).
package ledger

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressKind distinguishes the three address cases the ledger recognizes.
type AddressKind uint8

const (
	// AddressEstablished is content-addressed and may only be created by
	// the host's account initializer (tx_init_account).
	AddressEstablished AddressKind = iota
	// AddressImplicit is derived from a public key hash; it needs no
	// stored validity predicate.
	AddressImplicit
	// AddressInternal names a fixed, built-in validity predicate such as
	// the IBC module.
	AddressInternal
)

func (k AddressKind) String() string {
	switch k {
	case AddressEstablished:
		return "established"
	case AddressImplicit:
		return "implicit"
	case AddressInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// InternalID enumerates the fixed identifiers usable as AddressInternal
// payloads.
type InternalID string

// IBCInternalID is the internal address of the built-in IBC validity
// predicate.
const IBCInternalID InternalID = "ibc"

// Address is a sum type over the three address kinds described by
// spec.md §3. The zero value is not a valid address.
type Address struct {
	Kind     AddressKind
	raw      [20]byte // established / implicit payload
	internal InternalID
}

// NewImplicit builds an implicit address from a 20-byte public-key hash.
func NewImplicit(pkHash [20]byte) Address {
	return Address{Kind: AddressImplicit, raw: pkHash}
}

// NewInternal builds a fixed internal address.
func NewInternal(id InternalID) Address {
	return Address{Kind: AddressInternal, internal: id}
}

// deriveEstablished content-addresses a fresh established address from the
// generator's deterministic counter and chain seed, the way
// core/virtual_machine.go's CreateContract derives contract addresses with
// crypto.Keccak256 over (caller, nonce).
func deriveEstablished(seed []byte, counter uint64) Address {
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)
	for i := 0; i < 8; i++ {
		buf[len(seed)+i] = byte(counter >> (8 * (7 - i)))
	}
	h := crypto.Keccak256(buf)
	var out [20]byte
	copy(out[:], h[len(h)-20:])
	return Address{Kind: AddressEstablished, raw: out}
}

// Bytes returns a canonical byte encoding distinguishing the three kinds.
func (a Address) Bytes() []byte {
	switch a.Kind {
	case AddressInternal:
		return append([]byte{byte(AddressInternal)}, []byte(a.internal)...)
	default:
		out := make([]byte, 21)
		out[0] = byte(a.Kind)
		copy(out[1:], a.raw[:])
		return out
	}
}

// ParseAddress decodes the canonical encoding produced by Bytes, the
// inverse used at the host/guest boundary (e.g. update_validity_predicate's
// target address argument).
func ParseAddress(b []byte) (Address, error) {
	if len(b) < 1 {
		return Address{}, fmt.Errorf("%w: empty address encoding", ErrEncoding)
	}
	kind := AddressKind(b[0])
	switch kind {
	case AddressInternal:
		return Address{Kind: AddressInternal, internal: InternalID(b[1:])}, nil
	case AddressEstablished, AddressImplicit:
		if len(b) != 21 {
			return Address{}, fmt.Errorf("%w: want 21 bytes for address kind %s, got %d", ErrEncoding, kind, len(b))
		}
		var raw [20]byte
		copy(raw[:], b[1:])
		return Address{Kind: kind, raw: raw}, nil
	default:
		return Address{}, fmt.Errorf("%w: unknown address kind %d", ErrEncoding, b[0])
	}
}

// Hex renders the address the way core/common_structs.go's Address.Hex does,
// prefixed by kind so established/implicit addresses never collide.
func (a Address) Hex() string {
	switch a.Kind {
	case AddressInternal:
		return "#" + string(a.internal)
	default:
		return a.Kind.String()[:1] + hex.EncodeToString(a.raw[:])
	}
}

func (a Address) String() string { return a.Hex() }

// Equal reports whether two addresses denote the same account.
func (a Address) Equal(b Address) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == AddressInternal {
		return a.internal == b.internal
	}
	return a.raw == b.raw
}

// IsEstablishedOrInternal reports whether the address may own stored code
// (a validity predicate), per spec.md §3.
func (a Address) IsEstablishedOrInternal() bool {
	return a.Kind == AddressEstablished || a.Kind == AddressInternal
}

// AddressGenerator produces deterministic established addresses, one per
// call, backed by a persistent counter (normally read from / written to
// chain metadata by the Storage implementation).
type AddressGenerator struct {
	seed    []byte
	counter uint64
}

// NewAddressGenerator builds a generator seeded by chain id and starting
// counter (e.g. restored from Storage at block start).
func NewAddressGenerator(chainSeed []byte, startCounter uint64) *AddressGenerator {
	return &AddressGenerator{seed: chainSeed, counter: startCounter}
}

// Next returns the next established address and advances the counter.
func (g *AddressGenerator) Next() Address {
	addr := deriveEstablished(g.seed, g.counter)
	g.counter++
	return addr
}

// Counter returns the generator's current (next-to-use) counter value.
func (g *AddressGenerator) Counter() uint64 { return g.counter }

// --------------------------------------------------------------------
// Key: a structured path of ordered segments.
// --------------------------------------------------------------------

// KeySeg is one segment of a Key: an address, a plain string, or an
// unsigned integer index.
type KeySeg struct {
	addr   *Address
	str    string
	isAddr bool
	isInt  bool
	intVal uint64
}

// AddrSeg builds an address-valued key segment.
func AddrSeg(a Address) KeySeg { return KeySeg{addr: &a, isAddr: true} }

// StrSeg builds a plain string key segment.
func StrSeg(s string) KeySeg { return KeySeg{str: s} }

// IntSeg builds an integer-index key segment (e.g. a block height or
// consensus-state height component).
func IntSeg(n uint64) KeySeg { return KeySeg{str: strconv.FormatUint(n, 10), isInt: true, intVal: n} }

// Raw renders the segment's canonical string form, mirroring
// original_source's `key.segments.get(n).raw()` accessor.
func (s KeySeg) Raw() string {
	if s.isAddr {
		return s.addr.Hex()
	}
	return s.str
}

// Addr returns the segment's address payload, if any.
func (s KeySeg) Addr() (Address, bool) {
	if s.isAddr {
		return *s.addr, true
	}
	return Address{}, false
}

// Int returns the segment's integer payload, if any.
func (s KeySeg) Int() (uint64, bool) { return s.intVal, s.isInt }

// Key is an ordered path of segments, e.g. #IBC/clients/07-tendermint-0/clientState.
type Key struct {
	Segments []KeySeg
}

// NewKey builds a key from segments.
func NewKey(segs ...KeySeg) Key { return Key{Segments: segs} }

// ParseKey splits a '/'-joined string into a Key, recovering address
// segments from their Hex() discriminator (a leading "e"/"i" plus 40 hex
// digits for established/implicit, or a leading "#" for internal) so that a
// key built from AddrSeg on one side of the host/guest boundary and
// serialized to a plain string for the wasm call still yields a segment
// Key.FindAddresses can see on the other side (spec.md §4.1/§4.5). Segments
// matching neither shape, including the well-known reserved prefixes
// (#validity_predicate, #IBC), parse as plain strings.
func ParseKey(s string) Key {
	parts := strings.Split(s, "/")
	segs := make([]KeySeg, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, parseKeySeg(p))
	}
	return Key{Segments: segs}
}

// parseKeySeg recovers a single segment's typed form from its string
// rendering, the inverse of KeySeg.Raw/Address.Hex.
func parseKeySeg(s string) KeySeg {
	if len(s) == 41 && (s[0] == 'e' || s[0] == 'i') {
		if raw, err := hex.DecodeString(s[1:]); err == nil && len(raw) == 20 {
			kind := AddressEstablished
			if s[0] == 'i' {
				kind = AddressImplicit
			}
			var arr [20]byte
			copy(arr[:], raw)
			return AddrSeg(Address{Kind: kind, raw: arr})
		}
	}
	if strings.HasPrefix(s, "#") && s != PrefixValidityPredicate && s != PrefixIBC {
		return AddrSeg(NewInternal(InternalID(s[1:])))
	}
	return StrSeg(s)
}

// String renders the key as a '/'-joined path.
func (k Key) String() string {
	parts := make([]string, len(k.Segments))
	for i, s := range k.Segments {
		parts[i] = s.Raw()
	}
	return strings.Join(parts, "/")
}

// Push returns a new Key with an additional trailing segment.
func (k Key) Push(s KeySeg) Key {
	out := make([]KeySeg, len(k.Segments)+1)
	copy(out, k.Segments)
	out[len(k.Segments)] = s
	return Key{Segments: out}
}

// Get returns the segment at index i, or false if out of range.
func (k Key) Get(i int) (KeySeg, bool) {
	if i < 0 || i >= len(k.Segments) {
		return KeySeg{}, false
	}
	return k.Segments[i], true
}

// Well-known reserved first segments (spec.md §3).
const (
	PrefixValidityPredicate = "#validity_predicate"
	PrefixIBC               = "#IBC"
)

// VPKey returns the key under which addr's validity predicate code is
// stored: #validity_predicate/<addr>.
func VPKey(addr Address) Key {
	return NewKey(StrSeg(PrefixValidityPredicate), AddrSeg(addr))
}

// IsVPKey reports whether k names a validity-predicate storage slot and, if
// so, which address it belongs to.
func IsVPKey(k Key) (Address, bool) {
	if len(k.Segments) < 2 {
		return Address{}, false
	}
	if k.Segments[0].Raw() != PrefixValidityPredicate {
		return Address{}, false
	}
	return k.Segments[1].Addr()
}

// IsIBCKey reports whether k's first segment is the reserved #IBC prefix,
// per spec.md §3's invariant that IBC keys always have at least two
// segments.
func IsIBCKey(k Key) bool {
	return len(k.Segments) >= 2 && k.Segments[0].Raw() == PrefixIBC
}

// FindAddresses returns every address embedded in k's segments, used by the
// tx host ABI to compute the implicit verifier set (spec.md §4.1, §4.5).
func (k Key) FindAddresses() []Address {
	var out []Address
	for _, s := range k.Segments {
		if a, ok := s.Addr(); ok {
			out = append(out, a)
		}
	}
	return out
}


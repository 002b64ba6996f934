// Memory is the linear byte array the guest and host share across the wasm
// boundary, and LinearMemory a host-only stand-in used by native-VP and
// test paths that never instantiate a real wasmer.Memory.
//
// Grounded on core/virtual_machine.go's Memory interface and LinearMemory
// type (kept verbatim in shape) plus its registerHost read/write closures,
// generalized to the fuller tx/vp host ABI.
package ledger

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// Memory is the linear byte array guest code's pointers address.
type Memory interface {
	// Read returns exactly size bytes starting at offset, or an error if
	// that range falls outside the memory (ErrMemory).
	Read(offset, size uint32) ([]byte, error)
	// Write copies data into memory starting at offset. If that range falls
	// outside the memory, LinearMemory grows to fit, while the wasm-backed
	// implementation returns ErrMemory.
	Write(offset uint32, data []byte) error
	// Len returns the current memory size in bytes.
	Len() uint32
}

// LinearMemory is a host-only byte slice implementing Memory, used by
// native VPs and tests that have no real wasm instance backing them.
type LinearMemory struct {
	data []byte
}

// NewLinearMemory builds an empty LinearMemory.
func NewLinearMemory() *LinearMemory {
	return &LinearMemory{data: make([]byte, 0, 1024)}
}

func (m *LinearMemory) Read(offset, size uint32) ([]byte, error) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(m.data)) {
		return nil, fmt.Errorf("%w: read [%d:%d] exceeds memory length %d", ErrMemory, offset, end, len(m.data))
	}
	out := make([]byte, size)
	copy(out, m.data[offset:end])
	return out, nil
}

func (m *LinearMemory) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *LinearMemory) Len() uint32 { return uint32(len(m.data)) }

// wasmMemory adapts a real *wasmer.Memory, obtained from an instantiated
// guest module's "memory" export, to the Memory interface. Unlike
// LinearMemory it never grows implicitly: the guest module owns growth via
// its own memory.grow instruction, and a host read/write past the current
// bound is an error.
type wasmMemory struct {
	mem *wasmer.Memory
}

func newWasmMemory(mem *wasmer.Memory) Memory {
	return &wasmMemory{mem: mem}
}

func (m *wasmMemory) Read(offset, size uint32) ([]byte, error) {
	data := m.mem.Data()
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: read [%d:%d] exceeds memory length %d", ErrMemory, offset, end, len(data))
	}
	out := make([]byte, size)
	copy(out, data[offset:end])
	return out, nil
}

func (m *wasmMemory) Write(offset uint32, data []byte) error {
	mem := m.mem.Data()
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(mem)) {
		return fmt.Errorf("%w: write [%d:%d] exceeds memory length %d", ErrMemory, offset, end, len(mem))
	}
	copy(mem[offset:], data)
	return nil
}

func (m *wasmMemory) Len() uint32 { return uint32(len(m.mem.Data())) }

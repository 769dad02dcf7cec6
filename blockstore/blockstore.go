// Package blockstore stores opaque blocks behind logical addresses.
// Every block is framed with its compression type and a CRC32-C
// checksum, so a corrupted or missing block is detected on read.
package blockstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/INLOpen/nexuscolumn/compressors"
	"github.com/INLOpen/nexuscolumn/core"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// frame layout: type (1) | checksum (4) | payload length (4) | payload.
const frameHeaderSize = 9

// Store is the block store contract the tree layer depends on.
type Store interface {
	// Append stores a block and returns its address.
	Append(data []byte) (core.LogicAddr, error)
	// Read returns the block at addr. A missing or evicted block
	// yields core.ErrUnavailable; a corrupted frame yields an error
	// wrapping core.ErrBadArg.
	Read(addr core.LogicAddr) ([]byte, error)
}

// MemStore is an in-memory Store. Addresses are assigned sequentially
// starting from 1; address 0 is never valid.
type MemStore struct {
	mu         sync.RWMutex
	compressor core.Compressor
	blocks     map[core.LogicAddr][]byte
	next       core.LogicAddr
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a store that frames blocks with the given
// compressor.
func NewMemStore(compressor core.Compressor) *MemStore {
	return &MemStore{
		compressor: compressor,
		blocks:     make(map[core.LogicAddr][]byte),
		next:       1,
	}
}

func (s *MemStore) Append(data []byte) (core.LogicAddr, error) {
	compressed, err := s.compressor.Compress(data)
	if err != nil {
		return 0, fmt.Errorf("block compression failed: %w", err)
	}
	frame := make([]byte, frameHeaderSize+len(compressed))
	frame[0] = byte(s.compressor.Type())
	binary.BigEndian.PutUint32(frame[1:5], crc32.Checksum(compressed, castagnoli))
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(compressed)))
	copy(frame[frameHeaderSize:], compressed)

	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.next
	s.next++
	s.blocks[addr] = frame
	return addr, nil
}

func (s *MemStore) Read(addr core.LogicAddr) ([]byte, error) {
	s.mu.RLock()
	frame, ok := s.blocks[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("block %d: %w", addr, core.ErrUnavailable)
	}
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("block %d: truncated frame: %w", addr, core.ErrBadArg)
	}
	payloadLen := int(binary.BigEndian.Uint32(frame[5:9]))
	if len(frame) != frameHeaderSize+payloadLen {
		return nil, fmt.Errorf("block %d: frame length mismatch: %w", addr, core.ErrBadArg)
	}
	payload := frame[frameHeaderSize:]
	if crc32.Checksum(payload, castagnoli) != binary.BigEndian.Uint32(frame[1:5]) {
		return nil, fmt.Errorf("block %d: checksum mismatch: %w", addr, core.ErrBadArg)
	}
	decompressor := s.compressor
	if ct := core.CompressionType(frame[0]); ct != s.compressor.Type() {
		// The store may be reopened with a different default
		// compressor; frames are self-describing.
		var err error
		decompressor, err = compressors.Get(ct)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", addr, err)
		}
	}
	rc, err := decompressor.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", addr, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", addr, err)
	}
	return data, nil
}

// Evict removes a block from the store. Subsequent reads return
// core.ErrUnavailable. Used to simulate cold or dropped blocks.
func (s *MemStore) Evict(addr core.LogicAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, addr)
}

// Corrupt flips a byte inside the stored payload of addr. Test hook for
// the checksum path.
func (s *MemStore) Corrupt(addr core.LogicAddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, ok := s.blocks[addr]
	if !ok || len(frame) <= frameHeaderSize {
		return false
	}
	frame[frameHeaderSize] ^= 0xFF
	return true
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

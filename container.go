/*
   Copyright 2022 The Erigon contributors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package pef

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/edsrzf/mmap-go"
	log "github.com/erigontech/erigon-lib/log/v3"
	"github.com/gofrs/flock"

	"github.com/gopef/pef/pefwire"
)

// AppendBytes appends this sequence's on-disk container encoding (header,
// skip index, then payload) to buf and returns the extended slice.
func (s *Sequence) AppendBytes(buf []byte) []byte {
	h := pefwire.Header{
		Version:       pefwire.Version,
		NElem:         s.nElem,
		BlockSize:     s.blockSize,
		NBlocks:       uint64(len(s.blockLast)),
		PayloadOffset: pefwire.SkipPayloadOffset(uint64(len(s.blockLast))),
	}
	buf = h.AppendBytes(buf, s.blockLast, s.blockOffset)
	buf = append(buf, s.payload...)
	return buf
}

// ByteSize returns the total on-disk size, in bytes, of this sequence's
// container encoding.
func (s *Sequence) ByteSize() int {
	return pefwire.HeaderSize + 16*len(s.blockLast) + len(s.payload)
}

// LoadBytes parses a Sequence from an in-memory container. The returned
// Sequence borrows data for its payload; data must outlive it.
func LoadBytes(data []byte) (*Sequence, error) {
	h, blockLast, blockOffset, err := pefwire.Read(data)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		nElem:       h.NElem,
		blockSize:   h.BlockSize,
		blockLast:   blockLast,
		blockOffset: blockOffset,
		payload:     data[h.PayloadOffset:],
	}, nil
}

// LoadFile memory-maps path and parses a Sequence directly over the
// mapping, avoiding a full read into a heap buffer. Call Close when
// done to unmap.
func LoadFile(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pef: open %s: %w", path, err)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pef: mmap %s: %w", path, err)
	}
	seq, err := LoadBytes(m)
	if err != nil {
		_ = m.Unmap()
		return nil, err
	}
	seq.mapped = m
	log.Debug("pef: loaded sequence", "path", path, "n_elem", seq.nElem, "n_blocks", len(seq.blockLast))
	return seq, nil
}

// Save writes this sequence's container encoding to path, holding an
// advisory lock on path+".lock" for the duration of the write so two
// writers targeting the same path don't interleave partial headers.
func (s *Sequence) Save(path string) error {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("pef: lock %s: %w", path, err)
	}
	defer fl.Unlock()

	buf := s.AppendBytes(make([]byte, 0, s.ByteSize()))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("pef: write %s: %w", path, err)
	}
	log.Debug("pef: saved sequence", "path", path, "bytes", len(buf))
	return nil
}

// Meta is a snapshot of a sequence's shape, returned by GetMeta.
type Meta struct {
	NElem     uint64
	BlockSize uint32
	NBlocks   uint64
	ByteSize  int
}

// GetMeta returns this sequence's shape without decoding anything.
func (s *Sequence) GetMeta() Meta {
	return Meta{
		NElem:     s.nElem,
		BlockSize: s.blockSize,
		NBlocks:   uint64(len(s.blockLast)),
		ByteSize:  s.ByteSize(),
	}
}

// ShowMeta renders GetMeta as an operator-facing summary line, with the
// byte size formatted as a human-readable quantity rather than a raw
// integer.
func (s *Sequence) ShowMeta() string {
	m := s.GetMeta()
	return fmt.Sprintf("n_elem=%d block_size=%d n_blocks=%d size=%s",
		m.NElem, m.BlockSize, m.NBlocks, datasize.ByteSize(m.ByteSize).HumanReadable())
}

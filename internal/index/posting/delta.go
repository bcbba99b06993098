package posting

import (
	"encoding/binary"
	"sort"
)

// deltaBlockSize is the number of doc ids packed into each delta-varint
// block, per the "fixed-size blocks with per-block skip pointers".
const deltaBlockSize = 128

// deltaBlock holds one fixed-size run: an absolute base (the block's first,
// and therefore minimum, doc id), the block's maximum (the skip pointer
// used to decide whether a target doc id can possibly live in this block),
// and the remaining elements delta-encoded as varints.
type deltaBlock struct {
	base    uint32
	max     uint32
	count   int
	encoded []byte
}

func encodeBlock(docs []uint32) *deltaBlock {
	b := &deltaBlock{base: docs[0], max: docs[len(docs)-1], count: len(docs)}
	buf := make([]byte, 0, len(docs)*2)
	var scratch [binary.MaxVarintLen64]byte
	prev := docs[0]
	for _, d := range docs[1:] {
		n := binary.PutUvarint(scratch[:], uint64(d-prev))
		buf = append(buf, scratch[:n]...)
		prev = d
	}
	b.encoded = buf
	return b
}

func (b *deltaBlock) decode() []uint32 {
	out := make([]uint32, 0, b.count)
	out = append(out, b.base)
	prev := b.base
	rest := b.encoded
	for len(out) < b.count {
		delta, n := binary.Uvarint(rest)
		rest = rest[n:]
		prev += uint32(delta)
		out = append(out, prev)
	}
	return out
}

// deltaBlocks is the medium-cardinality, low-density posting representation.
type deltaBlocks struct {
	blocks []*deltaBlock
}

func newDeltaBlocksFrom(docs []uint32) *deltaBlocks {
	d := &deltaBlocks{}
	d.rebuild(docs)
	return d
}

func (d *deltaBlocks) rebuild(docs []uint32) {
	sorted := append([]uint32(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = dedupeSorted(sorted)

	var blocks []*deltaBlock
	for i := 0; i < len(sorted); i += deltaBlockSize {
		end := i + deltaBlockSize
		if end > len(sorted) {
			end = len(sorted)
		}
		blocks = append(blocks, encodeBlock(sorted[i:end]))
	}
	d.blocks = blocks
}

func (d *deltaBlocks) flatten() []uint32 {
	var out []uint32
	for _, b := range d.blocks {
		out = append(out, b.decode()...)
	}
	return out
}

func (d *deltaBlocks) add(doc uint32) {
	if d.contains(doc) {
		return
	}
	flat := d.flatten()
	flat = append(flat, doc)
	d.rebuild(flat)
}

func (d *deltaBlocks) remove(doc uint32) {
	if !d.contains(doc) {
		return
	}
	flat := d.flatten()
	out := flat[:0]
	for _, v := range flat {
		if v != doc {
			out = append(out, v)
		}
	}
	d.rebuild(out)
}

// blockFor returns the index of the block whose [base,max] skip pointer
// range could contain doc, or -1.
func (d *deltaBlocks) blockFor(doc uint32) int {
	i := sort.Search(len(d.blocks), func(i int) bool { return d.blocks[i].max >= doc })
	if i < len(d.blocks) && d.blocks[i].base <= doc {
		return i
	}
	return -1
}

func (d *deltaBlocks) contains(doc uint32) bool {
	idx := d.blockFor(doc)
	if idx < 0 {
		return false
	}
	for _, v := range d.blocks[idx].decode() {
		if v == doc {
			return true
		}
		if v > doc {
			break
		}
	}
	return false
}

func (d *deltaBlocks) len() int {
	n := 0
	for _, b := range d.blocks {
		n += b.count
	}
	return n
}

func (d *deltaBlocks) min() (uint32, bool) {
	if len(d.blocks) == 0 {
		return 0, false
	}
	return d.blocks[0].base, true
}

func (d *deltaBlocks) max() (uint32, bool) {
	if len(d.blocks) == 0 {
		return 0, false
	}
	return d.blocks[len(d.blocks)-1].max, true
}

func (d *deltaBlocks) materialize() []uint32 { return d.flatten() }

func (d *deltaBlocks) memoryUsage() uint64 {
	var n uint64
	for _, b := range d.blocks {
		n += uint64(len(b.encoded)) + 16
	}
	return n
}

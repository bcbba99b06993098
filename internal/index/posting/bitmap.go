package posting

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// bitmapRep is the high-cardinality/high-density representation, backed by
// a Roaring bitmap (grounded on AKJUS-bsc-erigon's use of
// github.com/RoaringBitmap/roaring/v2 for compressed doc-id sets).
type bitmapRep struct {
	bm *roaring.Bitmap
}

func newBitmapRepFrom(docs []uint32) *bitmapRep {
	bm := roaring.New()
	bm.AddMany(docs)
	return &bitmapRep{bm: bm}
}

func (b *bitmapRep) add(d uint32)    { b.bm.Add(d) }
func (b *bitmapRep) remove(d uint32) { b.bm.Remove(d) }
func (b *bitmapRep) contains(d uint32) bool {
	return b.bm.Contains(d)
}
func (b *bitmapRep) len() int { return int(b.bm.GetCardinality()) }

func (b *bitmapRep) min() (uint32, bool) {
	if b.bm.IsEmpty() {
		return 0, false
	}
	return b.bm.Minimum(), true
}

func (b *bitmapRep) max() (uint32, bool) {
	if b.bm.IsEmpty() {
		return 0, false
	}
	return b.bm.Maximum(), true
}

func (b *bitmapRep) materialize() []uint32 { return b.bm.ToArray() }

func (b *bitmapRep) memoryUsage() uint64 { return b.bm.GetSizeInBytes() }

package freelist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/heap/blocks"
	"github.com/outofforest/heap/freelist"
)

func TestBucketFor(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(0, freelist.BucketFor(16))
	requireT.Equal(0, freelist.BucketFor(24))
	requireT.Equal(1, freelist.BucketFor(32))
	requireT.Equal(1, freelist.BucketFor(48))
	requireT.Equal(2, freelist.BucketFor(64))
	requireT.Equal(2, freelist.BucketFor(72))
	requireT.Equal(3, freelist.BucketFor(128))
	requireT.Equal(3, freelist.BucketFor(136))
	requireT.Equal(8, freelist.BucketFor(4104))
	requireT.Equal(26, freelist.BucketFor(1<<30))
}

func TestInsertKeepsAscendingOrder(t *testing.T) {
	requireT := require.New(t)

	data, dir := newArena()
	insertFree(data, dir, 256, 48)
	insertFree(data, dir, 320, 32)
	insertFree(data, dir, 368, 40)

	requireT.Equal([]int32{32, 40, 48}, bucketSizes(data, dir, 1))
}

func TestRemove(t *testing.T) {
	requireT := require.New(t)

	data, dir := newArena()
	insertFree(data, dir, 256, 48)
	insertFree(data, dir, 320, 32)
	insertFree(data, dir, 368, 40)

	dir.Remove(data, 368)
	requireT.Equal([]int32{32, 48}, bucketSizes(data, dir, 1))

	dir.Remove(data, 256)
	requireT.Equal([]int32{32}, bucketSizes(data, dir, 1))

	dir.Remove(data, 320)
	requireT.Empty(bucketSizes(data, dir, 1))
	requireT.True(blocks.IsListEnd(data, dir.Sentinel(1)))
}

func TestFindFit(t *testing.T) {
	requireT := require.New(t)

	data, dir := newArena()
	insertFree(data, dir, 256, 48)
	insertFree(data, dir, 320, 32)
	insertFree(data, dir, 368, 40)
	insertFree(data, dir, 512, 136)

	// Best fit within a bucket is the first sufficient entry of the ascending list.
	blk, ok := dir.FindFit(data, 36)
	requireT.True(ok)
	requireT.EqualValues(368, blk)

	blk, ok = dir.FindFit(data, 32)
	requireT.True(ok)
	requireT.EqualValues(320, blk)

	// The search starts at the requested size class. The 48-byte block lives in an
	// earlier bucket and is never considered for a 64-byte request.
	blk, ok = dir.FindFit(data, 64)
	requireT.True(ok)
	requireT.EqualValues(512, blk)

	_, ok = dir.FindFit(data, 200)
	requireT.False(ok)
}

func TestContains(t *testing.T) {
	requireT := require.New(t)

	data, dir := newArena()
	insertFree(data, dir, 256, 48)
	insertFree(data, dir, 320, 32)

	// Free-shaped but never filed.
	blocks.WriteFree(data, 368, 40)

	requireT.True(dir.Contains(data, 256))
	requireT.True(dir.Contains(data, 320))
	requireT.False(dir.Contains(data, 368))
}

func newArena() ([]byte, freelist.Directory) {
	return make([]byte, 1024), freelist.New(0)
}

func insertFree(data []byte, dir freelist.Directory, addr blocks.Address, size int32) {
	blocks.WriteFree(data, addr, size)
	dir.Insert(data, addr)
}

func bucketSizes(data []byte, dir freelist.Directory, bucket int) []int32 {
	var sizes []int32
	_ = dir.Walk(data, bucket, func(blk blocks.Address) error {
		sizes = append(sizes, blocks.Size(data, blk))
		return nil
	})
	return sizes
}

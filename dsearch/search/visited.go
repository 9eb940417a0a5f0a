package search

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// containerID is a small contiguous index assigned to a container id within
// one traversal generation, sized for roaring bitmap membership
type containerID = uint32

// containerArena interns container refs into contiguous ids.
// It is not safe for concurrent use; the work queue serializes access.
type containerArena struct {
	refToID map[ContainerRef]containerID
}

func newContainerArena() *containerArena {
	return &containerArena{refToID: make(map[ContainerRef]containerID)}
}

func (a *containerArena) intern(ref ContainerRef) containerID {
	if id, ok := a.refToID[ref]; ok {
		return id
	}
	id := containerID(len(a.refToID))
	a.refToID[ref] = id
	return id
}

// visitedSet remembers which containers were already enqueued in the current
// traversal generation. The arena only hands out ids; the bitmap alone
// decides membership.
type visitedSet struct {
	arena *containerArena
	bm    *roaring.Bitmap
}

func newVisitedSet() *visitedSet {
	return &visitedSet{arena: newContainerArena(), bm: roaring.New()}
}

// markNew records ref and reports whether it was unseen
func (v *visitedSet) markNew(ref ContainerRef) bool {
	return v.bm.CheckedAdd(v.arena.intern(ref))
}

func (v *visitedSet) len() int {
	return int(v.bm.GetCardinality())
}

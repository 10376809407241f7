package interactor

import "strings"

// Status is the set of interactions that completed during one Step.
type Status uint16

const NoEvent Status = 0

const (
	TaskAbort Status = 1 << iota
	FreeBlockPickup
	NestBlockDrop
	CachePickup
	CacheDrop
	NewCacheBlockDrop
	CacheSiteBlockDrop
)

var statusNames = []struct {
	s    Status
	name string
}{
	{TaskAbort, "task_abort"},
	{FreeBlockPickup, "free_block_pickup"},
	{NestBlockDrop, "nest_block_drop"},
	{CachePickup, "cache_pickup"},
	{CacheDrop, "cache_drop"},
	{NewCacheBlockDrop, "new_cache_block_drop"},
	{CacheSiteBlockDrop, "cache_site_block_drop"},
}

func (s Status) Has(f Status) bool { return f != NoEvent && s&f == f }

func (s Status) String() string {
	if s == NoEvent {
		return "no_event"
	}
	var parts []string
	for _, n := range statusNames {
		if s.Has(n.s) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

package flowtable

import (
	"hash/fnv"
	"sync"
	"time"

	"netids/internal/core/model"
)

const defaultShardCount = 256

type shard struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// Table is the concurrent flow map: NumShards independently-locked shards,
// selected by an fnv32a hash of the flow key.
type Table struct {
	shards     []*shard
	shardCount uint32
}

// New builds a Table with the given shard count, falling back to the
// default (256) for an out-of-range value.
func New(numShards int) *Table {
	if numShards <= 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	t := &Table{
		shards:     make([]*shard, numShards),
		shardCount: uint32(numShards),
	}
	for i := range t.shards {
		t.shards[i] = &shard{flows: make(map[string]*Flow)}
	}
	return t
}

func (t *Table) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%t.shardCount]
}

// Upsert inserts a new flow or folds the packet into the existing one for
// its key. No lock is held across the decision beyond the single target
// shard's.
func (t *Table) Upsert(p *model.ParsedPacket) (flow *Flow, isNew bool) {
	key := Key(p)
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.flows[key]; ok {
		existing.AddPacket(p)
		return existing, false
	}
	f := newFlow(key, p)
	s.flows[key] = f
	return f, true
}

// SnapshotAll clones every flow under its shard's read lock, for
// global-rule analysis. Each clone has its own Packets and FlagsSeen
// slices (the packets themselves are shared, being immutable), so later
// upserts do not change a snapshot already taken.
func (t *Table) SnapshotAll() map[string]*Flow {
	out := make(map[string]*Flow)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, s := range t.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			s.mu.RLock()
			local := make(map[string]*Flow, len(s.flows))
			for k, f := range s.flows {
				cp := *f
				cp.Packets = append([]*model.ParsedPacket(nil), f.Packets...)
				cp.FlagsSeen = append([]string(nil), f.FlagsSeen...)
				local[k] = &cp
			}
			s.mu.RUnlock()

			mu.Lock()
			for k, f := range local {
				out[k] = f
			}
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return out
}

// EvictExpired removes every flow whose LastSeen is older than timeout,
// relative to now. Returns the number of flows removed.
func (t *Table) EvictExpired(now time.Time, timeout time.Duration) int {
	var evicted int
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, s := range t.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			var removed int
			s.mu.Lock()
			for k, f := range s.flows {
				if now.Sub(f.LastSeen) > timeout {
					delete(s.flows, k)
					removed++
				}
			}
			s.mu.Unlock()

			mu.Lock()
			evicted += removed
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return evicted
}

// ActiveCount is the table's current size across all shards.
func (t *Table) ActiveCount() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.flows)
		s.mu.RUnlock()
	}
	return n
}

// ViewRecent returns up to n flow summaries for external inspection,
// capped at 50 by the caller.
func (t *Table) ViewRecent(n int) []Summary {
	out := make([]Summary, 0, n)
	for _, s := range t.shards {
		s.mu.RLock()
		for _, f := range s.flows {
			if len(out) >= n {
				s.mu.RUnlock()
				return out
			}
			out = append(out, f.summary())
		}
		s.mu.RUnlock()
	}
	return out
}

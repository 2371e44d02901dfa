package mirror

import "sync"

type Stats struct {
	Assets    int `json:"assets"`
	NewAssets int `json:"newAssets"`
	Releases  int `json:"releases"`
}

// Counters tracks the totals of a run. A download slot is reserved before a
// fetch starts and committed or cancelled afterwards, so concurrent workers
// never exceed the new asset quota.
type Counters struct {
	mu       sync.Mutex
	maxNew   int
	reserved int
	stats    Stats
}

// NewCounters creates counters for a run. maxNew <= 0 disables the quota.
func NewCounters(maxNew int) *Counters {
	return &Counters{maxNew: maxNew}
}

func (c *Counters) QuotaReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxNew > 0 && c.stats.NewAssets >= c.maxNew
}

func (c *Counters) Reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxNew > 0 && c.stats.NewAssets+c.reserved >= c.maxNew {
		return false
	}
	c.reserved++
	return true
}

func (c *Counters) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved--
	c.stats.NewAssets++
	c.stats.Assets++
}

func (c *Counters) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved--
}

func (c *Counters) AddExisting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Assets++
}

func (c *Counters) AddRelease() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Releases++
}

func (c *Counters) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

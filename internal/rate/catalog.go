package rate

import (
	"context"
	"sync"
)

// Catalog 可热刷新的线路价表：报价走内存快照，
// 管理端改价后调用 Reload 换入新快照。
type Catalog struct {
	repo *Repo

	mu    sync.RWMutex
	table *Table
}

func NewCatalog(repo *Repo) *Catalog {
	return &Catalog{repo: repo, table: NewTable(nil)}
}

// Reload 从数据库重建快照。
func (c *Catalog) Reload(ctx context.Context) error {
	t, err := c.repo.LoadTable(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.table = t
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Lookup(origin, destination string) (RouteRate, bool) {
	c.mu.RLock()
	t := c.table
	c.mu.RUnlock()
	return t.Lookup(origin, destination)
}

func (c *Catalog) Estimate(origin, destination string, miles float64) (amount, estMiles float64) {
	c.mu.RLock()
	t := c.table
	c.mu.RUnlock()
	return t.Estimate(origin, destination, miles)
}

// AngelaMos | 2026
// pools.go

package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// WatchPools exports connection pool statistics for the database and the
// Redis client. Either source may be nil.
func (m *Metrics) WatchPools(db *sql.DB, redisStats func() *redis.PoolStats) {
	if m == nil {
		return
	}

	if db != nil {
		m.registry.MustRegister(collectors.NewDBStatsCollector(db, namespace))
	}

	if redisStats != nil {
		m.registry.MustRegister(newRedisPoolCollector(redisStats))
	}
}

type redisPoolCollector struct {
	stats      func() *redis.PoolStats
	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
	staleConns *prometheus.Desc
}

func newRedisPoolCollector(stats func() *redis.PoolStats) *redisPoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "redis_pool", name),
			help,
			nil,
			nil,
		)
	}

	return &redisPoolCollector{
		stats:      stats,
		hits:       desc("hits_total", "Free connections found in the pool."),
		misses:     desc("misses_total", "Free connections not found in the pool."),
		timeouts:   desc("timeouts_total", "Waits for a connection that timed out."),
		totalConns: desc("conns", "Connections in the pool."),
		idleConns:  desc("idle_conns", "Idle connections in the pool."),
		staleConns: desc("stale_conns_total", "Stale connections removed from the pool."),
	}
}

func (c *redisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.staleConns
}

func (c *redisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	if s == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.staleConns, prometheus.CounterValue, float64(s.StaleConns))
}

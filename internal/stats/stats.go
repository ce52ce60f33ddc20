// Package stats reports matchmaking counters together with process metrics.
package stats

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/BioHazard786/Strangers/internal/matchmaking"
)

// Stats is the JSON body served on /stats.
type Stats struct {
	Clients       int     `json:"clients"`
	Waiting       int     `json:"waiting"`
	Sessions      int     `json:"sessions"`
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rssBytes"`
	CPUPercent    float64 `json:"cpuPercent"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Source provides engine snapshots.
type Source interface {
	Snapshot() matchmaking.Snapshot
}

// Collector gathers Stats on demand.
type Collector struct {
	source  Source
	started time.Time
	proc    *process.Process
	now     func() time.Time
}

// NewCollector creates a collector for source. Process metrics are reported
// as zero when the current process cannot be inspected.
func NewCollector(source Source) *Collector {
	c := &Collector{
		source:  source,
		started: time.Now(),
		now:     time.Now,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

// Collect returns the current stats.
func (c *Collector) Collect() Stats {
	snap := c.source.Snapshot()

	s := Stats{
		Clients:       snap.Clients,
		Sessions:      len(snap.Sessions),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: c.now().Sub(c.started).Seconds(),
	}
	if snap.Waiting != "" {
		s.Waiting = 1
	}

	if c.proc != nil {
		if mem, err := c.proc.MemoryInfo(); err == nil {
			s.RSSBytes = mem.RSS
		}
		if cpu, err := c.proc.CPUPercent(); err == nil {
			s.CPUPercent = cpu
		}
	}
	return s
}

// Package sysinfo samples host resource usage for the status endpoint.
package sysinfo

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resources is a point-in-time host usage sample.
type Resources struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
}

// Sample reads current usage. The CPU probe averages over one second.
// Probes that fail leave their fields zero so a degraded host still
// reports what it can.
func Sample(ctx context.Context) Resources {
	var res Resources

	if pcts, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(pcts) > 0 {
		res.CPUPercent = round2(pcts[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		res.MemoryPercent = round2(vm.UsedPercent)
		res.MemoryUsedGB = toGB(vm.Used)
		res.MemoryTotalGB = toGB(vm.Total)
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		res.DiskPercent = round2(du.UsedPercent)
		res.DiskFreeGB = toGB(du.Free)
		res.DiskTotalGB = toGB(du.Total)
	}
	return res
}

func toGB(b uint64) float64 {
	return round2(float64(b) / (1 << 30))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package logger

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	countMu    sync.Mutex
	warnCount  = make(map[string]int)
	errorCount = make(map[string]int)
)

func recordWarn(component string) {
	countMu.Lock()
	warnCount[component]++
	countMu.Unlock()
}

func recordError(component string) {
	countMu.Lock()
	errorCount[component]++
	countMu.Unlock()
}

func snapshotCounts() (warns map[string]int, errors map[string]int) {
	countMu.Lock()
	defer countMu.Unlock()
	warns = make(map[string]int, len(warnCount))
	errors = make(map[string]int, len(errorCount))
	for k, v := range warnCount {
		warns[k] = v
	}
	for k, v := range errorCount {
		errors[k] = v
	}
	warnCount = make(map[string]int)
	errorCount = make(map[string]int)
	return warns, errors
}

// StartSystemReport logs host and process health on the given interval and
// publishes warn/error counters accumulated since the previous report.
func StartSystemReport(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitSystemReport()
			}
		}
	}()
}

func emitSystemReport() {
	log := GetLogger().WithComponent("system")

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	fields := Fields{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": float64(ms.HeapAlloc) / 1024 / 1024,
		"num_gc":        ms.NumGC,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fields["mem_used_pct"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		fields["cpu_pct"] = pct[0]
	}

	warns, errs := snapshotCounts()
	for comp, n := range warns {
		log.LogMetric(comp, "log_warnings", n, "counter", nil)
	}
	for comp, n := range errs {
		log.LogMetric(comp, "log_errors", n, "counter", nil)
	}
	fields["warn_components"] = len(warns)
	fields["error_components"] = len(errs)

	log.WithFields(fields).Info("system report")
}

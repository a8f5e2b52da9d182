package discovery

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ResourceSampler reports host load as percentages. The scheduler's
// monitor loop samples it each tick.
type ResourceSampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// ProcSampler reads CPU and memory usage from the /proc filesystem.
// CPU is computed from deltas between consecutive samples of /proc/stat,
// so the first call reports 0.
type ProcSampler struct {
	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64
}

// NewProcSampler creates a sampler.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{}
}

// Sample implements ResourceSampler.
func (p *ProcSampler) Sample() (float64, float64, error) {
	cpu, err := p.sampleCPU()
	if err != nil {
		return 0, 0, err
	}
	mem, err := sampleMemory()
	if err != nil {
		return 0, 0, err
	}
	return cpu, mem, nil
}

func (p *ProcSampler) sampleCPU() (float64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, fmt.Errorf("reading cpu stats: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("empty /proc/stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, fmt.Errorf("unexpected /proc/stat format")
	}

	var total, idle uint64
	for i, raw := range fields[1:] {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		total += v
		// idle + iowait
		if i == 3 || i == 4 {
			idle += v
		}
	}
	busy := total - idle

	p.mu.Lock()
	defer p.mu.Unlock()

	dBusy := busy - p.prevBusy
	dTotal := total - p.prevTotal
	first := p.prevTotal == 0
	p.prevBusy = busy
	p.prevTotal = total

	if first || dTotal == 0 {
		return 0, nil
	}
	return 100 * float64(dBusy) / float64(dTotal), nil
}

func sampleMemory() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, fmt.Errorf("reading memory stats: %w", err)
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("MemTotal missing from /proc/meminfo")
	}
	return 100 * float64(total-available) / float64(total), nil
}

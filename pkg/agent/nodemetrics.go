package agent

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/ridgeline/pkg/types"
)

// collectNodeMetrics takes a point-in-time resource snapshot of the
// host. There is no third-party system-metrics library anywhere in the
// corpus (the teacher reports only per-container health, never node
// resource usage), so this reads /proc and syscall.Statfs directly —
// the same surface a vendored metrics library would read internally,
// without taking on a new dependency for three numbers.
func collectNodeMetrics() types.NodeMetrics {
	m := types.NodeMetrics{
		CPUCores:    runtime.NumCPU(),
		CollectedAt: time.Now(),
	}

	if mem, used, err := readMemInfo(); err == nil {
		m.MemoryBytes = mem
		m.MemoryUsed = used
	}

	if total, used, err := readDiskUsage("/"); err == nil {
		m.DiskBytes = total
		m.DiskUsed = used
	}

	m.CPUUsedPercent = readLoadAsPercent(m.CPUCores)

	return m
}

func readMemInfo() (total, used int64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var totalKB, availableKB int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			availableKB, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}

	total = totalKB * 1024
	used = (totalKB - availableKB) * 1024
	return total, used, nil
}

func readDiskUsage(path string) (total, used int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free := int64(stat.Bavail) * int64(stat.Bsize)
	used = total - free
	return total, used, nil
}

func readLoadAsPercent(cores int) float64 {
	f, err := os.Open("/proc/loadavg")
	if err != nil || cores == 0 {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	pct := (load1 / float64(cores)) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

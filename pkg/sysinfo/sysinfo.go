// Package sysinfo gathers the host facts shown by the info command.
package sysinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Unknown is shown for facts that could not be read.
const Unknown = "N/A"

// Info is a snapshot of host facts.
type Info struct {
	Uptime string
	RAM    string
	Host   string
}

// Collect reads the current facts. started is the process start time.
func Collect(started time.Time) Info {
	info := Info{
		Uptime: FormatUptime(time.Since(started)),
		RAM:    Unknown,
		Host:   Unknown,
	}
	if f, err := os.Open("/proc/meminfo"); err == nil {
		if pct, err := MemoryPercent(f); err == nil {
			info.RAM = fmt.Sprintf("%.1f%%", pct)
		}
		_ = f.Close()
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		info.Host = host
	}
	return info
}

// FormatUptime renders d as HH:MM:SS. Hours keep growing past 99.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// MemoryPercent computes used memory from a /proc/meminfo listing.
func MemoryPercent(r io.Reader) (float64, error) {
	var total, available int64 = -1, -1
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if total <= 0 || available < 0 {
		return 0, fmt.Errorf("meminfo: missing MemTotal or MemAvailable")
	}
	return float64(total-available) / float64(total) * 100, nil
}

// Package cgroup locates and reads the cgroup accounting files the
// runtime leaves behind for a running container.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/cgroups"
)

// Root is the cgroup v1 mount root; overridable in tests.
var Root = "/sys/fs/cgroup"

// Paths globs the two locations the runtime is known to place a
// container's cgroups under — directly by id, or nested under a
// "docker" group — mirroring the original's `cgroups(cid)` which globs
// both `/sys/fs/cgroup/*/<id>` and `/sys/fs/cgroup/*/docker/<id>`.
// The returned map is keyed by subsystem name (memory, cpu, cpuacct, ...).
func Paths(id string) (map[string]string, error) {
	patterns := []string{
		filepath.Join(Root, "*", id),
		filepath.Join(Root, "*", "docker", id),
	}
	out := map[string]string{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(Root, m)
			if err != nil {
				continue
			}
			subsystem := strings.SplitN(rel, string(filepath.Separator), 2)[0]
			out[subsystem] = m
		}
	}
	return out, nil
}

// Stats is the subset of accounting data this adapter's `usage` verb
// reports.
type Stats struct {
	MemoryRSSBytes    uint64
	MemoryLimitBytes  uint64
	CPUShares         float64 // shares/1024, matching the runtime driver's own scale
	CPUUserSeconds    float64
	CPUSystemSeconds  float64
	SubsystemsPresent []string
}

// Read locates a container's cgroups and reads the counters used for
// resource usage reporting. Subsystems that are absent on the host
// (or never mounted for this container) are simply left at zero;
// the usage verb treats a fully-empty Stats as "no cgroup data
// available" rather than an error.
func Read(id string) (*Stats, error) {
	paths, err := Paths(id)
	if err != nil {
		return nil, err
	}
	s := &Stats{}
	for name := range paths {
		s.SubsystemsPresent = append(s.SubsystemsPresent, name)
	}

	if memPath, ok := paths["memory"]; ok {
		rel := relativeTo(memPath, Root, "memory")
		cg, err := cgroups.Load(cgroups.V1, cgroups.StaticPath(rel))
		if err != nil {
			return nil, fmt.Errorf("failed to load memory cgroup for %s: %w", id, err)
		}
		metrics, err := cg.Stat(cgroups.IgnoreNotExist)
		if err != nil {
			return nil, fmt.Errorf("failed to read memory stats for %s: %w", id, err)
		}
		if metrics.Memory != nil {
			s.MemoryRSSBytes = metrics.Memory.RSS
			if metrics.Memory.Usage != nil {
				s.MemoryLimitBytes = metrics.Memory.Usage.Limit
			}
		}
	}

	if cpuPath, ok := paths["cpu"]; ok {
		shares, err := readUintFile(filepath.Join(cpuPath, "cpu.shares"))
		if err == nil {
			// Same 1024-shares-per-core scale the runtime driver uses when
			// it sets `-c`, so usage and limit are reported on one scale.
			s.CPUShares = float64(shares) / 1024
		}
	}

	if acctPath, ok := paths["cpuacct"]; ok {
		rel := relativeTo(acctPath, Root, "cpuacct")
		cg, err := cgroups.Load(cgroups.V1, cgroups.StaticPath(rel))
		if err != nil {
			return nil, fmt.Errorf("failed to load cpuacct cgroup for %s: %w", id, err)
		}
		metrics, err := cg.Stat(cgroups.IgnoreNotExist)
		if err != nil {
			return nil, fmt.Errorf("failed to read cpuacct stats for %s: %w", id, err)
		}
		if metrics.CPU != nil && metrics.CPU.Usage != nil {
			s.CPUUserSeconds = float64(metrics.CPU.Usage.User) / 1e9
			s.CPUSystemSeconds = float64(metrics.CPU.Usage.Kernel) / 1e9
		}
	}

	return s, nil
}

// relativeTo derives the cgroups.StaticPath argument for a subsystem
// mount — the portion of the discovered absolute path after the
// subsystem's own mount point, e.g. "/docker/<id>" or "/<id>".
func relativeTo(absPath, root, subsystem string) string {
	prefix := filepath.Join(root, subsystem)
	rel := strings.TrimPrefix(absPath, prefix)
	if rel == "" {
		return "/"
	}
	return rel
}

func readUintFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// ParseStatFile parses a flat "key value" pairs file such as
// memory.stat, silently skipping any line that is not exactly two
// fields — matching the original's `StatFile`, which tolerates
// malformed or header lines from unfamiliar kernels.
func ParseStatFile(data string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		out[fields[0]] = fields[1]
	}
	return out
}

package coordinator

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Resources is host usage as fractions of 1.
type Resources struct {
	CPU    float64
	Memory float64
}

// Sampler reports host resource usage.
type Sampler interface {
	Sample() (Resources, error)
}

// cpuReading is cumulative jiffies from the aggregate line of /proc/stat.
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// busy = user + nice + system + irq + softirq + steal, idle = idle + iowait.
type cpuReading struct {
	busy uint64
	idle uint64
}

// ProcSampler reads /proc/stat and /proc/meminfo. CPU usage is the busy
// share since the previous sample, so the first sample reports 0 CPU.
type ProcSampler struct {
	statPath    string
	meminfoPath string

	mu   sync.Mutex
	prev *cpuReading
}

// NewProcSampler returns a sampler over the host's /proc.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{statPath: "/proc/stat", meminfoPath: "/proc/meminfo"}
}

// Sample implements Sampler.
func (p *ProcSampler) Sample() (Resources, error) {
	cur, err := readCPU(p.statPath)
	if err != nil {
		return Resources{}, err
	}
	mem, err := readMemory(p.meminfoPath)
	if err != nil {
		return Resources{}, err
	}

	p.mu.Lock()
	prev := p.prev
	p.prev = cur
	p.mu.Unlock()

	return Resources{CPU: cpuFraction(prev, cur), Memory: mem}, nil
}

func readCPU(path string) (*cpuReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: read cpu: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("coordinator: read cpu: %s is empty", path)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return nil, fmt.Errorf("coordinator: read cpu: unexpected line %q", scanner.Text())
	}
	values := make([]uint64, 8)
	for i := range values {
		v, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coordinator: read cpu: %w", err)
		}
		values[i] = v
	}
	return &cpuReading{
		busy: values[0] + values[1] + values[2] + values[5] + values[6] + values[7],
		idle: values[3] + values[4],
	}, nil
}

func cpuFraction(prev, cur *cpuReading) float64 {
	if prev == nil || cur == nil || cur.busy < prev.busy || cur.idle < prev.idle {
		return 0
	}
	busy := cur.busy - prev.busy
	total := busy + cur.idle - prev.idle
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total)
}

// readMemory returns 1 - MemAvailable/MemTotal.
func readMemory(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("coordinator: read memory: %w", err)
	}
	defer f.Close()

	var total, avail uint64
	var haveTotal, haveAvail bool
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
			total, haveTotal = v, true
		case "MemAvailable:":
			avail, haveAvail = v, true
		}
	}
	if !haveTotal || !haveAvail || total == 0 {
		return 0, fmt.Errorf("coordinator: read memory: MemTotal/MemAvailable missing from %s", path)
	}
	if avail > total {
		return 0, nil
	}
	return 1 - float64(avail)/float64(total), nil
}

// StaticSampler always reports the same usage.
type StaticSampler Resources

// Sample implements Sampler.
func (s StaticSampler) Sample() (Resources, error) { return Resources(s), nil }

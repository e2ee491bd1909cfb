package bridge

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const gb = 1 << 30

func (m *Manager) getBridgeCpu() ([]float64, error) {
	return cpu.Percent(0, false)
}

func (m *Manager) getBridgeMem() (*MemUsageInfo, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &MemUsageInfo{
		Total:       fmt.Sprintf("%.2fGB", float64(v.Total)/gb),
		Used:        fmt.Sprintf("%.2fGB", float64(v.Used)/gb),
		UsedPercent: fmt.Sprintf("%.2f%%", v.UsedPercent),
	}, nil
}

func (m *Manager) getBridgeDisk() ([]*DiskUsageInfo, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}
	infos := make([]*DiskUsageInfo, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		infos = append(infos, &DiskUsageInfo{
			Total:       fmt.Sprintf("%.2fGB", float64(usage.Total)/gb),
			Used:        fmt.Sprintf("%.2fGB", float64(usage.Used)/gb),
			UsedPercent: fmt.Sprintf("%.2f%%", usage.UsedPercent),
		})
	}
	return infos, nil
}

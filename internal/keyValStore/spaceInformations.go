package keyValStore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// getDeviceAndMountPoint returns the partition with the longest mount point
// that contains path.
func getDeviceAndMountPoint(path string) (device, mountPoint string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}

	partitions, err := disk.Partitions(true)
	if err != nil {
		return "", "", fmt.Errorf("unable to list partitions: %w", err)
	}

	for _, p := range partitions {
		if !strings.HasPrefix(abs, p.Mountpoint) || len(p.Mountpoint) <= len(mountPoint) {
			continue
		}
		device, mountPoint = p.Device, p.Mountpoint
	}
	if mountPoint == "" {
		return "", "", fmt.Errorf("unable to find mount for path %s", path)
	}

	return device, mountPoint, nil
}

// displayDiskUsage logs the disk usage of every path. A missing mount point
// is logged but does not fail the store.
func (k *KeyValStore) displayDiskUsage(paths []string) error {
	k.log.Debug("Displaying disk usage information for paths")

	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			k.log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		device, mountPoint, err := getDeviceAndMountPoint(path)
		if err != nil {
			k.log.WithFields(logrus.Fields{
				"path": path,
			}).Warnf("Error finding device and mount point: %v", err)
		}

		pathSize, err := calculateDirectorySize(path)
		if err != nil {
			k.log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error calculating directory size: %v", err)
			return err
		}

		k.log.WithFields(logrus.Fields{
			"Path":        path,
			"Device":      device,
			"Mount Point": mountPoint,
			"Total (GB)":  fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"Used (GB)":   fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
			"Free (GB)":   fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
			"Usage by DB": fmt.Sprintf("%.2f", float64(pathSize)/1e9),
		}).Info("Disk Usage")
	}

	return nil
}

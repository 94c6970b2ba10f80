//go:build linux

package linux

import (
	"time"

	"github.com/patrickmn/go-cache"
	"k8s.io/mount-utils"

	"machinerun.io/mdprov"
)

// scanCacheTTL bounds how long a full-system disk scan is reused for the
// enumeration listing. Inspections are never cached.
const scanCacheTTL = 15 * time.Second

const scanCacheKey = "scan-all"

type linuxSystem struct {
	mounter mount.Interface
	cache   *cache.Cache
}

// System returns the linux implementation of mdprov.System.
func System() mdprov.System {
	return &linuxSystem{
		mounter: mount.New(""),
		cache:   cache.New(scanCacheTTL, time.Minute),
	}
}

func (ls *linuxSystem) ScanDisks() (mdprov.DiskSet, error) {
	if cached, ok := ls.cache.Get(scanCacheKey); ok {
		return cached.(mdprov.DiskSet), nil
	}

	disks, err := scanAllDisks()
	if err != nil {
		return disks, err
	}

	ls.cache.Set(scanCacheKey, disks, cache.DefaultExpiration)

	return disks, nil
}

func (ls *linuxSystem) ScanDisk(path string) (mdprov.Disk, error) {
	return scanDisk(path)
}

func (ls *linuxSystem) PersistMount(fstabPath, fsUUID, dir, fstype string) (bool, error) {
	return persistMountEntry(fstabPath, fsUUID, dir, fstype)
}

func (ls *linuxSystem) PersistArray(registryPath string, desc mdprov.ArrayDescriptor) (bool, error) {
	return persistArrayEntry(registryPath, desc)
}

func (ls *linuxSystem) RefreshBootImage() (mdprov.RefreshTool, error) {
	return refreshBootImage()
}

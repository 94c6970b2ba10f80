package mdprov

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
)

// Mebibyte is a convenient power of 2.
const Mebibyte = 1024 * 1024

// ErrNotBlockDevice is returned by ScanDisk when the path does not point at
// a whole-disk block device.
var ErrNotBlockDevice = errors.New("not a block device")

// DiskType enumerates supported disk types.
type DiskType int

const (
	// HDD - hard disk drive
	HDD DiskType = iota

	// SSD - solid state disk
	SSD

	// NVME - Non-volatile memory express
	NVME
)

func (t DiskType) String() string {
	return []string{"HDD", "SSD", "NVME"}[t]
}

// Disk holds the information about a whole-disk block device that the
// provisioner cares about.
type Disk struct {
	// Name is the kernel name of the disk (sda, nvme0n1).
	Name string `json:"name"`

	// Path is the device path of the disk.
	Path string `json:"path"`

	// Size is the size of the disk in bytes.
	Size uint64 `json:"size"`

	// SectorSize is the logical sector size of the disk.
	SectorSize uint `json:"sectorSize"`

	// Type is the media type of the disk.
	Type DiskType `json:"type"`

	// UdevInfo is the disk's udev information.
	UdevInfo UdevInfo `json:"udevInfo"`
}

func (d Disk) String() string {
	return fmt.Sprintf("%s (%s) Size=%s SectorSize=%d Type=%s",
		d.Name, d.Path, humanize.IBytes(d.Size), d.SectorSize, d.Type)
}

// DiskSet is a map of the kernel device name and the disk.
type DiskSet map[string]Disk

// Details renders the disks in the set as rows of (path, size, type, model),
// sorted by name, for the operator-facing listing.
func (ds DiskSet) Details() [][]string {
	names := make([]string, 0, len(ds))
	for n := range ds {
		names = append(names, n)
	}

	sort.Strings(names)

	rows := [][]string{{"PATH", "SIZE", "TYPE", "MODEL"}}
	for _, n := range names {
		d := ds[n]
		rows = append(rows, []string{
			d.Path,
			humanize.IBytes(d.Size),
			d.Type.String(),
			d.UdevInfo.Properties["ID_MODEL"],
		})
	}

	return rows
}

// System is the set of host operations the provisioning workflow needs.
// The linux package provides the real implementation, mockos a fake one.
type System interface {
	// ScanDisks scans the system for all whole-disk block devices and
	// returns them with size and udev metadata.
	ScanDisks() (DiskSet, error)

	// ScanDisk scans a single device path. Returns ErrNotBlockDevice if
	// the path does not reference a whole-disk block device.
	ScanDisk(path string) (Disk, error)

	// Inspect computes a fresh SafetyReport for the device. Never cached:
	// it is used as the gate after destructive cleaning.
	Inspect(path string) (SafetyReport, error)

	// Clean destructively prepares the device for array membership:
	// unmount, superblock erase, signature wipe, partition table zero.
	// Individual sub-step failures are recorded, not returned; cleaning
	// always runs to completion.
	Clean(path string, wipePrefix int64) []CleanResult

	// CreateArray invokes the array creation primitive once with the full
	// device list. Any failure is final - no partial retry.
	CreateArray(req ProvisioningRequest, arrayPath string) error

	// QueryArray reads back the descriptor of an assembled array. An
	// error means the array is not (yet) queryable.
	QueryArray(arrayPath string) (ArrayDescriptor, error)

	// Mkfs formats the device with the given filesystem type and label.
	Mkfs(fstype, label, path string) error

	// Mount mounts the device at dir, creating dir if needed, and sets
	// the fixed permission mode on it.
	Mount(path, dir, fstype string, mode os.FileMode) error

	// FilesystemUUID returns the filesystem UUID of the device.
	FilesystemUUID(path string) (string, error)

	// PersistMount appends a boot-time mount entry keyed by UUID to the
	// mount table at fstabPath, after a timestamped backup. Returns false
	// if an entry for the UUID already exists.
	PersistMount(fstabPath, fsUUID, dir, fstype string) (bool, error)

	// PersistArray appends the array's canonical descriptor line to the
	// registry file, after a timestamped backup. Returns false if an
	// entry for the array device already exists.
	PersistArray(registryPath string, desc ArrayDescriptor) (bool, error)

	// RefreshBootImage runs the first boot-image refresh tool present on
	// the system. Returns RefreshNone (and no error) if none is found.
	RefreshBootImage() (RefreshTool, error)
}

// RefreshTool enumerates the mutually exclusive boot-image refresh tools,
// in probe priority order.
type RefreshTool int

const (
	// RefreshNone - no refresh tool present on the system.
	RefreshNone RefreshTool = iota

	// RefreshUpdateInitramfs - Debian-style update-initramfs.
	RefreshUpdateInitramfs

	// RefreshDracut - dracut.
	RefreshDracut

	// RefreshMkinitcpio - Arch-style mkinitcpio.
	RefreshMkinitcpio
)

func (t RefreshTool) String() string {
	return []string{"none", "update-initramfs", "dracut", "mkinitcpio"}[t]
}

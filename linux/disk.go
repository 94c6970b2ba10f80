//go:build linux

package linux

import (
	"io"
	"io/ioutil"
	"log"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"machinerun.io/mdprov"
)

//nolint:gochecknoglobals
var realDiskKnameRegex = regexp.MustCompile("^((s|v|xv|h)d[a-z]|nvme[0-9]n[0-9]+)$")

func getDiskNames() ([]string, error) {
	disks := []string{}

	files, err := ioutil.ReadDir("/sys/block")
	if err != nil {
		return []string{}, err
	}

	for _, file := range files {
		if realDiskKnameRegex.MatchString(file.Name()) {
			disks = append(disks, file.Name())
		}
	}

	return disks, nil
}

func scanAllDisks() (mdprov.DiskSet, error) {
	disks := mdprov.DiskSet{}

	names, err := getDiskNames()
	if err != nil {
		return disks, err
	}

	for _, name := range names {
		dpath := path.Join("/dev", name)

		disk, err := scanDisk(dpath)
		if err != nil {
			// ENOMEDIUM will occur on a empty sd reader.
			if e, ok := errors.Cause(err).(*os.PathError); ok {
				if e.Err == syscall.ENOMEDIUM {
					continue
				}
			}

			log.Printf("Skipping device %s: %v", name, err)

			continue
		}

		disks[disk.Name] = disk
	}

	return disks, nil
}

func scanDisk(devicePath string) (mdprov.Disk, error) {
	kname, err := getKnameForBlockDevicePath(devicePath)
	if err != nil {
		return mdprov.Disk{},
			errors.Wrapf(mdprov.ErrNotBlockDevice, "%s: %v", devicePath, err)
	}

	if !realDiskKnameRegex.MatchString(kname) {
		return mdprov.Disk{},
			errors.Wrapf(mdprov.ErrNotBlockDevice, "%s is not a whole disk",
				devicePath)
	}

	// a whole disk has no /sys/class/block/<kname>/partition
	if pathExists(path.Join("/sys/class/block", kname, "partition")) {
		return mdprov.Disk{},
			errors.Wrapf(mdprov.ErrNotBlockDevice, "%s is a partition",
				devicePath)
	}

	ssize, err := getLogicalBlockSize(kname)
	if err != nil {
		return mdprov.Disk{}, err
	}

	udInfo, err := mdprov.GetUdevInfo(kname)
	if err != nil {
		return mdprov.Disk{}, err
	}

	disk := mdprov.Disk{
		Name:       kname,
		Path:       path.Join("/dev", kname),
		SectorSize: ssize,
		Type:       getDiskType(udInfo),
		UdevInfo:   udInfo,
	}

	fh, err := os.Open(disk.Path)
	if err != nil {
		return disk, err
	}
	defer fh.Close()

	size, err := getFileSize(fh)
	if err != nil {
		return disk, err
	}

	disk.Size = size

	return disk, nil
}

// getDiskType returns the media type for the disk represented by the udev
// info provided.
func getDiskType(udInfo mdprov.UdevInfo) mdprov.DiskType {
	if strings.HasPrefix(udInfo.Name, "nvme") {
		return mdprov.NVME
	}

	content, err := ioutil.ReadFile(
		path.Join("/sys/block", udInfo.Name, "queue/rotational"))
	if err != nil {
		return mdprov.HDD
	}

	if strings.TrimSpace(string(content)) == "0" {
		return mdprov.SSD
	}

	return mdprov.HDD
}

func getKnameForBlockDevicePath(dev string) (string, error) {
	// given '/dev/sda' (or any valid block device path) return 'sda'
	kname, err := getSysPathForBlockDevicePath(dev)
	if err != nil {
		return "", err
	}

	return path.Base(kname), nil
}

func getSysPathForBlockDevicePath(dev string) (string, error) {
	// Return the path in /sys/class/block/<device> for a given
	// block device kname or path.
	var syspath string
	var sysdir string = "/sys/class/block"

	if strings.Contains(dev, "/") {
		// after symlink resolution, devpath = '/dev/sda' or '/dev/sdb1'
		// no longer something like /dev/disk/by-id/foo
		devpath, err := filepath.EvalSymlinks(dev)
		if err != nil {
			return "", err
		}

		syspath = path.Join(sysdir, path.Base(devpath))
	} else {
		// assume this is 'sda', something that would be in /sys/class/block
		syspath = path.Join(sysdir, dev)
	}

	if _, err := os.Stat(syspath); err != nil {
		return "", err
	}

	return syspath, nil
}

// partitionDevPaths returns the /dev paths of the partitions of the whole
// disk at devPath, in kernel name order.
func partitionDevPaths(devPath string) []string {
	parts := []string{}

	kname, err := getKnameForBlockDevicePath(devPath)
	if err != nil {
		return parts
	}

	entries, err := ioutil.ReadDir(path.Join("/sys/class/block", kname))
	if err != nil {
		return parts
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), kname) {
			parts = append(parts, path.Join("/dev", entry.Name()))
		}
	}

	return parts
}

func getLogicalBlockSize(kname string) (uint, error) {
	fpath := path.Join("/sys/block", kname, "queue/logical_block_size")

	content, err := ioutil.ReadFile(fpath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read sector size for '%s'", kname)
	}

	d := strings.TrimSpace(string(content))

	v, err := strconv.Atoi(d)
	if err != nil {
		return 0, errors.Wrapf(err,
			"getLogicalBlockSize(%s): failed to convert '%s' to int", kname, d)
	}

	return uint(v), nil
}

func getFileSize(file *os.File) (uint64, error) {
	var err error
	var cur, pos int64

	// read the current position so we can set it back before return
	if cur, err = file.Seek(0, io.SeekCurrent); err != nil {
		return 0, err
	}

	if pos, err = file.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}

	if _, err = file.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}

	return uint64(pos), nil
}

func pathExists(d string) bool {
	_, err := os.Stat(d)
	if err != nil && os.IsNotExist(err) {
		return false
	}

	return true
}

func udevSettle() error {
	return mdprov.RunCommand("udevadm", "settle")
}

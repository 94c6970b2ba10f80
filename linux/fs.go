//go:build linux

package linux

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"machinerun.io/mdprov"
)

func (ls *linuxSystem) Mkfs(fstype, label, devPath string) error {
	return mdprov.RunCommand("mkfs."+fstype, "-q", "-L", label, devPath)
}

func (ls *linuxSystem) Mount(devPath, dir, fstype string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return errors.Wrapf(err, "failed to create mount point %s", dir)
	}

	if err := ls.mounter.Mount(devPath, dir, fstype, nil); err != nil {
		return err
	}

	// MkdirAll's mode is masked by umask; set it explicitly on the
	// mounted root.
	return os.Chmod(dir, mode)
}

func (ls *linuxSystem) FilesystemUUID(devPath string) (string, error) {
	props, err := blkidExport(devPath)
	if err != nil {
		return "", err
	}

	fsUUID, ok := props["UUID"]
	if !ok {
		return "", fmt.Errorf("blkid reports no UUID for %s", devPath)
	}

	return fsUUID, nil
}

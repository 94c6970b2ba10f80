package linux

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"machinerun.io/mdprov"
)

const backupTimeFormat = "20060102-150405"

// backupFile copies fpath to a timestamped sibling before it is modified.
// A missing original needs no backup.
func backupFile(fpath string) error {
	src, err := os.Open(fpath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer src.Close()

	bpath := fpath + "." + time.Now().Format(backupTimeFormat) + ".bak"

	dst, err := os.OpenFile(bpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create backup %s", bpath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "failed to write backup %s", bpath)
	}

	return dst.Sync()
}

// appendEntry appends line to the file at fpath unless exists matches an
// existing line. The file is backed up first. Returns whether the line was
// added.
func appendEntry(fpath, line string, exists func(string) bool) (bool, error) {
	data, err := os.ReadFile(fpath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	for _, cur := range strings.Split(string(data), "\n") {
		if exists(cur) {
			return false, nil
		}
	}

	if err := backupFile(fpath); err != nil {
		return false, err
	}

	fp, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, err
	}
	defer fp.Close()

	if len(data) > 0 && data[len(data)-1] != '\n' {
		line = "\n" + line
	}

	if _, err := fp.WriteString(line + "\n"); err != nil {
		return false, err
	}

	return true, fp.Sync()
}

// persistMountEntry appends a boot-time mount line, idempotent on the
// filesystem UUID.
func persistMountEntry(fstabPath, fsUUID, dir, fstype string) (bool, error) {
	source := "UUID=" + fsUUID

	return appendEntry(fstabPath,
		mdprov.FstabLine(fsUUID, dir, fstype),
		func(line string) bool {
			fields := strings.Fields(line)
			return len(fields) > 0 && fields[0] == source
		})
}

// persistArrayEntry appends the array's canonical registry line, idempotent
// on the array device path.
func persistArrayEntry(registryPath string, desc mdprov.ArrayDescriptor) (bool, error) {
	return appendEntry(registryPath,
		desc.ConfLine(),
		func(line string) bool {
			fields := strings.Fields(line)
			return len(fields) >= 2 &&
				fields[0] == "ARRAY" && fields[1] == desc.Path
		})
}

//go:build linux

package linux

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"machinerun.io/mdprov"
)

// Clean destructively prepares devPath for array membership. Every sub-step
// runs regardless of earlier failures; outcomes are recorded per step and
// judged later by the post-clean inspection.
func (ls *linuxSystem) Clean(devPath string, wipePrefix int64) []mdprov.CleanResult {
	results := []mdprov.CleanResult{}
	record := func(step mdprov.CleanStep, err error) {
		results = append(results,
			mdprov.CleanResult{Device: devPath, Step: step, Err: err})
	}

	record(mdprov.StepUnmount, ls.unmountAll(devPath))
	record(mdprov.StepZeroSuperblock, zeroMdSuperblocks(devPath))
	record(mdprov.StepWipeSignatures,
		mdprov.RunCommand("wipefs", "--all", devPath))
	record(mdprov.StepZeroEnds, zeroDeviceEnds(devPath, wipePrefix))

	_ = udevSettle()

	// the next enumeration must see the device's new state.
	ls.cache.Flush()

	return results
}

// unmountAll unmounts every mount whose source begins with devPath,
// falling back to a lazy unmount when the graceful one fails.
func (ls *linuxSystem) unmountAll(devPath string) error {
	targets, err := ls.mountedTargets(devPath)
	if err != nil {
		return err
	}

	failed := []string{}

	for _, target := range targets {
		if err := ls.mounter.Unmount(target); err == nil {
			continue
		}

		if err := mdprov.RunCommand("umount", "-l", target); err != nil {
			failed = append(failed, target)
		}
	}

	if len(failed) != 0 {
		return fmt.Errorf("could not unmount %s", strings.Join(failed, ", "))
	}

	return nil
}

// zeroMdSuperblocks erases md metadata from the device and each of its
// partitions. mdadm exits non-zero on devices with no superblock; only a
// combined failure is worth recording.
func zeroMdSuperblocks(devPath string) error {
	failed := []string{}

	for _, p := range append([]string{devPath}, partitionDevPaths(devPath)...) {
		if !hasMdSuperblock(p) {
			continue
		}

		if err := mdprov.RunCommand("mdadm", "--zero-superblock", p); err != nil {
			failed = append(failed, p)
		}
	}

	if len(failed) != 0 {
		return fmt.Errorf("mdadm --zero-superblock failed on %s",
			strings.Join(failed, ", "))
	}

	return nil
}

// zeroDeviceEnds zeroes a prefix of the device plus its last mebibyte, so
// both the partition table and its backup copy are gone.
func zeroDeviceEnds(devPath string, wipePrefix int64) error {
	fp, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer fp.Close()

	if err := syscall.Flock(int(fp.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock %s: %s", devPath, err)
	}

	size, err := getFileSize(fp)
	if err != nil {
		return err
	}

	last := wipePrefix
	if int64(size) < last {
		last = int64(size)
	}

	if err := zeroStartEnd(fp, 0, last); err != nil {
		return err
	}

	if int64(size) > wipePrefix+mdprov.Mebibyte {
		if err := zeroStartEnd(fp,
			int64(size)-mdprov.Mebibyte, int64(size)); err != nil {
			return err
		}
	}

	return fp.Sync()
}

//go:build linux

package linux

import (
	"strings"

	"github.com/pkg/errors"

	"machinerun.io/mdprov"
)

// blkid exits 2 when it finds nothing it recognizes on the device.
const blkidNothingFoundRC = 2

func (ls *linuxSystem) Inspect(devPath string) (mdprov.SafetyReport, error) {
	rep := mdprov.SafetyReport{}

	mounted, err := ls.mountedTargets(devPath)
	if err != nil {
		return rep, err
	}

	rep.Mounted = len(mounted) > 0

	// the whole device plus each of its partitions carries signatures
	// independently.
	for _, p := range append([]string{devPath}, partitionDevPaths(devPath)...) {
		props, err := blkidExport(p)
		if err != nil {
			return rep, err
		}

		switch fsType := props["TYPE"]; {
		case fsType == mdprov.BlkidRaidMemberType:
			rep.HasRaidSignature = true
		case fsType != "":
			rep.HasFilesystem = true
		}

		if props["PTTYPE"] != "" {
			rep.HasPartitionTable = true
		}
	}

	if !rep.HasRaidSignature {
		rep.HasRaidSignature = hasMdSuperblock(devPath)
	}

	if !rep.HasPartitionTable {
		// read the device directly; blkid misses a zeroed-then-restored
		// backup GPT.
		if has, err := hasPartitionTablePath(devPath); err == nil && has {
			rep.HasPartitionTable = true
		}
	}

	return rep, nil
}

// mountedTargets returns the mount points whose source begins with devPath.
func (ls *linuxSystem) mountedTargets(devPath string) ([]string, error) {
	mounts, err := ls.mounter.List()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mounts")
	}

	targets := []string{}

	for _, m := range mounts {
		if strings.HasPrefix(m.Device, devPath) {
			targets = append(targets, m.Path)
		}
	}

	return targets, nil
}

func blkidExport(devPath string) (map[string]string, error) {
	out, stderr, rc := mdprov.RunCommandWithOutputErrorRc(
		"blkid", "-o", "export", devPath)

	if rc == blkidNothingFoundRC {
		return map[string]string{}, nil
	}

	if rc != 0 {
		return nil, mdprov.CmdError(
			[]string{"blkid", "-o", "export", devPath}, out, stderr, rc)
	}

	return mdprov.ParseBlkidExport(out)
}

// hasMdSuperblock checks for an md superblock with mdadm --examine.
func hasMdSuperblock(devPath string) bool {
	_, _, rc := mdprov.RunCommandWithOutputErrorRc(
		"mdadm", "--examine", devPath)

	return rc == 0
}

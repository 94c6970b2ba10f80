package mdprov

import (
	"fmt"
	"strings"
)

// SafetyReport is the result of inspecting a device for signs of existing
// use. It is computed fresh each time it is needed - once before selection
// (advisory) and once after cleaning (a hard gate) - and never stored.
type SafetyReport struct {
	// Mounted - a mount table entry's source begins with the device path.
	Mounted bool `json:"mounted"`

	// HasFilesystem - the device carries a recognized filesystem signature.
	HasFilesystem bool `json:"hasFilesystem"`

	// HasRaidSignature - the device carries an md superblock.
	HasRaidSignature bool `json:"hasRaidSignature"`

	// HasPartitionTable - the device carries a GPT or MBR partition table.
	HasPartitionTable bool `json:"hasPartitionTable"`
}

// Unsafe reports whether any flag marks the device as in use.
func (r SafetyReport) Unsafe() bool {
	return r.Mounted || r.HasFilesystem || r.HasRaidSignature ||
		r.HasPartitionTable
}

// Flags returns the set flags as short strings for operator display.
func (r SafetyReport) Flags() []string {
	flags := []string{}

	if r.Mounted {
		flags = append(flags, "mounted")
	}

	if r.HasFilesystem {
		flags = append(flags, "filesystem")
	}

	if r.HasRaidSignature {
		flags = append(flags, "raid-member")
	}

	if r.HasPartitionTable {
		flags = append(flags, "partition-table")
	}

	return flags
}

func (r SafetyReport) String() string {
	if !r.Unsafe() {
		return "clean"
	}

	return strings.Join(r.Flags(), ",")
}

// ParseBlkidExport parses `blkid -o export` output into a key/value map.
// Example input:
//
//	DEVNAME=/dev/sda1
//	UUID=c24a9738-a8e6-4a42-adb4-9757f0a38565
//	TYPE=ext4
func ParseBlkidExport(out []byte) (map[string]string, error) {
	props := map[string]string{}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			return props, fmt.Errorf("error parsing blkid line: %s", line)
		}

		props[kv[0]] = kv[1]
	}

	return props, nil
}

// BlkidRaidMemberType is the TYPE blkid reports for an md member device.
const BlkidRaidMemberType = "linux_raid_member"

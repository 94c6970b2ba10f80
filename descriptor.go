package mdprov

import (
	"fmt"
	"strconv"
	"strings"
)

// ArrayDescriptor is the identity of an assembled array as read back from
// `mdadm --detail`. It is produced once per successful run and never
// mutated afterward by the workflow.
type ArrayDescriptor struct {
	// Path is the array device path (/dev/md0).
	Path string `json:"path"`

	// Name is the array name as recorded in the superblock (host:0).
	Name string `json:"name"`

	// UUID is the array UUID in mdadm's colon-grouped form.
	UUID string `json:"uuid"`

	// Metadata is the superblock format version ("1.2").
	Metadata string `json:"metadata"`

	// Level is the redundancy level of the array.
	Level RaidLevel `json:"level"`

	// NumDevices is the active member count.
	NumDevices int `json:"numDevices"`

	// State is the raw array state line ("clean", "clean, resyncing").
	State string `json:"state"`

	// SyncPercent is the background synchronization progress, or -1 when
	// no sync is running.
	SyncPercent float64 `json:"syncPercent"`
}

// Resyncing reports whether background synchronization is still running.
// The array is documented as safely usable mid-sync; this is informational.
func (d ArrayDescriptor) Resyncing() bool {
	return d.SyncPercent >= 0 ||
		strings.Contains(d.State, "resync") ||
		strings.Contains(d.State, "recover")
}

// ConfLine renders the canonical registry line for this array, in the form
// `mdadm --detail --scan` emits it.
func (d ArrayDescriptor) ConfLine() string {
	return fmt.Sprintf("ARRAY %s metadata=%s name=%s UUID=%s",
		d.Path, d.Metadata, d.Name, d.UUID)
}

// ParseArrayDetail parses `mdadm --detail <dev>` output into a descriptor.
// The output is a "Key : Value" listing followed by a member device table;
// only the listing is consumed.
func ParseArrayDetail(out []byte) (ArrayDescriptor, error) {
	desc := ArrayDescriptor{SyncPercent: -1}
	lines := strings.Split(string(out), "\n")

	if len(lines) == 0 || !strings.HasSuffix(strings.TrimSpace(lines[0]), ":") {
		return desc, fmt.Errorf("unexpected mdadm detail output: %q",
			firstLine(out))
	}

	desc.Path = strings.TrimSuffix(strings.TrimSpace(lines[0]), ":")

	for _, line := range lines[1:] {
		toks := strings.SplitN(line, " : ", 2)
		if len(toks) != 2 {
			continue
		}

		key := strings.TrimSpace(toks[0])
		val := strings.TrimSpace(toks[1])

		switch key {
		case "Version":
			desc.Metadata = val
		case "Raid Level":
			level, err := ParseRaidLevel(val)
			if err != nil {
				return desc, err
			}

			desc.Level = level
		case "Raid Devices":
			num, err := strconv.Atoi(val)
			if err != nil {
				return desc, fmt.Errorf("bad Raid Devices value %q", val)
			}

			desc.NumDevices = num
		case "State":
			desc.State = val
		case "Name":
			// 'Name : host:0  (local to host host)' - keep first token.
			desc.Name = strings.Fields(val)[0]
		case "UUID":
			desc.UUID = val
		case "Resync Status", "Rebuild Status":
			// '12% complete'
			pctStr := strings.TrimSuffix(strings.Fields(val)[0], "%")

			pct, err := strconv.ParseFloat(pctStr, 64)
			if err == nil {
				desc.SyncPercent = pct
			}
		}
	}

	if desc.UUID == "" {
		return desc, fmt.Errorf("no UUID in mdadm detail for %s", desc.Path)
	}

	return desc, nil
}

func firstLine(b []byte) string {
	s := string(b)
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}

	return s
}

// FstabLine renders the boot-time mount entry for a filesystem UUID.
func FstabLine(fsUUID, dir, fstype string) string {
	return fmt.Sprintf("UUID=%s %s %s defaults,nofail 0 2", fsUUID, dir, fstype)
}

// Package mockos provides a scriptable in-memory implementation of
// mdprov.System, loaded from a JSON layout, for exercising the workflow
// without touching real devices.
package mockos

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"machinerun.io/mdprov"
)

// System returns a mock implementation of the mdprov.System interface
// loaded from the layout file.
func System(layout string) mdprov.System {
	file, err := ioutil.ReadFile(layout)
	if err != nil {
		panic(err)
	}

	sys, err := FromJSON(file)
	if err != nil {
		panic(err)
	}

	return sys
}

// FromJSON builds a mock system from a JSON layout.
func FromJSON(b []byte) (*Sys, error) {
	sys := &Sys{}

	if err := json.Unmarshal(b, sys); err != nil {
		return nil, err
	}

	if sys.Reports == nil {
		sys.Reports = map[string]mdprov.SafetyReport{}
	}

	return sys, nil
}

// Sys is a mock system. The exported layout fields script its behavior;
// the observation fields record what the workflow did to it.
type Sys struct {
	// Disks is the set of block devices the mock system has.
	Disks mdprov.DiskSet `json:"disks"`

	// Reports holds the current safety report per device path.
	Reports map[string]mdprov.SafetyReport `json:"reports"`

	// StickyDevices keeps its devices' unsafe flags through cleaning,
	// simulating a wipe that did not take.
	StickyDevices []string `json:"stickyDevices"`

	// CreateError, when set, fails CreateArray with this message.
	CreateError string `json:"createError"`

	// ReadyAfter is how many QueryArray calls fail before the array
	// becomes queryable.
	ReadyAfter int `json:"readyAfter"`

	// Detail is the descriptor QueryArray returns once ready.
	Detail mdprov.ArrayDescriptor `json:"detail"`

	// FSUUID is the filesystem UUID reported after formatting; empty
	// simulates a blkid that comes back with nothing.
	FSUUID string `json:"fsUUID"`

	// RefreshTool is the boot-image refresh tool "present" on the mock
	// system.
	RefreshTool mdprov.RefreshTool `json:"refreshTool"`

	// Observations.
	Cleaned       []string
	Created       bool
	CreatedReq    mdprov.ProvisioningRequest
	FormattedWith string
	MountedAt     string
	FstabLines    []string
	RegistryLines []string
	Refreshed     bool

	queries int
}

var _ mdprov.System = (*Sys)(nil)

func (ms *Sys) ScanDisks() (mdprov.DiskSet, error) {
	return ms.Disks, nil
}

func (ms *Sys) ScanDisk(path string) (mdprov.Disk, error) {
	for _, d := range ms.Disks {
		if d.Path == path {
			return d, nil
		}
	}

	return mdprov.Disk{}, mdprov.ErrNotBlockDevice
}

func (ms *Sys) Inspect(path string) (mdprov.SafetyReport, error) {
	if _, err := ms.ScanDisk(path); err != nil {
		return mdprov.SafetyReport{}, err
	}

	return ms.Reports[path], nil
}

func (ms *Sys) Clean(path string, wipePrefix int64) []mdprov.CleanResult {
	ms.Cleaned = append(ms.Cleaned, path)

	results := []mdprov.CleanResult{}

	for _, step := range []mdprov.CleanStep{
		mdprov.StepUnmount, mdprov.StepZeroSuperblock,
		mdprov.StepWipeSignatures, mdprov.StepZeroEnds,
	} {
		results = append(results,
			mdprov.CleanResult{Device: path, Step: step})
	}

	for _, sticky := range ms.StickyDevices {
		if sticky == path {
			return results
		}
	}

	ms.Reports[path] = mdprov.SafetyReport{}

	return results
}

func (ms *Sys) CreateArray(req mdprov.ProvisioningRequest, arrayPath string) error {
	if ms.CreateError != "" {
		return fmt.Errorf("%s", ms.CreateError)
	}

	ms.Created = true
	ms.CreatedReq = req

	if ms.Detail.Path == "" {
		ms.Detail.Path = arrayPath
	}

	return nil
}

func (ms *Sys) QueryArray(arrayPath string) (mdprov.ArrayDescriptor, error) {
	ms.queries++

	if !ms.Created || ms.queries <= ms.ReadyAfter {
		return mdprov.ArrayDescriptor{},
			fmt.Errorf("mdadm: cannot open %s: No such file or directory",
				arrayPath)
	}

	return ms.Detail, nil
}

func (ms *Sys) Mkfs(fstype, label, path string) error {
	ms.FormattedWith = fmt.Sprintf("%s:%s:%s", fstype, label, path)
	return nil
}

func (ms *Sys) Mount(path, dir, fstype string, mode os.FileMode) error {
	ms.MountedAt = dir
	return nil
}

func (ms *Sys) FilesystemUUID(path string) (string, error) {
	if ms.FormattedWith == "" {
		return "", fmt.Errorf("no filesystem on %s", path)
	}

	return ms.FSUUID, nil
}

func (ms *Sys) PersistMount(fstabPath, fsUUID, dir, fstype string) (bool, error) {
	line := mdprov.FstabLine(fsUUID, dir, fstype)

	for _, cur := range ms.FstabLines {
		if cur == line {
			return false, nil
		}
	}

	ms.FstabLines = append(ms.FstabLines, line)

	return true, nil
}

func (ms *Sys) PersistArray(registryPath string, desc mdprov.ArrayDescriptor) (bool, error) {
	line := desc.ConfLine()

	for _, cur := range ms.RegistryLines {
		if cur == line {
			return false, nil
		}
	}

	ms.RegistryLines = append(ms.RegistryLines, line)

	return true, nil
}

func (ms *Sys) RefreshBootImage() (mdprov.RefreshTool, error) {
	ms.Refreshed = true
	return ms.RefreshTool, nil
}

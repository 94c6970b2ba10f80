package mdprov

import "fmt"

// CleanStep enumerates the sub-steps of destructive preparation, in the
// order they run on each device.
type CleanStep int

const (
	// StepUnmount - unmount any mounted partitions of the device.
	StepUnmount CleanStep = iota

	// StepZeroSuperblock - erase any existing md superblock.
	StepZeroSuperblock

	// StepWipeSignatures - wipe recognized filesystem/container signatures.
	StepWipeSignatures

	// StepZeroEnds - zero the start and end of the device to remove the
	// partition table and its backup copy.
	StepZeroEnds
)

func (s CleanStep) String() string {
	return []string{
		"unmount", "zero-superblock", "wipe-signatures", "zero-ends",
	}[s]
}

// CleanResult records the outcome of one cleaning sub-step on one device.
// Failures here are best-effort by design: they are collected and reported
// at the post-clean verification boundary, never used to abort cleaning.
type CleanResult struct {
	Device string
	Step   CleanStep
	Err    error
}

func (r CleanResult) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s %s: ok", r.Device, r.Step)
	}

	return fmt.Sprintf("%s %s: %s (ignored)", r.Device, r.Step, r.Err)
}

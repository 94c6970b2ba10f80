package mdprov

import "fmt"

// ProvisioningRequest holds the operator's answers from the parameter
// collection phase: the redundancy level and the ordered set of member
// devices. It is built once per run and never mutated after validation.
type ProvisioningRequest struct {
	// Level is the requested redundancy level.
	Level RaidLevel `json:"level"`

	// NumDevices is the requested member count.
	NumDevices int `json:"numDevices"`

	// Devices is the ordered list of member device paths. Order is the
	// selection order and is preserved through cleaning and creation.
	Devices []string `json:"devices"`
}

// Validate checks the internal consistency of the request: member count at
// or above the level minimum, device list length matching the count, and no
// duplicate devices. Device existence is the System's business, not ours.
func (r *ProvisioningRequest) Validate() error {
	if _, ok := raidLevelMinDevices[r.Level]; !ok {
		return fmt.Errorf("unsupported raid level %d", int(r.Level))
	}

	if min := r.Level.MinDevices(); r.NumDevices < min {
		return fmt.Errorf("%s requires at least %d devices, requested %d",
			r.Level, min, r.NumDevices)
	}

	if len(r.Devices) != r.NumDevices {
		return fmt.Errorf("requested %d devices but %d selected",
			r.NumDevices, len(r.Devices))
	}

	seen := map[string]bool{}

	for _, dev := range r.Devices {
		if seen[dev] {
			return fmt.Errorf("device %s selected more than once", dev)
		}

		seen[dev] = true
	}

	return nil
}

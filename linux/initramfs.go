package linux

import (
	"os/exec"

	"machinerun.io/mdprov"
)

// refreshCommands maps each refresh tool variant to its invocation, in
// probe priority order. Exactly one of these runs; whichever binary is
// found first wins.
//
//nolint:gochecknoglobals
var refreshCommands = []struct {
	tool mdprov.RefreshTool
	argv []string
}{
	{mdprov.RefreshUpdateInitramfs, []string{"update-initramfs", "-u"}},
	{mdprov.RefreshDracut, []string{"dracut", "--force"}},
	{mdprov.RefreshMkinitcpio, []string{"mkinitcpio", "-P"}},
}

func refreshBootImage() (mdprov.RefreshTool, error) {
	for _, candidate := range refreshCommands {
		if _, err := exec.LookPath(candidate.argv[0]); err != nil {
			continue
		}

		return candidate.tool, mdprov.RunCommand(candidate.argv...)
	}

	return mdprov.RefreshNone, nil
}

//go:build linux

package linux

import (
	"fmt"

	"machinerun.io/mdprov"
)

func (ls *linuxSystem) CreateArray(req mdprov.ProvisioningRequest, arrayPath string) error {
	if err := req.Validate(); err != nil {
		return err
	}

	// --run skips mdadm's own interactive confirmation; ours already
	// happened.
	args := []string{
		"mdadm", "--create", arrayPath, "--run",
		"--level=" + req.Level.Num(),
		fmt.Sprintf("--raid-devices=%d", req.NumDevices),
	}
	args = append(args, req.Devices...)

	if err := mdprov.RunCommand(args...); err != nil {
		return err
	}

	return udevSettle()
}

func (ls *linuxSystem) QueryArray(arrayPath string) (mdprov.ArrayDescriptor, error) {
	args := []string{"mdadm", "--detail", arrayPath}

	out, stderr, rc := mdprov.RunCommandWithOutputErrorRc(args...)
	if rc != 0 {
		return mdprov.ArrayDescriptor{}, mdprov.CmdError(args, out, stderr, rc)
	}

	return mdprov.ParseArrayDetail(out)
}

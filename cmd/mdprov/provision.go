package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"machinerun.io/mdprov"
	"machinerun.io/mdprov/linux"
	"machinerun.io/mdprov/logging"
)

//nolint:gochecknoglobals
var provisionCommand = cli.Command{
	Name:   "provision",
	Usage:  "walk through creating, formatting and registering a new array",
	Action: doProvision,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "array",
			Value: "/dev/md0",
			Usage: "device path to create the array at",
		},
		&cli.StringFlag{
			Name:  "fstab",
			Value: "/etc/fstab",
			Usage: "mount table to append the boot-time entry to",
		},
		&cli.StringFlag{
			Name:  "registry",
			Value: "",
			Usage: "array registry file (default: first existing mdadm.conf)",
		},
		&cli.StringFlag{
			Name:  "mount-base",
			Value: "/mnt",
			Usage: "directory the level-derived mount point is created under",
		},
		&cli.IntFlag{
			Name:  "ready-attempts",
			Value: 60,
			Usage: "one-second attempts to wait for the array to appear",
		},
		&cli.StringFlag{
			Name:  "log-dir",
			Value: logging.DefaultDir,
			Usage: "directory for the per-run log file",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log phase transitions and per-step cleaning results",
		},
	},
}

//nolint:gochecknoglobals
var requiredTools = []string{"mdadm", "wipefs", "blkid", "udevadm"}

func doProvision(c *cli.Context) error {
	if os.Geteuid() != 0 {
		return cli.Exit("mdprov provision must run as root", 1)
	}

	cfg := mdprov.DefaultConfig()
	cfg.ArrayPath = c.String("array")
	cfg.FstabPath = c.String("fstab")
	cfg.MountBase = c.String("mount-base")
	cfg.ReadyAttempts = c.Int("ready-attempts")

	if reg := c.String("registry"); reg != "" {
		cfg.RegistryPath = reg
	} else {
		cfg.RegistryPath = defaultRegistryPath()
	}

	for _, tool := range append(requiredTools, "mkfs."+cfg.Filesystem) {
		if _, err := exec.LookPath(tool); err != nil {
			return cli.Exit(
				fmt.Sprintf("required tool '%s' not found in PATH", tool), 1)
		}
	}

	logFile := logging.RunFile(c.String("log-dir"))

	logger, err := logging.New(logFile, c.Bool("debug"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open %s: %s", logFile, err), 1)
	}
	defer logger.Sync() //nolint:errcheck

	prompter, err := newReadlinePrompter()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer prompter.Close()

	runID := mdprov.GenRunID()
	logger.Infof("run %s starting (log: %s)", runID, logFile)

	wf := mdprov.NewWorkflow(cfg, linux.System(), prompter, logger)

	// observability hook, runs on every exit path. It undoes nothing.
	defer func() {
		logger.Infof("run %s ended in phase %s", runID, wf.Phase())
	}()

	desc, err := wf.Run()
	if err != nil {
		if errors.Is(err, mdprov.ErrAborted) {
			logger.Warnf("%s", err)
			return cli.Exit("aborted", 1)
		}

		logger.Errorf("%s", err)

		return cli.Exit("provisioning failed", 1)
	}

	logger.Infof("registered: %s", desc.ConfLine())

	return nil
}

func defaultRegistryPath() string {
	for _, p := range []string{"/etc/mdadm/mdadm.conf", "/etc/mdadm.conf"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return "/etc/mdadm/mdadm.conf"
}

type readlinePrompter struct {
	rl *readline.Instance
}

func newReadlinePrompter() (*readlinePrompter, error) {
	rl, err := readline.New("")
	if err != nil {
		return nil, err
	}

	return &readlinePrompter{rl: rl}, nil
}

// Prompt implements mdprov.Prompter.
func (p *readlinePrompter) Prompt(msg string) (string, error) {
	p.rl.SetPrompt(msg)
	return p.rl.Readline()
}

func (p *readlinePrompter) Close() error {
	return p.rl.Close()
}

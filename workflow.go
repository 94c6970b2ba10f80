package mdprov

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sentinel errors for the workflow's terminal failure states. Each fatal
// condition is distinguishable so callers (and tests) can tell a creation
// failure from a readiness timeout.
var (
	// ErrAborted - the operator declined the confirmation gate.
	ErrAborted = errors.New("aborted by operator")

	// ErrUnsafeAfterClean - a device still reported an unsafe flag after
	// destructive preparation.
	ErrUnsafeAfterClean = errors.New("device still in use after cleaning")

	// ErrArrayNotReady - the array never became queryable within the
	// readiness ceiling.
	ErrArrayNotReady = errors.New("timed out waiting for array")

	// ErrMissingUUID - no usable filesystem UUID after formatting.
	ErrMissingUUID = errors.New("missing filesystem UUID")
)

// confirmLiteral is the exact, case sensitive input required to pass the
// confirmation gate.
const confirmLiteral = "YES"

// Phase identifies where in the provisioning state machine a workflow is.
type Phase int

const (
	PhaseCollectingParams Phase = iota
	PhaseInspectingDevices
	PhaseAwaitingConfirmation
	PhaseCleaning
	PhaseVerifyingClean
	PhaseCreatingArray
	PhaseAwaitingReady
	PhaseFormatting
	PhaseMounting
	PhasePersisting
	PhaseDone
)

func (p Phase) String() string {
	return []string{
		"CollectingParams", "InspectingDevices", "AwaitingConfirmation",
		"Cleaning", "VerifyingClean", "CreatingArray", "AwaitingReady",
		"Formatting", "Mounting", "Persisting", "Done",
	}[p]
}

// Prompter asks the operator a question and returns the answer with any
// trailing newline removed. io.EOF means the input source is exhausted.
type Prompter interface {
	Prompt(msg string) (string, error)
}

// Config carries every tunable of a provisioning run. There is no ambient
// state: each phase reads what it needs from here.
type Config struct {
	// ArrayPath is the device path the array is created at.
	ArrayPath string

	// Filesystem is the one fixed filesystem type used for formatting.
	Filesystem string

	// MountBase is the directory the level-derived mount point is
	// created under.
	MountBase string

	// MountMode is the permission mode set on the mount point.
	MountMode os.FileMode

	// FstabPath is the system mount table.
	FstabPath string

	// RegistryPath is the array registry file used for boot-time
	// reassembly.
	RegistryPath string

	// WipePrefix is the number of bytes zeroed at the start of each
	// device during cleaning.
	WipePrefix int64

	// ReadyAttempts bounds the readiness poll after array creation.
	ReadyAttempts int

	// ReadyInterval is the pause between readiness poll attempts.
	ReadyInterval time.Duration

	// Out receives operator-facing prompts and listings.
	Out io.Writer
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ArrayPath:     "/dev/md0",
		Filesystem:    "ext4",
		MountBase:     "/mnt",
		MountMode:     0775,
		FstabPath:     "/etc/fstab",
		RegistryPath:  "/etc/mdadm/mdadm.conf",
		WipePrefix:    8 * Mebibyte,
		ReadyAttempts: 60,
		ReadyInterval: time.Second,
		Out:           os.Stdout,
	}
}

// MountDir returns the deterministic, level-derived mount path.
func (c Config) MountDir(level RaidLevel) string {
	return path.Join(c.MountBase, level.String())
}

// Workflow walks an operator through provisioning one array: parameter
// collection, safety inspection, destructive preparation, array creation
// and persistence. Strictly sequential; a second concurrent instance
// against overlapping devices is unsupported.
type Workflow struct {
	cfg   Config
	sys   System
	in    Prompter
	log   *zap.SugaredLogger
	phase Phase
}

// NewWorkflow builds a workflow over the given system implementation.
func NewWorkflow(cfg Config, sys System, in Prompter, log *zap.SugaredLogger) *Workflow {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Workflow{cfg: cfg, sys: sys, in: in, log: log}
}

// Phase returns the phase the workflow is (or stopped) in.
func (w *Workflow) Phase() Phase {
	return w.phase
}

// Run executes the workflow start to finish. The returned descriptor is
// only meaningful on nil error. Destructive actions begin after the
// confirmation gate; there is no rollback of partial work on failure.
func (w *Workflow) Run() (ArrayDescriptor, error) {
	var desc ArrayDescriptor

	req, err := w.collectParams()
	if err != nil {
		return desc, err
	}

	if err := w.selectDevices(&req); err != nil {
		return desc, err
	}

	if err := w.confirm(req); err != nil {
		return desc, err
	}

	w.clean(req)

	if err := w.verifyClean(req); err != nil {
		return desc, err
	}

	w.setPhase(PhaseCreatingArray)

	if err := w.sys.CreateArray(req, w.cfg.ArrayPath); err != nil {
		return desc, errors.Wrap(err, "array creation failed")
	}

	w.setPhase(PhaseAwaitingReady)

	desc, err = w.waitReady()
	if err != nil {
		return desc, err
	}

	if desc.Resyncing() {
		// informational only - the array is safely usable mid-sync.
		w.log.Infof("array %s sync in progress (%s); not waiting for it",
			desc.Path, syncPercentString(desc))
	}

	if err := w.finish(req, desc); err != nil {
		return desc, err
	}

	w.setPhase(PhaseDone)
	w.log.Infof("array %s (%s, %d devices) provisioned at %s",
		desc.Path, desc.Level, desc.NumDevices, w.cfg.MountDir(req.Level))

	return desc, nil
}

func (w *Workflow) setPhase(p Phase) {
	w.phase = p
	w.log.Debugf("phase: %s", p)
}

func (w *Workflow) collectParams() (ProvisioningRequest, error) {
	w.setPhase(PhaseCollectingParams)

	req := ProvisioningRequest{}

	for {
		ans, err := w.in.Prompt("RAID level (0 1 5 6 10): ")
		if err != nil {
			return req, err
		}

		level, err := ParseRaidLevel(ans)
		if err != nil {
			fmt.Fprintf(w.cfg.Out, "%s\n", err)
			continue
		}

		req.Level = level

		break
	}

	min := req.Level.MinDevices()

	for {
		ans, err := w.in.Prompt(
			fmt.Sprintf("Number of devices (%s needs at least %d): ",
				req.Level, min))
		if err != nil {
			return req, err
		}

		num, err := strconv.Atoi(strings.TrimSpace(ans))
		if err != nil || num < min {
			fmt.Fprintf(w.cfg.Out,
				"need a whole number of at least %d\n", min)
			continue
		}

		req.NumDevices = num

		break
	}

	return req, nil
}

func (w *Workflow) selectDevices(req *ProvisioningRequest) error {
	w.setPhase(PhaseInspectingDevices)

	disks, err := w.sys.ScanDisks()
	if err != nil {
		return errors.Wrap(err, "disk enumeration failed")
	}

	w.printDiskListing(disks)

	selected := map[string]bool{}

	for slot := 1; slot <= req.NumDevices; slot++ {
		for {
			ans, err := w.in.Prompt(
				fmt.Sprintf("Device %d of %d: ", slot, req.NumDevices))
			if err != nil {
				return err
			}

			disk, err := w.sys.ScanDisk(strings.TrimSpace(ans))
			if err != nil {
				fmt.Fprintf(w.cfg.Out, "not a usable disk: %s\n", err)
				continue
			}

			if selected[disk.Path] {
				fmt.Fprintf(w.cfg.Out, "%s already selected\n", disk.Path)
				continue
			}

			rep, err := w.sys.Inspect(disk.Path)
			if err != nil {
				return errors.Wrapf(err, "cannot inspect %s", disk.Path)
			}

			if rep.Unsafe() {
				// advisory here; the hard gate is after cleaning.
				fmt.Fprintf(w.cfg.Out,
					"warning: %s is in use (%s) and will be wiped\n",
					disk.Path, rep)
			}

			selected[disk.Path] = true
			req.Devices = append(req.Devices, disk.Path)

			break
		}
	}

	return req.Validate()
}

func (w *Workflow) printDiskListing(disks DiskSet) {
	details := disks.Details()
	rows := [][]string{append(details[0], "IN-USE")}

	for _, row := range details[1:] {
		inUse := "?"
		if rep, err := w.sys.Inspect(row[0]); err == nil {
			inUse = rep.String()
		}

		rows = append(rows, append(row, inUse))
	}

	fmt.Fprintf(w.cfg.Out, "\nAvailable disks:\n")
	printTextTable(w.cfg.Out, rows)
	fmt.Fprintf(w.cfg.Out, "\n")
}

func (w *Workflow) confirm(req ProvisioningRequest) error {
	w.setPhase(PhaseAwaitingConfirmation)

	fmt.Fprintf(w.cfg.Out, "\nAll data on these devices will be DESTROYED:\n")

	for i, dev := range req.Devices {
		if disk, err := w.sys.ScanDisk(dev); err == nil {
			fmt.Fprintf(w.cfg.Out, "  %d. %s (%s)\n",
				i+1, dev, humanize.IBytes(disk.Size))
		} else {
			fmt.Fprintf(w.cfg.Out, "  %d. %s\n", i+1, dev)
		}
	}

	ans, err := w.in.Prompt(fmt.Sprintf(
		"Create %s from %d devices? Type %s to continue: ",
		req.Level, req.NumDevices, confirmLiteral))
	if err != nil {
		return err
	}

	if ans != confirmLiteral {
		return ErrAborted
	}

	return nil
}

// clean destructively prepares every selected device in selection order.
// Sub-step failures are logged and swallowed: the post-clean verification
// is the gate, and array creation fails loudly on its own if preparation
// was insufficient.
func (w *Workflow) clean(req ProvisioningRequest) {
	w.setPhase(PhaseCleaning)

	for _, dev := range req.Devices {
		w.log.Infof("cleaning %s", dev)

		for _, res := range w.sys.Clean(dev, w.cfg.WipePrefix) {
			if res.Err != nil {
				w.log.Warnf("%s", res)
			} else {
				w.log.Debugf("%s", res)
			}
		}
	}
}

func (w *Workflow) verifyClean(req ProvisioningRequest) error {
	w.setPhase(PhaseVerifyingClean)

	for _, dev := range req.Devices {
		rep, err := w.sys.Inspect(dev)
		if err != nil {
			return errors.Wrapf(err, "post-clean inspection of %s failed", dev)
		}

		if rep.Unsafe() {
			return errors.Wrapf(ErrUnsafeAfterClean, "%s: %s", dev, rep)
		}
	}

	return nil
}

func (w *Workflow) waitReady() (ArrayDescriptor, error) {
	var lastErr error

	for attempt := 0; attempt < w.cfg.ReadyAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(w.cfg.ReadyInterval)
		}

		desc, err := w.sys.QueryArray(w.cfg.ArrayPath)
		if err == nil {
			return desc, nil
		}

		lastErr = err
	}

	return ArrayDescriptor{}, errors.Wrapf(ErrArrayNotReady,
		"%s after %d attempts (last: %v)",
		w.cfg.ArrayPath, w.cfg.ReadyAttempts, lastErr)
}

func (w *Workflow) finish(req ProvisioningRequest, desc ArrayDescriptor) error {
	w.setPhase(PhaseFormatting)

	label := req.Level.String()

	if err := w.sys.Mkfs(w.cfg.Filesystem, label, w.cfg.ArrayPath); err != nil {
		return errors.Wrapf(err, "formatting %s failed", w.cfg.ArrayPath)
	}

	w.setPhase(PhaseMounting)

	dir := w.cfg.MountDir(req.Level)

	if err := w.sys.Mount(
		w.cfg.ArrayPath, dir, w.cfg.Filesystem, w.cfg.MountMode); err != nil {
		return errors.Wrapf(err, "mounting %s at %s failed",
			w.cfg.ArrayPath, dir)
	}

	w.setPhase(PhasePersisting)

	fsUUID, err := w.sys.FilesystemUUID(w.cfg.ArrayPath)
	if err != nil {
		return errors.Wrapf(ErrMissingUUID, "reading uuid of %s: %v",
			w.cfg.ArrayPath, err)
	}

	if !ValidFSUUID(fsUUID) {
		return errors.Wrapf(ErrMissingUUID, "blkid returned '%s'", fsUUID)
	}

	added, err := w.sys.PersistMount(
		w.cfg.FstabPath, fsUUID, dir, w.cfg.Filesystem)
	if err != nil {
		return errors.Wrapf(err, "updating %s failed", w.cfg.FstabPath)
	}

	if !added {
		w.log.Infof("%s already has an entry for UUID=%s, skipping",
			w.cfg.FstabPath, fsUUID)
	}

	// a malformed array UUID would poison the registry line.
	if _, err := NormalizeArrayUUID(desc.UUID); err != nil {
		return errors.Wrapf(ErrMissingUUID, "%s", err)
	}

	added, err = w.sys.PersistArray(w.cfg.RegistryPath, desc)
	if err != nil {
		return errors.Wrapf(err, "updating %s failed", w.cfg.RegistryPath)
	}

	if !added {
		w.log.Infof("%s already registers %s, skipping",
			w.cfg.RegistryPath, desc.Path)
	}

	tool, err := w.sys.RefreshBootImage()

	switch {
	case err != nil:
		w.log.Warnf("boot image refresh (%s) failed: %s", tool, err)
	case tool == RefreshNone:
		w.log.Warnf("no boot image refresh tool found, skipping")
	default:
		w.log.Infof("boot image refreshed via %s", tool)
	}

	return nil
}

func syncPercentString(desc ArrayDescriptor) string {
	if desc.SyncPercent < 0 {
		return "starting"
	}

	return fmt.Sprintf("%.0f%%", desc.SyncPercent)
}

// printTextTable writes data as a column-aligned text table.
func printTextTable(out io.Writer, data [][]string) {
	var lengths = make([]int, len(data[0]))

	for _, line := range data {
		for i, field := range line {
			if len(field) > lengths[i] {
				lengths[i] = len(field)
			}
		}
	}

	fmts := make([]string, len(lengths))

	for i, l := range lengths {
		fmts[i] = fmt.Sprintf("%%-%ds", l)
	}

	pfmt := strings.Join(fmts, " | ") + " |\n"

	for _, line := range data {
		s := make([]interface{}, len(line))
		for i, v := range line {
			s[i] = v
		}

		fmt.Fprintf(out, pfmt, s...)
	}
}

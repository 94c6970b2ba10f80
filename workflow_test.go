package mdprov_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"machinerun.io/mdprov"
	"machinerun.io/mdprov/mockos"
)

// scriptPrompter answers prompts from a canned list. Exhausting the list
// returns io.EOF, like an operator hitting ctrl-d.
type scriptPrompter struct {
	answers []string
	next    int
}

func (p *scriptPrompter) Prompt(msg string) (string, error) {
	if p.next >= len(p.answers) {
		return "", io.EOF
	}

	ans := p.answers[p.next]
	p.next++

	return ans, nil
}

var testLayout = []byte(`{
  "disks": {
    "vdb": {"name": "vdb", "path": "/dev/vdb", "size": 10737418240,
            "sectorSize": 512, "type": 0},
    "vdc": {"name": "vdc", "path": "/dev/vdc", "size": 10737418240,
            "sectorSize": 512, "type": 0},
    "vdd": {"name": "vdd", "path": "/dev/vdd", "size": 21474836480,
            "sectorSize": 512, "type": 1}
  },
  "reports": {
    "/dev/vdb": {"hasFilesystem": true, "hasPartitionTable": true}
  },
  "readyAfter": 2,
  "detail": {
    "path": "/dev/md0",
    "name": "host1:0",
    "uuid": "f998f9aa:47c1a564:94955d93:04cf7f7b",
    "metadata": "1.2",
    "level": "raid1",
    "numDevices": 2,
    "state": "clean",
    "syncPercent": -1
  },
  "fsUUID": "c24a9738-a8e6-4a42-adb4-9757f0a38565",
  "refreshTool": 1
}`)

func newTestSys(t *testing.T) *mockos.Sys {
	t.Helper()

	sys, err := mockos.FromJSON(testLayout)
	if err != nil {
		t.Fatalf("bad test layout: %s", err)
	}

	return sys
}

func newTestWorkflow(sys *mockos.Sys, answers ...string) (*mdprov.Workflow, *bytes.Buffer) {
	out := &bytes.Buffer{}

	cfg := mdprov.DefaultConfig()
	cfg.Out = out
	cfg.ReadyAttempts = 5
	cfg.ReadyInterval = time.Millisecond

	wf := mdprov.NewWorkflow(cfg, sys, &scriptPrompter{answers: answers}, nil)

	return wf, out
}

func TestWorkflowEndToEndRaid1(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	wf, _ := newTestWorkflow(sys,
		"1", "2", "/dev/vdb", "/dev/vdc", "YES")

	desc, err := wf.Run()
	ast.NoError(err)
	ast.Equal(mdprov.PhaseDone, wf.Phase())

	// cleaning ran in selection order
	ast.Equal([]string{"/dev/vdb", "/dev/vdc"}, sys.Cleaned)

	ast.True(sys.Created)
	ast.Equal(mdprov.Raid1, sys.CreatedReq.Level)
	ast.Equal([]string{"/dev/vdb", "/dev/vdc"}, sys.CreatedReq.Devices)

	ast.Equal("f998f9aa:47c1a564:94955d93:04cf7f7b", desc.UUID)
	ast.Equal("ext4:raid1:/dev/md0", sys.FormattedWith)
	ast.Equal("/mnt/raid1", sys.MountedAt)

	if ast.Len(sys.FstabLines, 1) {
		ast.Contains(sys.FstabLines[0],
			"UUID=c24a9738-a8e6-4a42-adb4-9757f0a38565")
		ast.Contains(sys.FstabLines[0], "/mnt/raid1")
	}

	if ast.Len(sys.RegistryLines, 1) {
		ast.Contains(sys.RegistryLines[0], "ARRAY /dev/md0")
	}

	ast.True(sys.Refreshed)
}

func TestWorkflowBelowMinimumCountReprompts(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.Detail.Level = mdprov.Raid5
	sys.Detail.NumDevices = 3

	// raid5 needs 3 devices; "2" must be rejected and re-prompted.
	wf, out := newTestWorkflow(sys,
		"5", "2", "3", "/dev/vdb", "/dev/vdc", "/dev/vdd", "YES")

	_, err := wf.Run()
	ast.NoError(err)
	ast.Equal(3, sys.CreatedReq.NumDevices)
	ast.Contains(out.String(), "at least 3")
	ast.Equal("/mnt/raid5", sys.MountedAt)
}

func TestWorkflowInvalidLevelReprompts(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	wf, out := newTestWorkflow(sys,
		"7", "banana", "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.NoError(err)
	ast.Contains(out.String(), "unsupported raid level 7")
}

func TestWorkflowConfirmationGate(t *testing.T) {
	for _, answer := range []string{"yes", "Yes", "NO", "", "YES "} {
		sys := newTestSys(t)
		wf, _ := newTestWorkflow(sys,
			"1", "2", "/dev/vdb", "/dev/vdc", answer)

		_, err := wf.Run()

		if !errors.Is(err, mdprov.ErrAborted) {
			t.Errorf("confirmation %q: expected ErrAborted, got %v",
				answer, err)
		}

		// nothing destructive may have happened
		if len(sys.Cleaned) != 0 || sys.Created {
			t.Errorf("confirmation %q: devices were touched", answer)
		}
	}
}

func TestWorkflowRejectsDuplicateAndUnknownDevices(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	wf, out := newTestWorkflow(sys,
		"1", "2", "/dev/vdb", "/dev/vdb", "/dev/nope", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.NoError(err)
	ast.Equal([]string{"/dev/vdb", "/dev/vdc"}, sys.Cleaned)
	ast.Contains(out.String(), "already selected")
	ast.Contains(out.String(), "not a usable disk")
}

func TestWorkflowUnsafeAfterCleanIsFatal(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.StickyDevices = []string{"/dev/vdb"}

	wf, _ := newTestWorkflow(sys, "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.True(errors.Is(err, mdprov.ErrUnsafeAfterClean),
		"expected ErrUnsafeAfterClean, got %v", err)

	// creation must never run on a device that failed the post-clean check
	ast.False(sys.Created)
	ast.Equal(mdprov.PhaseVerifyingClean, wf.Phase())
}

func TestWorkflowCreateFailureIsFatal(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.CreateError = "mdadm: RUN_ARRAY failed: Invalid argument"

	wf, _ := newTestWorkflow(sys, "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.Error(err)
	ast.Contains(err.Error(), "RUN_ARRAY failed")

	// a creation failure is not a readiness timeout
	ast.False(errors.Is(err, mdprov.ErrArrayNotReady))
}

func TestWorkflowReadinessTimeout(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.ReadyAfter = 100 // never within the test's 5-attempt ceiling

	wf, _ := newTestWorkflow(sys, "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.True(errors.Is(err, mdprov.ErrArrayNotReady),
		"expected ErrArrayNotReady, got %v", err)
	ast.Equal(mdprov.PhaseAwaitingReady, wf.Phase())
}

func TestWorkflowResyncIsInformationalOnly(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.Detail.State = "clean, resyncing"
	sys.Detail.SyncPercent = 12

	wf, _ := newTestWorkflow(sys, "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.NoError(err)
	ast.Equal(mdprov.PhaseDone, wf.Phase())
}

func TestWorkflowMissingUUIDIsFatal(t *testing.T) {
	ast := assert.New(t)

	sys := newTestSys(t)
	sys.FSUUID = ""

	wf, _ := newTestWorkflow(sys, "1", "2", "/dev/vdb", "/dev/vdc", "YES")

	_, err := wf.Run()
	ast.True(errors.Is(err, mdprov.ErrMissingUUID),
		"expected ErrMissingUUID, got %v", err)
	ast.Empty(sys.FstabLines)
}

func TestWorkflowPromptEOF(t *testing.T) {
	sys := newTestSys(t)
	wf, _ := newTestWorkflow(sys, "1")

	_, err := wf.Run()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF when input is exhausted, got %v", err)
	}

	if len(sys.Cleaned) != 0 {
		t.Errorf("devices were touched before confirmation")
	}
}

package linux

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"machinerun.io/mdprov"
)

const testFSUUID = "c24a9738-a8e6-4a42-adb4-9757f0a38565"

func testDescriptor() mdprov.ArrayDescriptor {
	return mdprov.ArrayDescriptor{
		Path:       "/dev/md0",
		Name:       "host1:0",
		UUID:       "f998f9aa:47c1a564:94955d93:04cf7f7b",
		Metadata:   "1.2",
		Level:      mdprov.Raid1,
		NumDevices: 2,
		State:      "clean",
	}
}

func backupsIn(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	if err != nil {
		t.Fatal(err)
	}

	return matches
}

func TestPersistMountEntryCreatesMissingFile(t *testing.T) {
	ast := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")

	added, err := persistMountEntry(fstab, testFSUUID, "/mnt/raid1", "ext4")
	ast.NoError(err)
	ast.True(added)

	data, err := os.ReadFile(fstab)
	ast.NoError(err)
	ast.Equal(
		"UUID="+testFSUUID+" /mnt/raid1 ext4 defaults,nofail 0 2\n",
		string(data))

	// no original existed, so nothing to back up
	ast.Empty(backupsIn(t, filepath.Dir(fstab)))
}

func TestPersistMountEntryIdempotent(t *testing.T) {
	ast := assert.New(t)

	dir := t.TempDir()
	fstab := filepath.Join(dir, "fstab")

	content := "# /etc/fstab\nUUID=11111111-2222-3333-4444-555555555555 / ext4 defaults 0 1\n"
	ast.NoError(os.WriteFile(fstab, []byte(content), 0644))

	added, err := persistMountEntry(fstab, testFSUUID, "/mnt/raid1", "ext4")
	ast.NoError(err)
	ast.True(added)

	// the existing file was backed up before the append
	ast.Len(backupsIn(t, dir), 1)

	added, err = persistMountEntry(fstab, testFSUUID, "/mnt/raid1", "ext4")
	ast.NoError(err)
	ast.False(added, "second append of the same UUID must be a no-op")

	// a no-op makes no new backup
	ast.Len(backupsIn(t, dir), 1)

	data, err := os.ReadFile(fstab)
	ast.NoError(err)
	ast.Equal(1, strings.Count(string(data), testFSUUID))
	ast.True(strings.HasPrefix(string(data), content),
		"existing content must be preserved")
}

func TestPersistMountEntryHandlesMissingTrailingNewline(t *testing.T) {
	ast := assert.New(t)

	fstab := filepath.Join(t.TempDir(), "fstab")
	ast.NoError(os.WriteFile(fstab,
		[]byte("proc /proc proc defaults 0 0"), 0644))

	added, err := persistMountEntry(fstab, testFSUUID, "/mnt/raid1", "ext4")
	ast.NoError(err)
	ast.True(added)

	data, err := os.ReadFile(fstab)
	ast.NoError(err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if ast.Len(lines, 2) {
		ast.Equal("proc /proc proc defaults 0 0", lines[0])
		ast.Contains(lines[1], "UUID="+testFSUUID)
	}
}

func TestPersistArrayEntry(t *testing.T) {
	ast := assert.New(t)

	registry := filepath.Join(t.TempDir(), "mdadm.conf")
	desc := testDescriptor()

	added, err := persistArrayEntry(registry, desc)
	ast.NoError(err)
	ast.True(added)

	data, err := os.ReadFile(registry)
	ast.NoError(err)
	ast.Equal(desc.ConfLine()+"\n", string(data))

	added, err = persistArrayEntry(registry, desc)
	ast.NoError(err)
	ast.False(added)
}

func TestPersistArrayEntryMatchesOnDevicePath(t *testing.T) {
	ast := assert.New(t)

	registry := filepath.Join(t.TempDir(), "mdadm.conf")

	// a pre-existing hand-written line for the same device counts
	ast.NoError(os.WriteFile(registry,
		[]byte("ARRAY /dev/md0 UUID=00000000:00000000:00000000:00000000\n"),
		0644))

	added, err := persistArrayEntry(registry, testDescriptor())
	ast.NoError(err)
	ast.False(added)

	// a different device does not
	desc := testDescriptor()
	desc.Path = "/dev/md1"

	added, err = persistArrayEntry(registry, desc)
	ast.NoError(err)
	ast.True(added)
}

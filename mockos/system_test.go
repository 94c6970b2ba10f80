package mockos_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"machinerun.io/mdprov"
	"machinerun.io/mdprov/mockos"
)

//nolint: funlen
func TestSystem(t *testing.T) {
	Convey("testing the mock system", t, func() {
		So(func() { mockos.System("unknown") }, ShouldPanic)

		sys, err := mockos.FromJSON([]byte("not json"))
		So(err, ShouldNotBeNil)
		So(sys, ShouldBeNil)

		msys := mockos.System("testdata/layout.json").(*mockos.Sys)
		So(msys, ShouldNotBeNil)

		Convey("ScanDisks returns every disk in the layout", func() {
			disks, err := msys.ScanDisks()
			So(err, ShouldBeNil)
			So(len(disks), ShouldEqual, 3)
		})

		Convey("ScanDisk finds a disk by its device path", func() {
			disk, err := msys.ScanDisk("/dev/sda")
			So(err, ShouldBeNil)
			So(disk.Name, ShouldEqual, "sda")

			_, err = msys.ScanDisk("/dev/nothere")
			So(err, ShouldEqual, mdprov.ErrNotBlockDevice)
		})

		Convey("Inspect reflects the scripted safety reports", func() {
			rep, err := msys.Inspect("/dev/sda")
			So(err, ShouldBeNil)
			So(rep.Mounted, ShouldBeTrue)
			So(rep.Unsafe(), ShouldBeTrue)

			rep, err = msys.Inspect("/dev/nvme0n1")
			So(err, ShouldBeNil)
			So(rep.Unsafe(), ShouldBeFalse)

			_, err = msys.Inspect("/dev/nothere")
			So(err, ShouldNotBeNil)
		})

		Convey("Clean records the device and clears its report", func() {
			results := msys.Clean("/dev/sdb", 8*mdprov.Mebibyte)
			So(len(results), ShouldEqual, 4)
			So(msys.Cleaned, ShouldResemble, []string{"/dev/sdb"})

			rep, err := msys.Inspect("/dev/sdb")
			So(err, ShouldBeNil)
			So(rep.Unsafe(), ShouldBeFalse)

			Convey("unless the device is sticky", func() {
				msys.StickyDevices = []string{"/dev/sda"}
				msys.Clean("/dev/sda", 8*mdprov.Mebibyte)

				rep, err := msys.Inspect("/dev/sda")
				So(err, ShouldBeNil)
				So(rep.Unsafe(), ShouldBeTrue)
			})
		})

		Convey("QueryArray fails until the array was created and ready", func() {
			_, err := msys.QueryArray("/dev/md0")
			So(err, ShouldNotBeNil)

			req := mdprov.ProvisioningRequest{
				Level:      mdprov.Raid1,
				NumDevices: 2,
				Devices:    []string{"/dev/sda", "/dev/sdb"},
			}
			So(msys.CreateArray(req, "/dev/md0"), ShouldBeNil)
			So(msys.Created, ShouldBeTrue)

			// readyAfter is 1, and one failed query already happened
			desc, err := msys.QueryArray("/dev/md0")
			So(err, ShouldBeNil)
			So(desc.UUID, ShouldEqual, "f998f9aa:47c1a564:94955d93:04cf7f7b")
		})

		Convey("CreateArray honors a scripted failure", func() {
			msys.CreateError = "mdadm: device or resource busy"

			err := msys.CreateArray(mdprov.ProvisioningRequest{}, "/dev/md0")
			So(err, ShouldNotBeNil)
			So(msys.Created, ShouldBeFalse)
		})

		Convey("FilesystemUUID needs a formatted array first", func() {
			_, err := msys.FilesystemUUID("/dev/md0")
			So(err, ShouldNotBeNil)

			So(msys.Mkfs("ext4", "raid1", "/dev/md0"), ShouldBeNil)
			So(msys.FormattedWith, ShouldEqual, "ext4:raid1:/dev/md0")

			uuid, err := msys.FilesystemUUID("/dev/md0")
			So(err, ShouldBeNil)
			So(uuid, ShouldEqual, "c24a9738-a8e6-4a42-adb4-9757f0a38565")
		})

		Convey("persistence is idempotent per target", func() {
			added, err := msys.PersistMount(
				"/etc/fstab", "c24a9738-a8e6-4a42-adb4-9757f0a38565",
				"/mnt/raid1", "ext4")
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)

			added, err = msys.PersistMount(
				"/etc/fstab", "c24a9738-a8e6-4a42-adb4-9757f0a38565",
				"/mnt/raid1", "ext4")
			So(err, ShouldBeNil)
			So(added, ShouldBeFalse)
			So(len(msys.FstabLines), ShouldEqual, 1)

			desc := mdprov.ArrayDescriptor{
				Path: "/dev/md0", Name: "mock:0", Metadata: "1.2",
				UUID: "f998f9aa:47c1a564:94955d93:04cf7f7b",
			}

			added, err = msys.PersistArray("/etc/mdadm/mdadm.conf", desc)
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)

			added, err = msys.PersistArray("/etc/mdadm/mdadm.conf", desc)
			So(err, ShouldBeNil)
			So(added, ShouldBeFalse)
			So(len(msys.RegistryLines), ShouldEqual, 1)
		})

		Convey("RefreshBootImage reports the scripted tool", func() {
			tool, err := msys.RefreshBootImage()
			So(err, ShouldBeNil)
			So(tool, ShouldEqual, mdprov.RefreshDracut)
			So(msys.Refreshed, ShouldBeTrue)
		})
	})
}

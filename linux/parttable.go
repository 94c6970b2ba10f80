package linux

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rekby/gpt"
	"github.com/rekby/mbr"

	"machinerun.io/mdprov"
)

const (
	sectorSize512 = 512
	sectorSize4k  = 4096
)

// ErrNoPartitionTable is returned if there is no partition table.
var ErrNoPartitionTable error = errors.New("no Partition Table Found")

func readGPTTableSearch(fp io.ReadSeeker, sizes []uint) (gpt.Table, uint, error) {
	const noGptFound = "Bad GPT signature"
	var gptTable gpt.Table
	var err error
	var size uint

	for _, size = range sizes {
		// consider seek failure to be fatal
		if _, err := fp.Seek(int64(size), io.SeekStart); err != nil {
			return gpt.Table{}, size, err
		}

		if gptTable, err = gpt.ReadTable(fp, uint64(size)); err != nil {
			if err.Error() == noGptFound {
				continue
			}

			return gpt.Table{}, size, err
		}

		return gptTable, size, nil
	}

	return gpt.Table{}, size, ErrNoPartitionTable
}

func readGPTTable(fp io.ReadSeeker) (gpt.Table, uint, error) {
	return readGPTTableSearch(fp, []uint{sectorSize512, sectorSize4k})
}

func readMBRTable(fp io.ReadSeeker) (*mbr.MBR, error) {
	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	mbrTable, err := mbr.Read(fp)
	if err == mbr.ErrorBadMbrSign {
		return nil, ErrNoPartitionTable
	}

	return mbrTable, err
}

// hasPartitionTable reports whether the stream carries a GPT or MBR
// partition table signature.
func hasPartitionTable(fp io.ReadSeeker) (bool, error) {
	if _, _, err := readGPTTable(fp); err == nil {
		return true, nil
	} else if err != ErrNoPartitionTable {
		return false, err
	}

	if _, err := readMBRTable(fp); err == nil {
		return true, nil
	} else if err != ErrNoPartitionTable {
		return false, err
	}

	return false, nil
}

func hasPartitionTablePath(fpath string) (bool, error) {
	fp, err := os.Open(fpath)
	if err != nil {
		return false, err
	}
	defer fp.Close()

	return hasPartitionTable(fp)
}

// zeroStartEnd - zero the start and end provided with 1MiB bytes of zeros.
func zeroStartEnd(fp io.WriteSeeker, start int64, last int64) error {
	if last <= start {
		return fmt.Errorf("last %d < start %d", last, start)
	}

	wlen := int64(mdprov.Mebibyte)
	bufZero := make([]byte, wlen)

	// 3 cases.
	// a.) start + wlen < last - wlen (two full writes)
	// b.) start + wlen >= last (one possibly short write)
	// c.) start + wlen >= last - wlen (overlapping zero ranges)
	type ws struct{ start, size int64 }
	var writes = []ws{{start, wlen}, {last - wlen, wlen}}
	var wnum int
	var err error

	if start+wlen >= last {
		writes = []ws{{start, last - start}}
	} else if start+wlen >= last-wlen {
		writes = []ws{{start, wlen}, {start + wlen, last - (start + wlen)}}
	}

	for _, w := range writes {
		if _, err = fp.Seek(w.start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to %d to write %v", w.start, w)
		}

		wnum, err = fp.Write(bufZero[:w.size])
		if err != nil {
			return fmt.Errorf("failed to write %v", w)
		}

		if int64(wnum) != w.size {
			return fmt.Errorf("wrote only %d bytes of %v", wnum, w)
		}
	}

	return nil
}

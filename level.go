package mdprov

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RaidLevel is an md redundancy level. Only the levels the provisioner
// knows how to lay out are representable.
type RaidLevel int

const (
	// Raid0 - striping, no redundancy.
	Raid0 RaidLevel = 0

	// Raid1 - mirroring.
	Raid1 RaidLevel = 1

	// Raid5 - striping with single parity.
	Raid5 RaidLevel = 5

	// Raid6 - striping with double parity.
	Raid6 RaidLevel = 6

	// Raid10 - striped mirrors.
	Raid10 RaidLevel = 10
)

//nolint:gochecknoglobals
var raidLevelMinDevices = map[RaidLevel]int{
	Raid0:  2,
	Raid1:  2,
	Raid5:  3,
	Raid6:  4,
	Raid10: 4,
}

// Levels returns the supported raid levels in ascending order.
func Levels() []RaidLevel {
	return []RaidLevel{Raid0, Raid1, Raid5, Raid6, Raid10}
}

// ParseRaidLevel converts the operator's input ("0", "1", "5", "6", "10",
// optionally prefixed with "raid") into a RaidLevel.
func ParseRaidLevel(s string) (RaidLevel, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "raid")

	num, err := strconv.Atoi(s)
	if err != nil {
		return Raid0, fmt.Errorf("invalid raid level '%s'", s)
	}

	level := RaidLevel(num)
	if _, ok := raidLevelMinDevices[level]; !ok {
		return Raid0, fmt.Errorf("unsupported raid level %d", num)
	}

	return level, nil
}

// MinDevices returns the minimum member count for this level.
func (l RaidLevel) MinDevices() int {
	return raidLevelMinDevices[l]
}

// Num returns the bare level number as mdadm's --level wants it.
func (l RaidLevel) Num() string {
	return strconv.Itoa(int(l))
}

func (l RaidLevel) String() string {
	return "raid" + l.Num()
}

// MarshalJSON for string output rather than int.
func (l RaidLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts both the "raid5" string form and the bare number.
func (l *RaidLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}

	parsed, err := ParseRaidLevel(s)
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

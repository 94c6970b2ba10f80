package main

import (
	"github.com/urfave/cli/v2"

	"machinerun.io/mdprov/linux"
)

//nolint:gochecknoglobals
var inspectCommand = cli.Command{
	Name:   "inspect",
	Usage:  "list whole-disk block devices with their safety flags",
	Action: doInspect,
}

func doInspect(c *cli.Context) error {
	sys := linux.System()

	disks, err := sys.ScanDisks()
	if err != nil {
		return err
	}

	details := disks.Details()
	rows := [][]string{append(details[0], "IN-USE")}

	for _, row := range details[1:] {
		inUse := "?"
		if rep, err := sys.Inspect(row[0]); err == nil {
			inUse = rep.String()
		}

		rows = append(rows, append(row, inUse))
	}

	printTextTable(rows)

	return nil
}

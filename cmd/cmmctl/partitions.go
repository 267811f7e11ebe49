package main

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/axsys-go/cmm/cmm"
	"github.com/axsys-go/cmm/driver"
)

// partitionsCommand lists the platform's physical partitions
type partitionsCommand struct {
	cfg *globalConfig
}

func (cmd *partitionsCommand) run(_ *kingpin.ParseContext) error {
	s, err := cmd.cfg.open()
	if err != nil {
		exitWithErr(fmt.Errorf("failed to open platform: %w", err))
	}
	defer func() { _ = s.Close() }()

	parts, err := s.allocator.QueryPartitions()
	if err != nil {
		exitWithErr(err)
	}

	_, found, err := s.allocator.FindAnonymous()
	if err != nil {
		exitWithErr(err)
	}
	if !found {
		color.New(color.FgYellow).Printf("no %q partition: allocations will fail on most platforms\n", cmm.AnonymousPartition)
	}

	printPartitions(parts)
	return nil
}

func printPartitions(parts []driver.Partition) {
	bold := color.New(color.Bold)
	bold.Printf("Partitions (%d):\n", len(parts))

	highlight := color.New(color.FgGreen)
	for _, part := range parts {
		size := uint64(part.SizeKB) * 1024
		line := fmt.Sprintf(
			"\t%s: 0x%x - 0x%x (%v)\n",
			part.Name,
			part.Phys,
			part.Phys+size,
			humanize.IBytes(size),
		)
		if part.Name == cmm.AnonymousPartition {
			highlight.Print(line)
		} else {
			fmt.Print(line)
		}
	}
}

func addPartitionsCommand(app *kingpin.Application, cfg *globalConfig) {
	cmd := &partitionsCommand{cfg: cfg}
	app.Command("partitions", "List the platform's physical partitions.").Action(cmd.run)
}

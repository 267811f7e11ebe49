package main

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// statusCommand prints the platform's usage report
type statusCommand struct {
	cfg *globalConfig
}

func (cmd *statusCommand) run(_ *kingpin.ParseContext) error {
	s, err := cmd.cfg.open()
	if err != nil {
		exitWithErr(fmt.Errorf("failed to open platform: %w", err))
	}
	defer func() { _ = s.Close() }()

	status, err := s.allocator.QueryStatus()
	if err != nil {
		exitWithErr(err)
	}

	bold := color.New(color.Bold)
	bold.Printf("Platform %s:\n", cmd.cfg.platform)
	fmt.Printf(
		"\ttotal: %v, remaining: %v, used: %v, blocks: %d\n",
		humanize.IBytes(status.TotalBytes),
		humanize.IBytes(status.RemainBytes),
		humanize.IBytes(status.TotalBytes-status.RemainBytes),
		status.BlockCount,
	)
	printPartitions(status.Partitions)
	return nil
}

func addStatusCommand(app *kingpin.Application, cfg *globalConfig) {
	cmd := &statusCommand{cfg: cfg}
	app.Command("status", "Print the platform's memory usage.").Action(cmd.run)
}

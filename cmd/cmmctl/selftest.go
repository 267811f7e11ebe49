package main

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/axsys-go/cmm/cmm"
)

// selftestCommand allocates a block and checks that cached and non-cached views of it stay
// coherent across flush and invalidate
type selftestCommand struct {
	cfg *globalConfig

	size    byteSizeValue
	stats   bool
	dump    bool
	metrics bool
}

type selftest struct {
	allocator *cmm.Allocator
	size      int

	source *cmm.Buffer
	target *cmm.Buffer
	views  []*cmm.View

	cpu    *cmm.View
	device *cmm.View
}

func (t *selftest) track(view *cmm.View, err error) (*cmm.View, error) {
	if err == nil {
		t.views = append(t.views, view)
	}
	return view, err
}

func (t *selftest) allocate() error {
	t.source = t.allocator.NewBuffer()
	cpu, err := t.track(t.source.Allocate(t.size, cmm.CacheModeCached, "cmmctl-selftest"))
	if err != nil {
		return err
	}
	t.cpu = cpu

	t.device, err = t.track(t.source.MapView(0, t.size, cmm.CacheModeNonCached))
	return err
}

func (t *selftest) flush() error {
	data := t.cpu.Data()
	for i := range data {
		data[i] = byte(i) ^ 0xA5
	}

	err := t.cpu.Flush(0, cmm.ToEnd)
	if err != nil {
		return err
	}

	if !bytes.Equal(t.cpu.Data(), t.device.Data()) {
		return fmt.Errorf("the non-cached view does not see the flushed data")
	}
	return nil
}

func (t *selftest) invalidate() error {
	data := t.device.Data()
	for i := range data {
		data[i] = ^data[i]
	}

	err := t.cpu.Invalidate(0, cmm.ToEnd)
	if err != nil {
		return err
	}

	if !bytes.Equal(t.cpu.Data(), t.device.Data()) {
		return fmt.Errorf("the cached view does not see the device's writes after invalidate")
	}
	return nil
}

func (t *selftest) partialFlush() error {
	half := t.size / 2

	data := t.cpu.Data()
	for i := range data {
		data[i] = byte(i) ^ 0x3C
	}
	err := t.cpu.Flush(half, t.size-half)
	if err != nil {
		return err
	}

	t.target = t.allocator.NewBuffer()
	dst, err := t.track(t.target.Allocate(t.size, cmm.CacheModeNonCached, "cmmctl-selftest-copy"))
	if err != nil {
		return err
	}
	copy(dst.Data(), t.device.Data())

	if !bytes.Equal(t.cpu.Data()[half:], dst.Data()[half:]) {
		return fmt.Errorf("the flushed half did not reach the copy")
	}
	return nil
}

func (t *selftest) verify() error {
	err := t.source.Verify()
	if err != nil {
		return err
	}
	return t.target.Verify()
}

func (t *selftest) release() error {
	var errs []string
	for i := len(t.views) - 1; i >= 0; i-- {
		if err := t.views[i].Reset(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for _, buffer := range []*cmm.Buffer{t.target, t.source} {
		if buffer == nil || buffer.State() == cmm.BufferIdle {
			continue
		}
		if err := buffer.Free(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (cmd *selftestCommand) run(_ *kingpin.ParseContext) error {
	size := cmd.size.ByteSize.Bytes()
	if size == 0 || size > uint64(cmm.MaxSize) || size > math.MaxInt {
		exitWithErr(fmt.Errorf("selftest size %s is out of range", cmd.size.String()))
	}

	s, err := cmd.cfg.open()
	if err != nil {
		exitWithErr(fmt.Errorf("failed to open platform: %w", err))
	}
	defer func() { _ = s.Close() }()

	test := &selftest{allocator: s.allocator, size: int(size)}

	bold := color.New(color.Bold)
	bold.Printf("Selftest with %v blocks:\n", humanize.IBytes(size))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"allocate", test.allocate},
		{"flush", test.flush},
		{"invalidate", test.invalidate},
		{"partial flush", test.partialFlush},
		{"verify", test.verify},
	}

	failed := false
	for _, step := range steps {
		err := step.fn()
		report(step.name, err)
		if err != nil {
			failed = true
			break
		}
	}

	if cmd.dump && test.source != nil {
		bold.Println("Source buffer:")
		fmt.Println(test.source.Dump(0))
		if test.cpu != nil {
			bold.Println("Cached view:")
			fmt.Println(test.cpu.Dump(0))
		}
	}
	if cmd.stats {
		bold.Println("Allocator:")
		fmt.Println(s.allocator.BuildStatsString(true))
	}
	if cmd.metrics {
		err = printMetrics(s.allocator)
		if err != nil {
			exitWithErr(err)
		}
	}

	err = test.release()
	report("release", err)
	if failed || err != nil {
		exitWithErr(fmt.Errorf("selftest failed"))
	}
	return nil
}

func report(name string, err error) {
	if err != nil {
		color.New(color.FgRed).Printf("\t%-14s FAIL %v\n", name, err)
		return
	}
	color.New(color.FgGreen).Printf("\t%-14s ok\n", name)
}

func printMetrics(allocator *cmm.Allocator) error {
	registry := prometheus.NewRegistry()
	err := registry.Register(cmm.NewCollector(allocator))
	if err != nil {
		return err
	}

	families, err := registry.Gather()
	if err != nil {
		return err
	}

	color.New(color.Bold).Println("Metrics:")
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}
			sort.Strings(labels)

			value := metric.GetGauge().GetValue()
			if metric.GetCounter() != nil {
				value = metric.GetCounter().GetValue()
			}
			fmt.Printf("\t%s{%s} %v\n", family.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}

func addSelftestCommand(app *kingpin.Application, cfg *globalConfig) {
	cmd := &selftestCommand{cfg: cfg}
	selftest := app.Command("selftest", "Check cache coherency between cached and non-cached views.").Action(cmd.run)
	selftest.Flag("size", "Size of the blocks to test with.").Default("4MB").SetValue(&cmd.size)
	selftest.Flag("stats", "Print the allocator's statistics before releasing the blocks.").BoolVar(&cmd.stats)
	selftest.Flag("dump", "Print the source buffer and its cached view before releasing the blocks.").BoolVar(&cmd.dump)
	selftest.Flag("metrics", "Print the allocator's Prometheus metrics before releasing the blocks.").BoolVar(&cmd.metrics)
}

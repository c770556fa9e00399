package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/KevoDB/filestats/pkg/filestats"
	"github.com/KevoDB/filestats/pkg/snapshot"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".list"),
	readline.PcItem(".snapshots"),
	readline.PcItem("ENABLE"),
	readline.PcItem("DISABLE"),
	readline.PcItem("REMOVE"),
	readline.PcItem("RESIZE"),
	readline.PcItem("READ",
		readline.PcItem("COLD"),
		readline.PcItem("AHEAD"),
		readline.PcItem("CACHED"),
	),
	readline.PcItem("WRITE"),
	readline.PcItem("PAGE",
		readline.PcItem("ACCESS"),
		readline.PcItem("LOAD"),
	),
	readline.PcItem("EXPORT"),
	readline.PcItem("HOT"),
	readline.PcItem("SAVE"),
)

const helpText = `
fstat - per-file I/O heat maps.

Usage:
  fstat [options]         - Start the interactive shell

Options:
  -config string          - Configuration file (.json or .yaml)
  -server                 - Run in server mode, exposing a gRPC API
  -address string         - Address to listen on in server mode

Commands (interactive mode only):
  .help                   - Show this help message
  .exit                   - Exit the program
  .stats                  - Show registry statistics
  .list                   - List tracked files
  .snapshots              - List saved snapshots

  ENABLE name             - Start collecting statistics for a file
  DISABLE name            - Pause collecting for a file
  REMOVE name             - Stop tracking a file
  RESIZE name size        - Tell the collector the file is size bytes long

  READ name off len [COLD|AHEAD|CACHED]
                          - Record a read (default COLD)
  WRITE name off len      - Record a write
  PAGE name off len [ACCESS|LOAD]
                          - Record a page event (default ACCESS)
                          - Sizes accept units, e.g. 4KiB or 1MB

  EXPORT name             - Show the export of a file
  HOT name kind level     - List blocks whose kind level is at least level
                          - kind is one of file_write, file_read_cold,
                            file_read_ahead, file_read_cached, page_access,
                            page_load
  SAVE name               - Write a snapshot of a file
`

// shell executes interactive commands against a registry.
type shell struct {
	registry *filestats.Registry
	exporter *snapshot.Exporter
	store    *snapshot.Store
	out      io.Writer
}

var errUsage = errors.New("wrong number of arguments")

// execute runs one command line and reports whether the shell should exit.
func (s *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd := strings.ToUpper(parts[0])
	if strings.HasPrefix(cmd, ".") {
		cmd = strings.ToLower(cmd)
	}

	var err error
	switch cmd {
	case ".help":
		fmt.Fprint(s.out, helpText)
	case ".exit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	case ".stats":
		s.printStats()
	case ".list":
		s.printList()
	case ".snapshots":
		err = s.printSnapshots()
	case "ENABLE":
		err = s.enable(parts[1:])
	case "DISABLE":
		err = s.disable(parts[1:])
	case "REMOVE":
		err = s.remove(parts[1:])
	case "RESIZE":
		err = s.resize(parts[1:])
	case "READ":
		err = s.record(parts[1:], filestats.FileReadCold, map[string]filestats.EventKind{
			"COLD":   filestats.FileReadCold,
			"AHEAD":  filestats.FileReadAhead,
			"CACHED": filestats.FileReadCached,
		})
	case "WRITE":
		err = s.record(parts[1:], filestats.FileWrite, nil)
	case "PAGE":
		err = s.record(parts[1:], filestats.PageAccess, map[string]filestats.EventKind{
			"ACCESS": filestats.PageAccess,
			"LOAD":   filestats.PageLoad,
		})
	case "EXPORT":
		err = s.export(parts[1:])
	case "HOT":
		err = s.hot(parts[1:])
	case "SAVE":
		err = s.save(parts[1:])
	default:
		err = fmt.Errorf("unknown command %q, enter .help for usage hints", parts[0])
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *shell) collector(name string) (*filestats.Collector, error) {
	c, ok := s.registry.FindCollector(name)
	if !ok {
		return nil, fmt.Errorf("%s is not tracked, use ENABLE first", name)
	}
	return c, nil
}

func (s *shell) enable(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	s.registry.EnableCollector(args[0], true)
	fmt.Fprintf(s.out, "Collecting statistics for %s\n", args[0])
	return nil
}

func (s *shell) disable(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if s.registry.EnableCollector(args[0], false) == nil {
		return fmt.Errorf("%s is not tracked", args[0])
	}
	fmt.Fprintf(s.out, "Paused statistics for %s\n", args[0])
	return nil
}

func (s *shell) remove(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if !s.registry.RemoveCollector(args[0]) {
		return fmt.Errorf("%s is not tracked", args[0])
	}
	fmt.Fprintf(s.out, "Removed %s\n", args[0])
	return nil
}

func (s *shell) resize(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	c, err := s.collector(args[0])
	if err != nil {
		return err
	}
	size, err := humanize.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[1], err)
	}

	c.Resize(size)
	fmt.Fprintf(s.out, "%s: %d blocks of %s\n", args[0], c.BlockCount(), humanize.IBytes(c.BlockSize()))
	return nil
}

func (s *shell) record(args []string, kind filestats.EventKind, kinds map[string]filestats.EventKind) error {
	if len(args) < 3 || len(args) > 4 || (len(args) == 4 && kinds == nil) {
		return errUsage
	}
	if len(args) == 4 {
		k, ok := kinds[strings.ToUpper(args[3])]
		if !ok {
			return fmt.Errorf("unknown event %q", args[3])
		}
		kind = k
	}

	c, err := s.collector(args[0])
	if err != nil {
		return err
	}
	offset, err := humanize.ParseBytes(args[1])
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[1], err)
	}
	length, err := humanize.ParseBytes(args[2])
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", args[2], err)
	}
	if !c.Active() {
		fmt.Fprintf(s.out, "Note: %s is paused, event ignored\n", args[0])
		return nil
	}

	c.Record(kind, offset, length)
	fmt.Fprintf(s.out, "Recorded %s of %s at offset %d\n", kind, humanize.IBytes(length), offset)
	return nil
}

func (s *shell) decoded(name string) (*filestats.ExportedStatistics, error) {
	buf, ok, err := s.registry.ExportStatistics(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not tracked", name)
	}
	defer s.registry.ReleaseExport(buf)
	return filestats.DecodeExport(buf)
}

func (s *shell) export(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	es, err := s.decoded(args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Event\tBytes\n")
	for _, kind := range filestats.EventKinds() {
		fmt.Fprintf(tw, "%s\t%s\n", kind, humanize.IBytes(es.Totals.Get(kind)))
	}
	tw.Flush()

	fmt.Fprintf(s.out, "\nBlock size %s, %d blocks\n", humanize.IBytes(uint64(es.BlockSize)), len(es.Blocks))

	tw = tabwriter.NewWriter(s.out, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "block\tW\tRC\tRA\tRH\tPA\tPL\t\n")
	for i, l := range es.Blocks {
		if l == (filestats.BlockLevels{}) {
			continue
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n", i,
			l.Level(filestats.FileWrite), l.Level(filestats.FileReadCold),
			l.Level(filestats.FileReadAhead), l.Level(filestats.FileReadCached),
			l.Level(filestats.PageAccess), l.Level(filestats.PageLoad))
	}
	return tw.Flush()
}

func (s *shell) hot(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	kind, err := filestats.ParseEventKind(args[1])
	if err != nil {
		return err
	}
	level, err := strconv.ParseUint(args[2], 10, 8)
	if err != nil || level > filestats.MaxNibbleLevel {
		return fmt.Errorf("level must be between 0 and %d", filestats.MaxNibbleLevel)
	}

	es, err := s.decoded(args[0])
	if err != nil {
		return err
	}

	hot := es.HotBlocks(kind, uint8(level))
	fmt.Fprintf(s.out, "%d blocks with at least %s %s events\n",
		len(hot), humanize.Comma(int64(filestats.NibbleThreshold(uint8(level)))), kind)
	for _, i := range hot {
		start := uint64(i) * uint64(es.BlockSize)
		fmt.Fprintf(s.out, "  block %d at %s (level %d)\n", i, humanize.IBytes(start), es.Blocks[i].Level(kind))
	}
	return nil
}

func (s *shell) save(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if s.exporter == nil {
		return errors.New("no snapshot directory configured")
	}

	path, ok, err := s.exporter.Save(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not tracked", args[0])
	}
	fmt.Fprintf(s.out, "Saved snapshot to %s\n", path)
	return nil
}

func (s *shell) printList() {
	names := s.registry.Names()
	if len(names) == 0 {
		fmt.Fprintln(s.out, "No tracked files")
		return
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\tState\tBlocks\tBlock size\n")
	for _, name := range names {
		c, ok := s.registry.FindCollector(name)
		if !ok {
			continue
		}
		state := "active"
		if !c.Active() {
			state = "paused"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, state, c.BlockCount(), humanize.IBytes(c.BlockSize()))
	}
	tw.Flush()
}

func (s *shell) printStats() {
	stats := s.registry.GetStats()

	getUint64 := func(key string) uint64 {
		switch v := stats[key].(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		}
		return 0
	}

	fmt.Fprintln(s.out, "Operations:")
	for _, op := range []string{"enable", "disable", "find", "tracks", "export", "remove", "save"} {
		ops, misses := getUint64(op+"_ops"), getUint64(op+"_misses")
		if ops == 0 && misses == 0 {
			continue
		}
		fmt.Fprintf(s.out, "  %-8s %d (not tracked: %d)\n", op, ops, misses)
	}

	fmt.Fprintln(s.out, "\nExports:")
	fmt.Fprintf(s.out, "  Tracked files: %d\n", getUint64("tracked_files"))
	fmt.Fprintf(s.out, "  Exported: %s\n", humanize.IBytes(getUint64("exported_bytes")))
	if latency, ok := stats["export_latency"].(map[string]interface{}); ok {
		if avgNs, ok := latency["avg_ns"].(uint64); ok {
			fmt.Fprintf(s.out, "  Export avg: %s\n", time.Duration(avgNs))
		}
	}

	if errs, ok := stats["errors"].(map[string]uint64); ok && len(errs) > 0 {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(s.out, "\nErrors:")
		for _, k := range keys {
			fmt.Fprintf(s.out, "  %s: %d\n", k, errs[k])
		}
	}
}

func (s *shell) printSnapshots() error {
	if s.store == nil {
		return errors.New("no snapshot directory configured")
	}

	entries, err := s.store.All()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No snapshots")
		return nil
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\tTaken\tSize\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, humanize.Time(e.Timestamp), humanize.IBytes(uint64(e.Size)))
	}
	return tw.Flush()
}

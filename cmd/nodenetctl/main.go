package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/pkg/micropsi"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "import":
		return runImport(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "list":
		return runList(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "clone":
		return runClone(ctx, args[1:])
	case "monitors":
		return runMonitors(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "worlds":
		return runWorlds(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, cfg, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "initialized store=%s\n", cfg.Store)
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	file := fs.String("file", "", "net definition (.yaml, .yml or .json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("import requires --file")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.ImportFile(ctx, *file)
	if err != nil {
		return err
	}
	printImport("imported", summary)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "uid of a stored net")
	netFile := fs.String("net-file", "", "import this net definition first and run it")
	steps := fs.Int("steps", 0, "stop after this many steps")
	duration := fs.Duration("duration", 0, "stop after this wall-clock duration")
	monitorUID := fs.String("monitor", "", "stop once this monitor reaches --monitor-value")
	monitorValue := fs.Float64("monitor-value", 0, "threshold for --monitor")
	below := fs.Bool("below", false, "stop when the monitor falls to --monitor-value instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*netUID == "") == (*netFile == "") {
		return errors.New("run requires exactly one of --net or --net-file")
	}
	if *steps < 0 {
		return errors.New("steps must be >= 0")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	uid := *netUID
	if *netFile != "" {
		imported, err := client.ImportFile(ctx, *netFile)
		if err != nil {
			return err
		}
		printImport("imported", imported)
		uid = imported.UID
	}

	summary, err := client.Run(ctx, micropsi.RunRequest{
		NetUID:       uid,
		Steps:        *steps,
		Duration:     *duration,
		MonitorUID:   *monitorUID,
		MonitorValue: *monitorValue,
		MonitorBelow: *below,
	})
	if summary.NetUID != "" {
		fmt.Fprintf(stdout, "run net=%s name=%s from_step=%d to_step=%d condition=%q artifacts=%s\n",
			summary.NetUID,
			summary.Name,
			summary.StartStep,
			summary.EndStep,
			summary.Condition,
			summary.ArtifactsDir,
		)
	}
	return err
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "emit nets as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	nets, err := client.Nets(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stdout, nets)
	}
	if len(nets) == 0 {
		fmt.Fprintln(stdout, "no nets found")
		return nil
	}
	for _, n := range nets {
		fmt.Fprintf(stdout, "net=%s name=%s step=%d nodes=%d links=%d\n", n.UID, n.Name, n.Step, n.Nodes, n.Links)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stdout, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, e := range entries {
		outcome := "ok"
		if e.Error != "" {
			outcome = e.Error
		}
		fmt.Fprintf(stdout, "net=%s name=%s created_at=%s from_step=%d to_step=%d condition=%q outcome=%q\n",
			e.NetUID, e.Name, e.CreatedAtUTC, e.StartStep, e.EndStep, e.Condition, outcome)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "net uid")
	out := fs.String("out", "", "output file; stdout when empty")
	format := fs.String("format", "", "json|yaml; derived from --out when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("export requires --net")
	}
	outFormat, err := exportFormat(*format, *out)
	if err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	record, err := client.Export(ctx, *netUID)
	if err != nil {
		return err
	}

	var data []byte
	switch outFormat {
	case "yaml":
		data, err = yaml.Marshal(record)
	default:
		data, err = json.MarshalIndent(record, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported net=%s to=%s\n", *netUID, filepath.Clean(*out))
	return nil
}

func exportFormat(format, out string) (string, error) {
	switch strings.ToLower(format) {
	case "json", "yaml":
		return strings.ToLower(format), nil
	case "yml":
		return "yaml", nil
	case "":
		switch strings.ToLower(filepath.Ext(out)) {
		case ".yaml", ".yml":
			return "yaml", nil
		default:
			return "json", nil
		}
	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func runClone(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clone", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "uid of the template net")
	name := fs.String("name", "", "name of the copy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("clone requires --net")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Clone(ctx, *netUID, *name)
	if err != nil {
		return err
	}
	printImport("cloned", summary)
	return nil
}

func runMonitors(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("monitors", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "net uid")
	from := fs.Int("from", 0, "first step to show")
	count := fs.Int("count", -1, "number of steps to show; negative shows all")
	jsonOut := fs.Bool("json", false, "emit monitor data as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("monitors requires --net")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	series, err := client.MonitorData(ctx, micropsi.MonitorRequest{NetUID: *netUID, From: *from, Count: *count})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stdout, series)
	}
	if len(series) == 0 {
		fmt.Fprintln(stdout, "no monitors found")
		return nil
	}
	for _, m := range series {
		fmt.Fprintf(stdout, "monitor=%s name=%q kind=%s values=%d\n", m.UID, m.Name, m.Kind, len(m.Values))
		steps := make([]int, 0, len(m.Values))
		for step := range m.Values {
			steps = append(steps, step)
		}
		sort.Ints(steps)
		for _, step := range steps {
			fmt.Fprintf(stdout, "  step=%d value=%.6f\n", step, m.Values[step])
		}
	}
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "net uid")
	level := fs.String("level", "debug", "minimum level: debug|info|warning|error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("status requires --net")
	}
	minLevel, err := statuslog.ParseLevel(*level)
	if err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	tree, err := client.StatusTree(ctx, *netUID, minLevel)
	if err != nil {
		return err
	}
	return writeJSON(stdout, tree)
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "net uid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("report requires --net")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	dir, err := client.WriteReport(ctx, *netUID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "report net=%s to=%s\n", *netUID, dir)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	netUID := fs.String("net", "", "net uid")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *netUID == "" {
		return errors.New("delete requires --net")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Delete(ctx, *netUID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted net=%s\n", *netUID)
	return nil
}

func runWorlds(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("worlds", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range micropsi.WorldAdapters() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func printImport(verb string, s micropsi.ImportSummary) {
	fmt.Fprintf(stdout, "%s net=%s name=%s step=%d nodes=%d links=%d\n", verb, s.UID, s.Name, s.Step, s.Nodes, s.Links)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: nodenetctl <init|import|run|list|runs|export|clone|monitors|status|report|delete|worlds> [flags]", msg)
}

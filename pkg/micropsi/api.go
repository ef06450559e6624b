// Package micropsi is the programmatic entry point to the node net
// simulator: it keeps nets in a store, runs them under a run condition,
// and writes their artifacts.
package micropsi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/nodenet"
	"github.com/joschabach/micropsi2-sub002/internal/report"
	"github.com/joschabach/micropsi2-sub002/internal/runner"
	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/internal/storage"
	"github.com/joschabach/micropsi2-sub002/internal/world"
)

const (
	defaultDBPath     = "micropsi.db"
	defaultReportsDir = "reports"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ReportsDir   string
	Workers      int
	StepInterval time.Duration
	Logger       *slog.Logger
}

type Client struct {
	store      storage.Store
	runtime    *runner.Runtime
	reportsDir string
	log        *slog.Logger

	mu          sync.Mutex
	initialized bool
}

type ImportSummary struct {
	UID   string
	Name  string
	Step  int
	Nodes int
	Links int
}

type RunRequest struct {
	NetUID   string
	Steps    int
	Duration time.Duration
	// MonitorUID, when set, stops the run once the monitor reaches
	// MonitorValue (or falls to it with MonitorBelow).
	MonitorUID   string
	MonitorValue float64
	MonitorBelow bool
}

type RunSummary struct {
	NetUID       string
	Name         string
	StartStep    int
	EndStep      int
	Condition    string
	ArtifactsDir string
}

type MonitorRequest struct {
	NetUID string
	From   int
	// Count < 0 returns every step up to the current one.
	Count int
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	reportsDir := opts.ReportsDir
	if reportsDir == "" {
		reportsDir = defaultReportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store: store,
		runtime: runner.NewRuntime(runner.Config{
			Store:        store,
			Workers:      opts.Workers,
			StepInterval: opts.StepInterval,
			Logger:       logger,
		}),
		reportsDir: reportsDir,
		log:        logger.With("component", "client"),
	}, nil
}

func (c *Client) Close() error {
	_ = c.runtime.Close()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureInit(ctx)
}

// Import validates the record by building a net from it and stores the
// result. Records without versions are stamped with the current ones; a
// record without uid gets a fresh one.
func (c *Client) Import(ctx context.Context, record model.NetRecord) (ImportSummary, error) {
	if err := c.ensureInit(ctx); err != nil {
		return ImportSummary{}, err
	}
	if record.SchemaVersion == 0 && record.CodecVersion == 0 {
		record.VersionedRecord = model.CurrentVersion()
	}
	if record.SchemaVersion != model.SchemaVersion || record.CodecVersion != model.CodecVersion {
		return ImportSummary{}, fmt.Errorf("%w: schema=%d codec=%d", storage.ErrVersionMismatch, record.SchemaVersion, record.CodecVersion)
	}

	n, err := c.runtime.Import(record, nodenet.Options{})
	if err != nil {
		return ImportSummary{}, err
	}
	if err := c.runtime.Save(ctx, n.UID()); err != nil {
		return ImportSummary{}, err
	}
	exported := n.Export()
	c.log.Info("net imported", "net", n.UID(), "nodes", len(exported.Nodes), "links", len(exported.Links))
	return ImportSummary{
		UID:   n.UID(),
		Name:  n.Name(),
		Step:  n.CurrentStep(),
		Nodes: len(exported.Nodes),
		Links: len(exported.Links),
	}, nil
}

// ImportFile reads a net definition. Files ending in .json are decoded as
// JSON, everything else as YAML.
func (c *Client) ImportFile(ctx context.Context, path string) (ImportSummary, error) {
	record, err := ReadNetFile(path)
	if err != nil {
		return ImportSummary{}, err
	}
	return c.Import(ctx, record)
}

func ReadNetFile(path string) (model.NetRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NetRecord{}, err
	}
	var record model.NetRecord
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &record); err != nil {
			return model.NetRecord{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return record, nil
	}
	if err := yaml.Unmarshal(data, &record); err != nil {
		return model.NetRecord{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return record, nil
}

// Run loads the net, runs it until the condition is met and stores it
// again together with its artifacts. A run without any condition is
// rejected since it would never end on its own.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.NetUID == "" {
		return RunSummary{}, errors.New("net uid is required")
	}
	cond := runner.Condition{Steps: req.Steps, Duration: req.Duration}
	if req.MonitorUID != "" {
		cond.Monitor = &runner.MonitorCondition{
			MonitorUID: req.MonitorUID,
			Value:      req.MonitorValue,
			Below:      req.MonitorBelow,
		}
	}
	if cond.IsZero() {
		return RunSummary{}, errors.New("run requires steps, duration or a monitor condition")
	}
	if err := c.ensureInit(ctx); err != nil {
		return RunSummary{}, err
	}

	n, err := c.runtime.Load(ctx, req.NetUID, nodenet.Options{})
	if err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{
		NetUID:    n.UID(),
		Name:      n.Name(),
		StartStep: n.CurrentStep(),
		Condition: cond.String(),
	}

	runErr := c.runtime.Run(ctx, n.UID(), cond)
	summary.EndStep = n.CurrentStep()

	if err := c.runtime.Save(ctx, n.UID()); err != nil {
		return summary, errors.Join(runErr, err)
	}
	dir, err := report.WriteNetArtifacts(c.reportsDir, report.Collect(n, summary.StartStep, -1, statuslog.LevelDebug))
	if err != nil {
		return summary, errors.Join(runErr, err)
	}
	summary.ArtifactsDir = filepath.Clean(dir)

	entry := report.RunIndexEntry{
		NetUID:       summary.NetUID,
		Name:         summary.Name,
		StartStep:    summary.StartStep,
		EndStep:      summary.EndStep,
		Condition:    summary.Condition,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := report.AppendRunIndex(c.reportsDir, entry); err != nil {
		return summary, errors.Join(runErr, err)
	}
	return summary, runErr
}

// Clone stores an independent copy of a net under a new uid.
func (c *Client) Clone(ctx context.Context, uid, name string) (ImportSummary, error) {
	if err := c.ensureInit(ctx); err != nil {
		return ImportSummary{}, err
	}
	if _, err := c.runtime.Load(ctx, uid, nodenet.Options{}); err != nil {
		return ImportSummary{}, err
	}
	clone, err := c.runtime.CloneNet(uid, name)
	if err != nil {
		return ImportSummary{}, err
	}
	if err := c.runtime.Save(ctx, clone.UID()); err != nil {
		return ImportSummary{}, err
	}
	exported := clone.Export()
	return ImportSummary{
		UID:   clone.UID(),
		Name:  clone.Name(),
		Step:  clone.CurrentStep(),
		Nodes: len(exported.Nodes),
		Links: len(exported.Links),
	}, nil
}

func (c *Client) Nets(ctx context.Context) ([]model.NetSummary, error) {
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}
	return c.store.ListNets(ctx)
}

// Runs lists recorded runs, most recent first.
func (c *Client) Runs(_ context.Context, limit int) ([]report.RunIndexEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := report.ListRunIndex(c.reportsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (c *Client) Export(ctx context.Context, uid string) (model.NetRecord, error) {
	if err := c.ensureInit(ctx); err != nil {
		return model.NetRecord{}, err
	}
	record, ok, err := c.store.GetNet(ctx, uid)
	if err != nil {
		return model.NetRecord{}, err
	}
	if !ok {
		return model.NetRecord{}, fmt.Errorf("%w: %s", runner.ErrNetNotFound, uid)
	}
	return record, nil
}

func (c *Client) MonitorData(ctx context.Context, req MonitorRequest) ([]report.MonitorSeries, error) {
	n, err := c.load(ctx, req.NetUID)
	if err != nil {
		return nil, err
	}
	return report.Collect(n, req.From, req.Count, statuslog.LevelDebug).Monitors, nil
}

func (c *Client) StatusTree(ctx context.Context, uid string, minLevel statuslog.Level) (map[string]statuslog.Entry, error) {
	n, err := c.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	return n.StatusLog().Tree(minLevel), nil
}

// WriteReport writes the artifacts of a stored net below the reports
// directory and returns where they went.
func (c *Client) WriteReport(ctx context.Context, uid string) (string, error) {
	n, err := c.load(ctx, uid)
	if err != nil {
		return "", err
	}
	dir, err := report.WriteNetArtifacts(c.reportsDir, report.Collect(n, 0, -1, statuslog.LevelDebug))
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}

func (c *Client) Delete(ctx context.Context, uid string) error {
	if err := c.ensureInit(ctx); err != nil {
		return err
	}
	if _, err := c.runtime.Net(uid); err == nil {
		return c.runtime.DeleteNet(ctx, uid)
	}
	if _, ok, err := c.store.GetNet(ctx, uid); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", runner.ErrNetNotFound, uid)
	}
	return c.store.DeleteNet(ctx, uid)
}

// WorldAdapters lists the world adapters nets can name.
func WorldAdapters() []string {
	return world.ListAdapters()
}

func (c *Client) load(ctx context.Context, uid string) (*nodenet.Net, error) {
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}
	return c.runtime.Load(ctx, uid, nodenet.Options{})
}

func (c *Client) ensureInit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

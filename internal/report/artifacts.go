// Package report writes run artifacts of a net to disk: the exported net,
// its status tree, and monitor series as JSON and CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/nodenet"
	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
)

const (
	runIndexFile    = "run_index.json"
	netFile         = "net.json"
	statusFile      = "status.json"
	monitorsFile    = "monitors.json"
	monitorsCSVFile = "monitors.csv"
)

type MonitorSeries struct {
	UID    string          `json:"uid"`
	Name   string          `json:"name"`
	Color  string          `json:"color,omitempty"`
	Kind   string          `json:"kind"`
	Values map[int]float64 `json:"values"`
}

type NetArtifacts struct {
	Net      model.NetRecord            `json:"net"`
	Status   map[string]statuslog.Entry `json:"status"`
	Monitors []MonitorSeries            `json:"monitors"`
}

type RunIndexEntry struct {
	NetUID       string `json:"net_uid"`
	Name         string `json:"name"`
	StartStep    int    `json:"start_step"`
	EndStep      int    `json:"end_step"`
	Condition    string `json:"condition,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// Collect gathers the artifacts of n. Monitor values are limited to the
// window starting at from; count < 0 keeps every step up to the current one.
func Collect(n *nodenet.Net, from, count int, minLevel statuslog.Level) NetArtifacts {
	exported := n.ExportMonitorData(from, count)
	uids := make([]string, 0, len(exported))
	for uid := range exported {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	series := make([]MonitorSeries, 0, len(uids))
	for _, uid := range uids {
		info := exported[uid]
		values := info.Values
		if values == nil {
			values = map[int]float64{}
		}
		series = append(series, MonitorSeries{
			UID:    info.UID,
			Name:   info.Name,
			Color:  info.Color,
			Kind:   string(info.Kind),
			Values: values,
		})
	}
	return NetArtifacts{
		Net:      n.Export(),
		Status:   n.StatusLog().Tree(minLevel),
		Monitors: series,
	}
}

// WriteNetArtifacts writes the artifacts below baseDir/<net uid> and
// returns that directory.
func WriteNetArtifacts(baseDir string, artifacts NetArtifacts) (string, error) {
	if artifacts.Net.UID == "" {
		return "", fmt.Errorf("net uid is required")
	}

	netDir := filepath.Join(baseDir, artifacts.Net.UID)
	if err := os.MkdirAll(netDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(netDir, netFile), artifacts.Net); err != nil {
		return "", err
	}
	status := artifacts.Status
	if status == nil {
		status = map[string]statuslog.Entry{}
	}
	if err := writeJSON(filepath.Join(netDir, statusFile), status); err != nil {
		return "", err
	}
	monitors := artifacts.Monitors
	if monitors == nil {
		monitors = []MonitorSeries{}
	}
	if err := writeJSON(filepath.Join(netDir, monitorsFile), monitors); err != nil {
		return "", err
	}
	if err := writeMonitorCSV(filepath.Join(netDir, monitorsCSVFile), monitors); err != nil {
		return "", err
	}
	return netDir, nil
}

// writeMonitorCSV writes one row per step and one column per monitor.
// Steps a monitor has no value for are left empty.
func writeMonitorCSV(path string, monitors []MonitorSeries) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]string, 0, len(monitors)+1)
	header = append(header, "step")
	stepSet := map[int]struct{}{}
	for _, m := range monitors {
		header = append(header, m.UID)
		for step := range m.Values {
			stepSet[step] = struct{}{}
		}
	}
	steps := make([]int, 0, len(stepSet))
	for step := range stepSet {
		steps = append(steps, step)
	}
	sort.Ints(steps)

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, step := range steps {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(step))
		for _, m := range monitors {
			v, ok := m.Values[step]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadMonitorCSV reads the series written for a net back, keyed by
// monitor uid.
func ReadMonitorCSV(baseDir, netUID string) (map[string]map[int]float64, bool, error) {
	path := filepath.Join(baseDir, netUID, monitorsCSVFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return map[string]map[int]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 1 || header[0] != "step" {
		return nil, false, fmt.Errorf("monitor series header must start with step")
	}

	out := make(map[string]map[int]float64, len(header)-1)
	for _, uid := range header[1:] {
		out[uid] = map[int]float64{}
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		step, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, fmt.Errorf("monitor series step: %w", err)
		}
		for i, cell := range record[1:] {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, false, err
			}
			out[header[i+1]][step] = v
		}
	}
	return out, true, nil
}

func ReadStatus(baseDir, netUID string) (map[string]statuslog.Entry, bool, error) {
	var status map[string]statuslog.Entry
	ok, err := readJSON(filepath.Join(baseDir, netUID, statusFile), &status)
	return status, ok, err
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.NetUID == "" {
		return fmt.Errorf("net uid is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	index = append(index, entry)
	sort.SliceStable(index, func(i, j int) bool {
		return index[i].CreatedAtUTC < index[j].CreatedAtUTC
	})
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns recorded runs, most recent first. Entries sharing a
// timestamp keep the later appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

package model

const (
	SchemaVersion = 1
	CodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version"`
	CodecVersion  int `json:"codec_version" yaml:"codec_version"`
}

// CurrentVersion stamps a record with the versions this build reads and writes.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: SchemaVersion, CodecVersion: CodecVersion}
}

type NetRecord struct {
	VersionedRecord `json:",inline" yaml:",inline"`
	UID             string                 `json:"uid" yaml:"uid"`
	Name            string                 `json:"name" yaml:"name"`
	Step            int                    `json:"step" yaml:"step"`
	WorldAdapter    string                 `json:"world_adapter,omitempty" yaml:"world_adapter,omitempty"`
	WorldConfig     map[string]string      `json:"world_config,omitempty" yaml:"world_config,omitempty"`
	Nodespaces      []NodespaceRecord      `json:"nodespaces" yaml:"nodespaces"`
	Nodes           []NodeRecord           `json:"nodes" yaml:"nodes"`
	Links           []LinkRecord           `json:"links" yaml:"links"`
	Modulators      map[string]float64     `json:"modulators,omitempty" yaml:"modulators,omitempty"`
	Monitors        []MonitorRecord        `json:"monitors,omitempty" yaml:"monitors,omitempty"`
	Status          map[string]StatusEntry `json:"status,omitempty" yaml:"status,omitempty"`
}

type NodespaceRecord struct {
	UID    string `json:"uid" yaml:"uid"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

type NodeRecord struct {
	UID        string                `json:"uid" yaml:"uid"`
	Name       string                `json:"name,omitempty" yaml:"name,omitempty"`
	Type       string                `json:"type" yaml:"type"`
	Nodespace  string                `json:"nodespace" yaml:"nodespace"`
	Parameters map[string]string     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Gates      map[string]GateRecord `json:"gates,omitempty" yaml:"gates,omitempty"`
	Slots      map[string]float64    `json:"slots,omitempty" yaml:"slots,omitempty"`
	State      map[string]float64    `json:"state,omitempty" yaml:"state,omitempty"`
}

// GateRecord fields left out of a net file keep the gate's type default.
type GateRecord struct {
	Activation    float64  `json:"activation" yaml:"activation"`
	Threshold     *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Amplification *float64 `json:"amplification,omitempty" yaml:"amplification,omitempty"`
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Spreading     string   `json:"spreading,omitempty" yaml:"spreading,omitempty"`
}

// Float returns a pointer to v for optional record fields.
func Float(v float64) *float64 {
	return &v
}

// LinkRecord carries weight and certainty verbatim; hand-written net files
// must spell both out since zero is a legal value for each.
type LinkRecord struct {
	SourceNode string  `json:"source_node" yaml:"source_node"`
	SourceGate string  `json:"source_gate" yaml:"source_gate"`
	TargetNode string  `json:"target_node" yaml:"target_node"`
	TargetSlot string  `json:"target_slot" yaml:"target_slot"`
	Weight     float64 `json:"weight" yaml:"weight"`
	Certainty  float64 `json:"certainty" yaml:"certainty"`
}

type MonitorRecord struct {
	UID        string          `json:"uid" yaml:"uid"`
	Name       string          `json:"name,omitempty" yaml:"name,omitempty"`
	Color      string          `json:"color,omitempty" yaml:"color,omitempty"`
	Kind       string          `json:"kind" yaml:"kind"`
	NodeUID    string          `json:"node_uid,omitempty" yaml:"node_uid,omitempty"`
	Target     string          `json:"target,omitempty" yaml:"target,omitempty"`
	SourceNode string          `json:"source_node,omitempty" yaml:"source_node,omitempty"`
	SourceGate string          `json:"source_gate,omitempty" yaml:"source_gate,omitempty"`
	TargetNode string          `json:"target_node,omitempty" yaml:"target_node,omitempty"`
	TargetSlot string          `json:"target_slot,omitempty" yaml:"target_slot,omitempty"`
	Property   string          `json:"property,omitempty" yaml:"property,omitempty"`
	Values     map[int]float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

type StatusEntry struct {
	Level    int                    `json:"level" yaml:"level"`
	State    string                 `json:"state,omitempty" yaml:"state,omitempty"`
	Message  string                 `json:"msg,omitempty" yaml:"msg,omitempty"`
	Progress []int                  `json:"progress,omitempty" yaml:"progress,omitempty"`
	Children map[string]StatusEntry `json:"children,omitempty" yaml:"children,omitempty"`
}

type NetSummary struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Step  int    `json:"step"`
	Nodes int    `json:"nodes"`
	Links int    `json:"links"`
}

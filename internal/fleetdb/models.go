// Package fleetdb implements the DB actor: a single goroutine owning one
// database connection plus the authoritative in-memory snapshot of
// per-node state and derived peer connections, emitting Events to
// subscribers on every mutation.
package fleetdb

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus enumerates the lifecycle states a node can report.
type NodeStatus string

const (
	StatusStarting NodeStatus = "Starting"
	StatusRun      NodeStatus = "Run"
	StatusStop     NodeStatus = "Stop"
	StatusUpdating NodeStatus = "Updating"
	StatusError    NodeStatus = "Error"
	StatusUFO      NodeStatus = "UFO"
)

// NodeVersion carries the three version facets the agent reports together.
type NodeVersion struct {
	Version        string `json:"version,omitempty"`
	CommitHash     string `json:"commitHash,omitempty"`
	BinaryChecksum string `json:"binaryChecksum,omitempty"`
}

// NameList is the whitelist/blacklist shape the agent reports: the entries
// plus whether the list is being enforced.
type NameList struct {
	List    []string `json:"list"`
	Enabled bool     `json:"enabled"`
}

// HardwareUsage is a single total/available/percentage-used measurement,
// reported by the agent with PercentageUsed precomputed as
// (total-available)/total when total>0, else 0.
type HardwareUsage struct {
	Total          int64   `json:"total"`
	Available      int64   `json:"available"`
	PercentageUsed float64 `json:"percentageUsed"`
}

// HardwareInfo is the per-node hardware sample reported by hardware_get.
type HardwareInfo struct {
	CPUUsage    []float64       `json:"cpuUsage"`
	DiskUsage   []HardwareUsage `json:"diskUsage"`
	MemoryUsage HardwareUsage   `json:"memoryUsage"`
}

// BlockID identifies a chain tip.
type BlockID struct {
	Number int64  `json:"number"`
	Hash   string `json:"hash"`
}

// ClientQueryResult is the in-memory mirror of one node's current state,
// held only inside the DB actor's goroutine.
type ClientQueryResult struct {
	Name           string
	Address        string
	Status         NodeStatus
	Version        NodeVersion
	Peers          []string
	Best           *BlockID
	PendingParcels []string
	Whitelist      NameList
	Blacklist      NameList
	Hardware       *HardwareInfo
	UpdatedAt      time.Time
}

// Clone returns a deep-enough copy for safe diffing (slices/pointers are
// never mutated in place after being stored).
func (c ClientQueryResult) Clone() ClientQueryResult {
	cp := c
	cp.Peers = append([]string(nil), c.Peers...)
	cp.PendingParcels = append([]string(nil), c.PendingParcels...)
	if c.Best != nil {
		b := *c.Best
		cp.Best = &b
	}
	if c.Hardware != nil {
		h := *c.Hardware
		cp.Hardware = &h
	}
	return cp
}

// ─── Persisted GORM models ───────────────────────────────────────────────

// NodeRecord is the durable row backing one ClientQueryResult. The
// in-memory snapshot serves all reads; this table is written on every
// client initialize/update and is not read back, neither by queries nor to
// rebuild the snapshot at startup.
type NodeRecord struct {
	Name               string `gorm:"primaryKey"`
	Address            string
	Status             string
	Version            string
	CommitHash         string
	BinaryChecksum     string
	PeersJSON          string `gorm:"column:peers_json"`
	BestNumber         int64
	BestHash           string
	PendingParcelsJSON string `gorm:"column:pending_parcels_json"`
	WhitelistJSON      string `gorm:"column:whitelist_json"`
	BlacklistJSON      string `gorm:"column:blacklist_json"`
	HardwareJSON       string `gorm:"column:hardware_json"`
	UpdatedAt          time.Time
}

func (NodeRecord) TableName() string { return "nodes" }

// NodeExtraRecord persists the last successful start invocation for replay
// on reconnect.
type NodeExtraRecord struct {
	Name      string `gorm:"primaryKey"`
	PrevEnv   string
	PrevArgs  string
	UpdatedAt time.Time
}

func (NodeExtraRecord) TableName() string { return "node_extras" }

// LogRecord is one persisted structured log line.
type LogRecord struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	Node      string    `gorm:"index"`
	Level     string    `gorm:"index"`
	Target    string    `gorm:"index"`
	Thread    string
	Message   string
	Timestamp time.Time `gorm:"index"`
}

func (LogRecord) TableName() string { return "logs" }

// NetworkUsageRecord is one raw sample; materialized views
// (network_usage_5min/_hourly/_daily) pre-aggregate over these for the
// graph RPCs.
type NetworkUsageRecord struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	Time      time.Time `gorm:"index"`
	Node      string    `gorm:"index"`
	Extension string
	TargetIP  string `gorm:"column:target_ip"`
	Bytes     int64
}

func (NetworkUsageRecord) TableName() string { return "network_usage" }

// PeerCountRecord is one peer-count sample per node per monitor tick.
type PeerCountRecord struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	Time      time.Time `gorm:"index"`
	Node      string    `gorm:"index"`
	PeerCount int
}

func (PeerCountRecord) TableName() string { return "peer_counts" }

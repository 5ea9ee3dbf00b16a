package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrNoProxy         = errors.New("no proxy available")
	ErrProxyFailure    = errors.New("proxy failure")
	ErrInternal        = errors.New("internal error")
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of scraping work keyed by the site item id.
// Invariants: status=processing implies worker_id and last_attempt_at set;
// attempts never exceeds max_attempts while pending.
type Task struct {
	ID            int64
	ItemID        int64
	Status        TaskStatus
	Attempts      int
	MaxAttempts   int
	WorkerID      *string
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	CompletedAt   *time.Time
}

type ProxyStatus string

const (
	ProxyAvailable ProxyStatus = "available"
	ProxyLocked    ProxyStatus = "locked"
	ProxyBlocked   ProxyStatus = "blocked"
)

// Proxy is a leasable upstream endpoint stored as "host:port:user:pass".
// Invariants: status=locked implies locked_by and locked_at set;
// status=blocked implies both cleared.
type Proxy struct {
	ID          int64
	Proxy       string
	Status      ProxyStatus
	LockedBy    *string
	LockedAt    *time.Time
	LastUsedAt  *time.Time
	UsesCount   int64
	BlocksCount int64
}

type WorkerStatus string

const (
	WorkerActive  WorkerStatus = "active"
	WorkerStopped WorkerStatus = "stopped"
)

// Worker is a heartbeat row, one per worker slot.
type Worker struct {
	WorkerID       string
	Status         WorkerStatus
	LastHeartbeat  time.Time
	StartedAt      time.Time
	TasksProcessed int64
	TasksFailed    int64
}

type ResultStatus string

const (
	ResultSuccess     ResultStatus = "success"
	ResultUnavailable ResultStatus = "unavailable"
)

// Result is the scraped listing payload, upserted by item id. Pointer
// fields are nullable columns; Price is a fixed-point decimal string
// with two fraction digits.
type Result struct {
	ItemID           int64
	Title            *string
	Description      *string
	Characteristics  map[string]string
	Price            *string
	PublishedAt      *string
	SellerName       *string
	SellerProfileURL *string
	LocationAddress  *string
	LocationMetro    *string
	LocationRegion   *string
	ViewsTotal       *int
	Status           ResultStatus
	FailureReason    *string
	WorkerID         string
	Attempts         int
}

// ProxyAddr is the parsed form of the stored proxy string.
type ProxyAddr struct {
	Host     string
	Port     int
	Username string
	Password string
}

// ParseProxyAddr splits "host:port:user:pass" into its parts. The
// password may be empty; host and a valid port may not.
func ParseProxyAddr(raw string) (ProxyAddr, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return ProxyAddr{}, fmt.Errorf("%w: proxy must be host:port:user:pass", ErrInvalidArgument)
	}
	if parts[0] == "" {
		return ProxyAddr{}, fmt.Errorf("%w: proxy host empty", ErrInvalidArgument)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return ProxyAddr{}, fmt.Errorf("%w: proxy port %q", ErrInvalidArgument, parts[1])
	}
	return ProxyAddr{Host: parts[0], Port: port, Username: parts[2], Password: parts[3]}, nil
}

// Server returns the proxy endpoint without credentials.
func (a ProxyAddr) Server() string {
	return "http://" + net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// SnapshotThresholds carries the staleness cutoffs shared by the
// janitor and the status report.
type SnapshotThresholds struct {
	TaskTimeout   time.Duration
	ProxyTimeout  time.Duration
	WorkerTimeout time.Duration
}

// FleetSnapshot is a point-in-time census of the fleet tables.
type FleetSnapshot struct {
	Tasks   TaskCounts
	Proxies ProxyCounts
	Workers WorkerCounts
	Results int64
	Health  HealthCounts
}

type TaskCounts struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

func (c TaskCounts) Total() int64 { return c.Pending + c.Processing + c.Completed + c.Failed }

type ProxyCounts struct {
	Available int64
	Locked    int64
	Blocked   int64
}

func (c ProxyCounts) Total() int64 { return c.Available + c.Locked + c.Blocked }

type WorkerCounts struct {
	Active  int64
	Stopped int64
}

func (c WorkerCounts) Total() int64 { return c.Active + c.Stopped }

// HealthCounts are rows past the janitor thresholds but not yet swept.
type HealthCounts struct {
	StuckTasks   int64
	StuckProxies int64
	DeadWorkers  int64
}

// Repositories (ports)

type TaskRepository interface {
	// Acquire leases the oldest pending task for workerID. Returns
	// (nil, nil) when no pending task exists.
	Acquire(ctx Context, workerID string) (*Task, error)
	MarkCompleted(ctx Context, taskID int64) error
	// Release returns a processing task to pending, or to failed once
	// attempts reached the per-task maximum.
	Release(ctx Context, taskID int64) error
	InsertItems(ctx Context, itemIDs []int64, maxAttempts int) error
	Count(ctx Context) (int64, error)
	DeleteAll(ctx Context) (int64, error)
}

type ProxyRepository interface {
	// Acquire leases the least-used available proxy for workerID.
	// Returns (nil, nil) when none is available.
	Acquire(ctx Context, workerID string) (*Proxy, error)
	// Release frees a locked proxy; a no-op for rows in any other state.
	Release(ctx Context, proxy string) error
	// MarkBlocked retires a proxy and clears its lease fields.
	MarkBlocked(ctx Context, proxy string) error
	Insert(ctx Context, proxies []string) error
	Count(ctx Context) (int64, error)
	DeleteAll(ctx Context) (int64, error)
}

type WorkerRepository interface {
	// Heartbeat upserts the worker row and stamps it active.
	Heartbeat(ctx Context, workerID string) error
	IncrementStats(ctx Context, workerID string, success bool) error
}

type ResultRepository interface {
	Upsert(ctx Context, r Result) error
	Count(ctx Context) (int64, error)
}

type StatusRepository interface {
	Snapshot(ctx Context, th SnapshotThresholds) (FleetSnapshot, error)
}

// Context aliases std context so domain signatures stay terse.
type Context = context.Context

package core

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// ScanStore persists completed scans. Rows are owned by a user; lookups and
// deletes are scoped to that owner.
type ScanStore interface {
	SaveScan(ctx context.Context, scan *types.ScanResult) error
	GetScan(ctx context.Context, userID, scanID string) (*types.ScanResult, error)
	ListScans(ctx context.Context, filter ScanFilter) ([]types.ScanRecord, error)
	DeleteScan(ctx context.Context, userID, scanID string) error
	RiskTrend(ctx context.Context, userID string, days int) ([]types.TrendPoint, error)
	Ping(ctx context.Context) error
	Close() error
}

type ScanFilter struct {
	UserID      string
	Domain      string
	ThreatLevel types.ThreatLevel
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}

type RateLimiter interface {
	WaitForHost(ctx context.Context, host string) error
}

type Telemetry interface {
	RecordScan(level types.ThreatLevel, duration float64, degraded bool)
	RecordDegraded(extractor string)
	RecordRulesTriggered(ids []string)
	Close() error
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/insights"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 365
)

type scanRequest struct {
	URL string `json:"url" binding:"required"`
}

type scanResponse struct {
	*types.ScanResult
	Formula string   `json:"risk_formula,omitempty"`
	Tips    []string `json:"educational_tips"`
}

// newScanResponse reports the breakdown recorded at scan time. History rows
// saved before breakdowns were stored have none.
func newScanResponse(res *types.ScanResult) scanResponse {
	resp := scanResponse{
		ScanResult: res,
		Tips:       insights.Tips(res.Insights),
	}
	if res.Breakdown.Level != "" {
		resp.Formula = res.Breakdown.Formula()
	}
	return resp
}

func (s *Server) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warnw("Invalid request body", "error", err, "ip", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: url is required"})
		return
	}

	res, err := s.scanner.Scan(c.Request.Context(), req.URL, c.GetString(userIDKey))
	if err != nil {
		if errors.Is(err, types.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.LogError(c.Request.Context(), err, "api.scan", "url", req.URL)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scan failed"})
		return
	}

	c.JSON(http.StatusOK, newScanResponse(res))
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scan history is not configured"})
		return false
	}
	return true
}

func (s *Server) listScans(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	filter, err := parseScanFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.store.ListScans(c.Request.Context(), filter)
	if err != nil {
		s.logger.LogError(c.Request.Context(), err, "api.listScans", "user_id", filter.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scans":  records,
		"count":  len(records),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func parseScanFilter(c *gin.Context) (core.ScanFilter, error) {
	filter := core.ScanFilter{
		UserID: c.GetString(userIDKey),
		Domain: c.Query("domain"),
		Limit:  50,
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("limit must be a positive integer")
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if v := c.Query("threat_level"); v != "" {
		level := types.ThreatLevel(v)
		switch level {
		case types.ThreatLevelSafe, types.ThreatLevelSuspicious, types.ThreatLevelHighRisk:
			filter.ThreatLevel = level
		default:
			return filter, fmt.Errorf("threat_level must be one of safe, suspicious, high_risk")
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.FromDate},
		{"to", &filter.ToDate},
	} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return filter, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", p.name)
		}
		*p.dst = &t
	}

	return filter, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (s *Server) getScan(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	res, err := s.store.GetScan(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.storeError(c, err, "api.getScan")
		return
	}
	c.JSON(http.StatusOK, newScanResponse(res))
}

func (s *Server) deleteScan(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	if err := s.store.DeleteScan(c.Request.Context(), c.GetString(userIDKey), c.Param("id")); err != nil {
		s.storeError(c, err, "api.deleteScan")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) storeError(c *gin.Context, err error, op string) {
	if errors.Is(err, types.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
		return
	}
	s.logger.LogError(c.Request.Context(), err, op, "scan_id", c.Param("id"))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "History lookup failed"})
}

func (s *Server) trend(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	days := defaultTrendDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTrendDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be between 1 and %d", maxTrendDays)})
			return
		}
		days = n
	}

	userID := c.GetString(userIDKey)
	points, err := s.store.RiskTrend(c.Request.Context(), userID, days)
	if err != nil {
		s.logger.LogError(c.Request.Context(), err, "api.trend", "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute trend"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":   days,
		"points": points,
	})
}

func (s *Server) listRules(c *gin.Context) {
	cat := s.scanner.Catalogue()
	caps := make(map[rules.Category]float64, len(cat.Caps))
	for k, v := range cat.Caps {
		caps[k] = v
	}

	c.JSON(http.StatusOK, gin.H{
		"catalogue_version": cat.Version,
		"category_caps":     caps,
		"rules":             cat.Describe(types.DefaultFeatureVector()),
		"policy":            s.scanner.Policy(),
	})
}

func (s *Server) health(c *gin.Context) {
	healthy := true
	checks := make(map[string]interface{})

	if s.store == nil {
		checks["database"] = gin.H{"status": "disabled"}
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			healthy = false
			checks["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			checks["database"] = gin.H{"status": "healthy"}
		}
	}

	checks["rules"] = gin.H{
		"status":  "healthy",
		"version": s.scanner.Catalogue().Version,
		"count":   len(s.scanner.Catalogue().Rules),
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"healthy":   healthy,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
		"version":   Version,
	})
}

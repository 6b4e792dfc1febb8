package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

// MaxAcquireWait caps the wait a client may request for an acquire.
const MaxAcquireWait = 5 * time.Minute

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// writeErr maps err onto a status code and a client-safe message.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	e := apperrors.FromSentinel(err)
	if e.Code == apperrors.CodeInternal {
		s.logger.Error("internal error", "error", err)
		e = apperrors.WrapInternal(err)
	}
	writeJSON(w, e.HTTPStatus(), errorResponse{Error: e.SafeMessage(), Code: e.Code})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Code: apperrors.CodeInvalidRequest})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.Status())
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.gw.SystemStats()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RegionResponse is the body of GET /api/regions/{region}.
type RegionResponse struct {
	Region string               `json:"region"`
	Stats  pool.Stats           `json:"stats"`
	Health manager.RegionHealth `json:"health"`
}

func (s *Server) handleAPIRegion(w http.ResponseWriter, r *http.Request) {
	region := r.PathValue("region")
	stats, health, err := s.gw.RegionStats(region)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegionResponse{Region: region, Stats: stats, Health: health})
}

// handleAPIHealth returns the system health, with 503 when unhealthy.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	h := s.gw.SystemHealth()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// AcquireRequest is the body of POST /api/leases.
type AcquireRequest struct {
	RequesterID     string `json:"requester_id"`
	Tier            string `json:"tier,omitempty"`
	PreferredRegion string `json:"preferred_region,omitempty"`
	// WaitMs bounds the whole acquire including failover. Zero leaves
	// only the pools' connection timeout.
	WaitMs int64 `json:"wait_ms,omitempty"`
}

func (s *Server) handleAPIAcquire(w http.ResponseWriter, r *http.Request) {
	var req AcquireRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	tier, err := pool.ParseTier(req.Tier)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if req.WaitMs < 0 {
		s.badRequest(w, "wait_ms must not be negative")
		return
	}

	ctx := r.Context()
	if req.WaitMs > 0 {
		wait := min(time.Duration(req.WaitMs)*time.Millisecond, MaxAcquireWait)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	lease, err := s.gw.Acquire(ctx, req.RequesterID, manager.Options{
		Tier:            tier,
		PreferredRegion: req.PreferredRegion,
	})
	if err != nil {
		if r.Context().Err() != nil {
			// client went away
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("waiting for a connection: %w", apperrors.ErrTimeout)
		}
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lease.Info())
}

func (s *Server) handleAPILease(w http.ResponseWriter, r *http.Request) {
	lease, ok := s.gw.Lease(r.PathValue("id"))
	if !ok {
		s.writeErr(w, manager.ErrLeaseNotFound)
		return
	}
	writeJSON(w, http.StatusOK, lease.Info())
}

func (s *Server) handleAPIRelease(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.ReleaseByID(r.PathValue("id")); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLiveness reports that the process is serving HTTP.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness reports ready while the gateway is running and at
// least one region is selectable.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	h := s.gw.SystemHealth()
	if !h.Running {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "gateway_not_running",
		})
		return
	}
	if !h.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "no_healthy_region",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

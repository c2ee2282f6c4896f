package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/storage"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runs, err := s.storage.ListRuns(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list runs", slog.Any("error", err))
		writeJSONError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.URL.Query().Get("run")
	if runID == "" {
		writeJSONError(w, "missing run parameter", http.StatusBadRequest)
		return
	}

	state, err := s.storage.GetState(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeJSONError(w, "run not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get state", slog.String("runID", runID), slog.Any("error", err))
		writeJSONError(w, "failed to get state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.URL.Query().Get("run")
	if runID == "" {
		writeJSONError(w, "missing run parameter", http.StatusBadRequest)
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	steps, err := s.storage.GetSteps(ctx, runID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get steps", slog.String("runID", runID), slog.Any("error", err))
		writeJSONError(w, "failed to get steps", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	// Closed ranges never change, so they can be cached for a day.
	today := time.Now().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}

	if err := json.NewEncoder(w).Encode(steps); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to last 24 hours if not specified
		end := time.Now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > 31*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 31 days")
	}

	return start, end, nil
}

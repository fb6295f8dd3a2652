package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/gdorker/internal/database"
	"github.com/nao1215/gdorker/internal/dispatch"
	gdlog "github.com/nao1215/gdorker/internal/log"
	"github.com/nao1215/gdorker/internal/model"
)

// ErrNoRun is returned when History is used before Begin or Resume.
var ErrNoRun = errors.New("history run not started")

// History records a run in the SQLite history database. Each query is
// stored as soon as it finishes; the run is marked complete by Finalize.
type History struct {
	db    *database.RunDB
	runID int64
}

// NewHistory creates a History over db.
func NewHistory(db *database.RunDB) *History {
	return &History{db: db}
}

// Begin creates a new run and returns its id.
func (h *History) Begin(ctx context.Context, startedAt time.Time, domain string, templateCount int) (int64, error) {
	id, err := h.db.CreateRun(ctx, startedAt, domain, templateCount)
	if err != nil {
		return 0, err
	}
	h.runID = id
	return id, nil
}

// Resume continues an existing run. It returns the run's report, which the
// dispatch loop uses to skip templates that already succeeded.
func (h *History) Resume(ctx context.Context, runID int64) (*model.RunReport, error) {
	prior, err := h.db.GetRunReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	h.runID = runID
	return prior, nil
}

// RunID returns the id of the current run, or 0.
func (h *History) RunID() int64 {
	return h.runID
}

// Record implements dispatch.Recorder. Failed queries are stored with their
// error so that a resumed run dispatches them again.
func (h *History) Record(ctx context.Context, rec dispatch.Record) error {
	if h.runID == 0 {
		return ErrNoRun
	}

	var errText string
	if rec.Err != nil {
		errText = gdlog.SanitizeText(rec.Err.Error())
	}

	return h.db.RecordResult(ctx, &database.DorkResult{
		RunID:    h.runID,
		Position: rec.Position,
		Template: rec.Template,
		Query:    rec.Query,
		Proxy:    rec.Proxy.Redacted(),
		URLs:     rec.URLs,
		Error:    errText,
	})
}

// Finalize implements dispatch.Finalizer.
func (h *History) Finalize(ctx context.Context, r *model.RunReport) error {
	if h.runID == 0 {
		return ErrNoRun
	}
	return h.db.CompleteRun(ctx, h.runID, r.CompletedAt, r.TotalURLs)
}

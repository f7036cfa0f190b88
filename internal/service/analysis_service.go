package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
	"github.com/jengzang/solarscan-backend-go/internal/repository"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun.
var ErrShuttingDown = errors.New("service is shutting down")

// RunStore persists analysis runs.
type RunStore interface {
	Create(run *models.AnalysisRun) error
	GetByRunID(runID string) (*models.AnalysisRun, error)
	List(filter models.RunFilter) ([]*models.AnalysisRun, error)
	MarkRunning(runID string, totalTiles int) error
	UpdateProgress(runID string, percent int) error
	MarkCompleted(runID string, out repository.RunOutcome) error
	MarkFailed(runID string, errorMessage string) error
	ListDetections(runID string) ([]detection.Detection, error)
}

// AnalysisService runs analyses and keeps their records.
type AnalysisService struct {
	runner *pipeline.Runner
	store  RunStore
	logger logging.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(runner *pipeline.Runner, store RunStore, logger logging.Logger) *AnalysisService {
	if logger == nil {
		logger = logging.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &AnalysisService{
		runner: runner,
		store:  store,
		logger: logger.Named("analysis_service"),
		base:   base,
		cancel: cancel,
	}
}

// Validate normalizes an input and reports what is wrong with it.
func (s *AnalysisService) Validate(in models.SubstationInput) (models.SubstationInput, error) {
	return s.runner.Prepare(in)
}

// Grid previews the tile layout for an input.
func (s *AnalysisService) Grid(in models.SubstationInput) (tiling.Grid, error) {
	in, err := s.Validate(in)
	if err != nil {
		return tiling.Grid{}, err
	}
	return s.runner.Grid(in)
}

// Run analyzes one input synchronously. Rejected inputs return a
// ValidationError and are not recorded.
func (s *AnalysisService) Run(ctx context.Context, in models.SubstationInput) (pipeline.Result, error) {
	if _, err := s.Validate(in); err != nil {
		return pipeline.Result{}, err
	}
	res := s.runner.RunAnalysis(ctx, in)
	s.record(res, models.RunModeBatch)
	return res, nil
}

// RunBatch analyzes every input; each result is recorded on its own.
func (s *AnalysisService) RunBatch(ctx context.Context, inputs []models.SubstationInput) []pipeline.Result {
	results := s.runner.RunBatch(ctx, inputs)
	for _, res := range results {
		s.record(res, models.RunModeBatch)
	}
	return results
}

// Stream runs one input and forwards every event to emit.
func (s *AnalysisService) Stream(ctx context.Context, in models.SubstationInput, emit func(pipeline.Event)) pipeline.Result {
	res := s.runner.Stream(ctx, in, emit)
	s.record(res, models.RunModeStream)
	return res
}

// Submit records a pending run and analyzes it in the background. Progress
// is written to the store as tiles finish.
func (s *AnalysisService) Submit(in models.SubstationInput) (*models.AnalysisRun, error) {
	in, err := s.Validate(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}

	run := &models.AnalysisRun{
		RunID:        uuid.NewString(),
		SubstationID: in.ID,
		Lat:          in.Lat,
		Lon:          in.Lon,
		RadiusM:      in.RadiusM,
		Mode:         models.RunModeBatch,
		Status:       models.TaskStatusPending,
	}
	if err := s.store.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(run.RunID, in)
	}()
	return run, nil
}

func (s *AnalysisService) execute(runID string, in models.SubstationInput) {
	log := s.logger.With(logging.String("run_id", runID), logging.String("sub_id", in.ID))
	log.Info("background run started")

	lastPct := -1
	emit := func(e pipeline.Event) {
		switch data := e.Data.(type) {
		case pipeline.GridReady:
			if err := s.store.MarkRunning(runID, data.TileCount); err != nil {
				log.Warn("failed to mark run as running", logging.Err(err))
			}
		case pipeline.Progress:
			pct := int(math.Floor(data.Pct))
			if pct == lastPct || pct >= 100 {
				return
			}
			lastPct = pct
			if err := s.store.UpdateProgress(runID, pct); err != nil {
				log.Warn("failed to update progress", logging.Err(err))
			}
		}
	}

	res := s.runner.Stream(pipeline.ContextWithRunID(s.base, runID), in, emit)
	s.complete(res)
	log.Info("background run finished",
		logging.Int("detections", len(res.Detections)),
		logging.String("error", res.Error),
	)
}

// record creates the row for a run that already finished.
func (s *AnalysisService) record(res pipeline.Result, mode string) {
	run := &models.AnalysisRun{
		RunID:        res.RunID,
		SubstationID: res.Input.ID,
		Lat:          res.Input.Lat,
		Lon:          res.Input.Lon,
		RadiusM:      res.Input.RadiusM,
		Mode:         mode,
		Status:       models.TaskStatusRunning,
	}
	if err := s.store.Create(run); err != nil {
		s.logger.Error("failed to record run", logging.String("run_id", res.RunID), logging.Err(err))
		return
	}
	s.complete(res)
}

func (s *AnalysisService) complete(res pipeline.Result) {
	var err error
	if res.Failed() {
		err = s.store.MarkFailed(res.RunID, res.Error)
	} else {
		err = s.store.MarkCompleted(res.RunID, outcomeOf(res))
	}
	if err != nil {
		s.logger.Error("failed to store run outcome", logging.String("run_id", res.RunID), logging.Err(err))
	}
}

func outcomeOf(res pipeline.Result) repository.RunOutcome {
	out := repository.RunOutcome{
		TotalTiles:  len(res.Grid.Tiles),
		FailedTiles: len(res.FailedTiles),
		Detections:  res.JoinedDetections,
	}
	if b, err := json.Marshal(res); err == nil {
		out.ResultJSON = string(b)
	}
	if res.Report != nil {
		if b, err := json.Marshal(res.Report); err == nil {
			out.ReportJSON = string(b)
		}
	}
	return out
}

// RunView is a stored run with its decoded payloads.
type RunView struct {
	*models.AnalysisRun
	Result *pipeline.Result `json:"result,omitempty"`
	Report json.RawMessage  `json:"report,omitempty"`
}

// Get returns a run by id.
func (s *AnalysisService) Get(runID string) (*RunView, error) {
	run, err := s.store.GetByRunID(runID)
	if err != nil {
		return nil, err
	}
	view := &RunView{AnalysisRun: run}
	if run.ResultJSON != "" {
		var res pipeline.Result
		if err := json.Unmarshal([]byte(run.ResultJSON), &res); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		view.Result = &res
	}
	if run.ReportJSON != "" {
		view.Report = json.RawMessage(run.ReportJSON)
	}
	return view, nil
}

// List returns stored runs.
func (s *AnalysisService) List(filter models.RunFilter) ([]*models.AnalysisRun, error) {
	return s.store.List(filter)
}

// Detections returns the joined detections stored for a run.
func (s *AnalysisService) Detections(runID string) ([]detection.Detection, error) {
	if _, err := s.store.GetByRunID(runID); err != nil {
		return nil, err
	}
	return s.store.ListDetections(runID)
}

// Shutdown stops accepting work, cancels background runs and waits for them
// to record their outcome.
func (s *AnalysisService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

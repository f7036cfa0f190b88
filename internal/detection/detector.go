package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

// Detector finds panels in one tile image. Implementations never fail the
// caller: on any internal error they log and return no detections.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, Metrics)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, image []byte) ([]Detection, Metrics)

func (f DetectorFunc) Detect(ctx context.Context, image []byte) ([]Detection, Metrics) {
	return f(ctx, image)
}

// HTTPDetector posts tile images to an inference service and normalizes the
// boxes it returns.
type HTTPDetector struct {
	endpoint      string
	minConfidence float64
	client        *http.Client
	logger        logging.Logger
}

// NewHTTPDetector creates a detector for the given endpoint.
func NewHTTPDetector(endpoint string, minConfidence float64, timeout time.Duration, logger logging.Logger) *HTTPDetector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HTTPDetector{
		endpoint:      endpoint,
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
		logger:        logger.Named("detector"),
	}
}

// Detect implements Detector.
func (h *HTTPDetector) Detect(ctx context.Context, image []byte) ([]Detection, Metrics) {
	if len(image) == 0 {
		return nil, Metrics{}
	}

	start := time.Now()
	dets, err := h.call(ctx, image)
	elapsed := time.Since(start)
	if err != nil {
		h.logger.Warn("inference failed", logging.Err(err), logging.Duration("took", elapsed))
		return nil, Metrics{}
	}

	kept := FilterConfidence(dets, h.minConfidence)
	return kept, ComputeMetrics(kept, elapsed)
}

func (h *HTTPDetector) call(ctx context.Context, image []byte) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call detector: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}
	return NormalizeJSON(body)
}

// FilterConfidence drops detections below threshold.
func FilterConfidence(dets []Detection, threshold float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

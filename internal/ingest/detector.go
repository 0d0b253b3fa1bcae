package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"pawluxe/internal/services"
	"pawluxe/internal/tracking"
)

// DetectParams are forwarded to the detector with every frame.
type DetectParams struct {
	ConfThreshold float64
	IoUThreshold  float64
	Classes       []int
}

// Detector runs detection and local tracking on one frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame, params DetectParams) ([]tracking.Detection, error)
}

// HTTPDetector posts raw frames to an inference service.
//
// The request body is the RGB24 frame; dimensions and parameters travel in
// headers and query parameters. The response is
// {"detections": [{"track_id", "class_id", "confidence", "bbox", "embedding"}]}.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDetector builds a detector client. A zero timeout means none.
func NewHTTPDetector(endpoint string, timeout time.Duration) (*HTTPDetector, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "detector", "detector_url is not configured", nil)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "detector", "invalid detector_url", err)
	}
	return &HTTPDetector{endpoint: endpoint, client: &http.Client{Timeout: timeout}}, nil
}

type detectResponse struct {
	Detections []tracking.Detection `json:"detections"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame Frame, params DetectParams) ([]tracking.Detection, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("conf", strconv.FormatFloat(params.ConfThreshold, 'f', -1, 64))
	q.Set("iou", strconv.FormatFloat(params.IoUThreshold, 'f', -1, 64))
	if len(params.Classes) > 0 {
		parts := make([]string, len(params.Classes))
		for i, c := range params.Classes {
			parts[i] = strconv.Itoa(c)
		}
		q.Set("classes", strings.Join(parts, ","))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(frame.Pixels))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))
	req.Header.Set("X-Pixel-Format", "rgb24")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "detect", "detector request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrTransient, "ingest", "detect",
			fmt.Sprintf("detector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "detect", "decode detector response", err)
	}
	return payload.Detections, nil
}

// filterDetections keeps detections that satisfy the threshold and class filter.
func filterDetections(dets []tracking.Detection, params DetectParams) []tracking.Detection {
	if len(dets) == 0 {
		return nil
	}
	out := dets[:0:0]
	for _, det := range dets {
		if det.Confidence < params.ConfThreshold {
			continue
		}
		if len(params.Classes) > 0 && !slices.Contains(params.Classes, det.ClassID) {
			continue
		}
		out = append(out, det)
	}
	return out
}

package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one labelled row of the replay dataset.
type Sample struct {
	Row      int
	Features map[string]float64
	Fraud    bool
}

// PredictRequest is the /predict request format.
type PredictRequest struct {
	Features map[string]float64 `json:"features"`
}

// PredictResponse is the /predict response format.
type PredictResponse struct {
	FraudProbability float64 `json:"fraud_probability"`
	Decision         string  `json:"decision"`
	Error            string  `json:"error,omitempty"`
}

// Tally accumulates replay results. Rows are decisions, columns the label.
type Tally struct {
	Decisions map[string][2]int64 // [non-fraud, fraud]
	Errors    int64
	LatencyMs int64
	Processed int64
}

// readDataset reads a CSV whose header names the features plus one label
// column. Every other column is sent as a feature.
func readDataset(r io.Reader, label string, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	labelIdx := -1
	for i, col := range header {
		if col == label {
			labelIdx = i
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found in header", label)
	}

	var samples []Sample
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		s := Sample{Row: row, Features: make(map[string]float64, len(header)-1)}
		for i, col := range header {
			if i == labelIdx {
				s.Fraud, err = parseLabel(record[i])
			} else {
				s.Features[col], err = strconv.ParseFloat(record[i], 64)
			}
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, col, err)
			}
		}
		samples = append(samples, s)

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, nil
}

func parseLabel(v string) (bool, error) {
	switch v {
	case "1", "1.0", "true", "True":
		return true, nil
	case "0", "0.0", "false", "False":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised label %q", v)
}

// replay posts every sample to baseURL/predict with numWorkers workers.
func replay(client *http.Client, baseURL string, samples []Sample, numWorkers int, verbose bool) *Tally {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var (
		mu    sync.Mutex
		tally = &Tally{Decisions: make(map[string][2]int64)}
		wg    sync.WaitGroup
		work  = make(chan Sample, 100)
	)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				start := time.Now()
				result, err := predict(client, baseURL, s.Features)
				atomic.AddInt64(&tally.LatencyMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&tally.Processed, 1)

				if err != nil {
					atomic.AddInt64(&tally.Errors, 1)
					if verbose {
						fmt.Printf("ERROR row %d -> %v\n", s.Row, err)
					}
					continue
				}

				col := 0
				if s.Fraud {
					col = 1
				}
				mu.Lock()
				counts := tally.Decisions[result.Decision]
				counts[col]++
				tally.Decisions[result.Decision] = counts
				mu.Unlock()

				if verbose {
					fmt.Printf("row %-7d | fraud: %-5v | %-6s (%.6f)\n", s.Row, s.Fraud, result.Decision, result.FraudProbability)
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)
	wg.Wait()

	return tally
}

func predict(client *http.Client, baseURL string, feats map[string]float64) (*PredictResponse, error) {
	body, err := json.Marshal(PredictRequest{Features: feats})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	// 200 with an error field is the legacy error shape.
	if resp.StatusCode != http.StatusOK || result.Error != "" {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
	}
	return &result, nil
}

// Confusion collapses the tally into a binary matrix. A sample counts as
// flagged when its decision is in flagged.
func (t *Tally) Confusion(flagged ...string) (tp, fp, tn, fn int64) {
	isFlagged := make(map[string]bool, len(flagged))
	for _, d := range flagged {
		isFlagged[d] = true
	}
	for d, counts := range t.Decisions {
		if isFlagged[d] {
			fp += counts[0]
			tp += counts[1]
		} else {
			tn += counts[0]
			fn += counts[1]
		}
	}
	return tp, fp, tn, fn
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func openDataset(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	return f, nil
}

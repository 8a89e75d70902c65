// Replay tool for evaluating thresholds against a labelled dataset.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/labelled.csv -url http://localhost:8080
//
// Each row is sent to /predict with every non-label column as a feature.
// The returned decisions are compared with the label and summarised as a
// decision-by-label table plus a binary confusion matrix.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	csvPath := flag.String("csv", "", "Path to labelled CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "fraudscore base URL")
	label := flag.String("label", "Class", "Name of the label column (1 = fraud)")
	limit := flag.Int("limit", 10000, "Maximum rows to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	flagOn := flag.String("flag", "REVIEW,BLOCK", "Decisions counted as flagged in the confusion matrix")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/labelled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: fraudscore not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ fraudscore is healthy")

	f, err := openDataset(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	samples, err := readDataset(f, *label, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d rows\n", len(samples))

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	start := time.Now()
	tally := replay(client, *baseURL, samples, *workers, *verbose)
	printResults(tally, strings.Split(*flagOn, ","), time.Since(start))
}

func printResults(t *Tally, flagged []string, duration time.Duration) {
	fmt.Println("\nDECISIONS BY LABEL")
	fmt.Printf("   %-8s %10s %10s\n", "", "non-fraud", "fraud")
	for _, d := range []string{"ALLOW", "REVIEW", "BLOCK"} {
		c := t.Decisions[d]
		fmt.Printf("   %-8s %10d %10d\n", d, c[0], c[1])
	}
	fmt.Printf("   errors: %d\n", t.Errors)

	tp, fp, tn, fn := t.Confusion(flagged...)
	fmt.Printf("\nCONFUSION MATRIX (flagged = %s)\n", strings.Join(flagged, "+"))
	fmt.Printf("   TP %-8d FN %-8d\n", tp, fn)
	fmt.Printf("   FP %-8d TN %-8d\n", fp, tn)

	precision, recall := ratio(tp, tp+fp), ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	fmt.Printf("\n   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)

	fmt.Printf("\n   Duration:   %v\n", duration.Round(time.Millisecond))
	if t.Processed > 0 {
		fmt.Printf("   Avg Latency: %.2f ms\n", float64(t.LatencyMs)/float64(t.Processed))
		fmt.Printf("   Throughput:  %.2f req/sec\n", float64(t.Processed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

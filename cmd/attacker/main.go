package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type result struct {
	status  int
	latency time.Duration
}

func main() {
	target := flag.String("target", "http://localhost:8080", "Target URL to attack")
	concurrency := flag.Int("c", 4, "Concurrency level (number of goroutines)")
	requests := flag.Int("n", 200, "Total number of requests")
	modeName := flag.String("mode", "legit", "Traffic profile: legit, ddos, explore, error, bruteforce, spoof, hijack, burst")
	stopOnBan := flag.Bool("stop-on-ban", true, "Stop a worker once it receives 403")
	flag.Parse()

	if *concurrency < 1 {
		*concurrency = 1
	}
	*target = strings.TrimRight(*target, "/")
	client := &http.Client{Timeout: 10 * time.Second}
	m, ok := modes(*target, client)[*modeName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *modeName)
		os.Exit(2)
	}

	fmt.Printf("Starting ipsguard traffic generator\n")
	fmt.Printf("Target:      %s\n", *target)
	fmt.Printf("Concurrency: %d routines\n", *concurrency)
	fmt.Printf("Requests:    %d total\n", *requests)
	fmt.Printf("Mode:        %s\n", *modeName)
	fmt.Printf("----------------------------------\n")

	results := make(chan result, *requests)
	var wg sync.WaitGroup

	reqPerRoutine := *requests / *concurrency

	startTime := time.Now()

	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := 0; j < reqPerRoutine; j++ {
				st := m(w, j)
				req, err := st.request(*target)
				if err != nil {
					fmt.Printf("[worker %d] request error: %v\n", w, err)
					continue
				}

				reqStart := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(reqStart)

				if err != nil {
					results <- result{status: 0, latency: duration}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				results <- result{status: resp.StatusCode, latency: duration}

				if resp.StatusCode == http.StatusForbidden && *stopOnBan {
					fmt.Printf("[worker %d] banned after %d requests, stopping\n", w, j+1)
					return
				}
				time.Sleep(st.pause)
			}
		}(w)
	}

	wg.Wait()
	close(results)

	totalDuration := time.Since(startTime)

	var latencies []time.Duration
	statusCodes := make(map[int]int)
	var totalLatency time.Duration

	for res := range results {
		statusCodes[res.status]++
		latencies = append(latencies, res.latency)
		totalLatency += res.latency
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	totalReqs := len(latencies)
	if totalReqs == 0 {
		fmt.Println("No requests completed.")
		return
	}

	fmt.Printf("\n--- Throughput & Timing ---\n")
	fmt.Printf("Total Time:     %v\n", totalDuration)
	fmt.Printf("Requests/sec:   %.2f\n", float64(totalReqs)/totalDuration.Seconds())
	fmt.Printf("Avg Latency:    %v\n", totalLatency/time.Duration(totalReqs))
	fmt.Printf("p50 Latency:    %v\n", latencies[totalReqs/2])
	fmt.Printf("p99 Latency:    %v\n", latencies[int(float64(totalReqs)*0.99)])

	fmt.Printf("\n--- Outcome Summary ---\n")
	codes := make([]int, 0, len(statusCodes))
	for code := range statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  [%d] %-25s : %d\n", code, label(code), statusCodes[code])
	}
	fmt.Printf("----------------------------------\n")
}

func label(code int) string {
	switch {
	case code == 0:
		return "Connection Dropped"
	case code == http.StatusForbidden:
		return "Banned by IPS"
	case code >= 200 && code < 300:
		return "Allowed"
	case code == http.StatusUnauthorized:
		return "Unauthorized (upstream)"
	case code >= 400 && code < 500:
		return "Client Error (upstream)"
	default:
		return "Server Error"
	}
}

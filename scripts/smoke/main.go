// Command smoke probes a running API instance and reports endpoints whose
// status diverges from the expectation file. Intended for post-deploy checks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type probe struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Critical bool   `json:"critical"`
}

type config struct {
	Probes []probe `json:"probes"`
}

type result struct {
	Probe    probe
	Status   int
	Duration time.Duration
	Err      error
}

func main() {
	var (
		baseURL    string
		probesPath string
		timeout    time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&probesPath, "probes", filepath.Join("scripts", "smoke", "probes.json"), "Path to JSON probes file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	probes, err := loadProbes(probesPath)
	if err != nil {
		log.Fatalf("failed to load probes: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var breaking, soft int

	for _, p := range probes {
		res := run(client, baseURL, p)
		report(res)
		if res.Err != nil || res.Status != p.Expect {
			if p.Critical {
				breaking++
			} else {
				soft++
			}
		}
	}

	fmt.Printf("\n%d probes, %d breaking, %d soft failures\n", len(probes), breaking, soft)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadProbes(path string) ([]probe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Probes) == 0 {
		return nil, fmt.Errorf("no probes defined in %s", path)
	}
	return cfg.Probes, nil
}

func run(client *http.Client, base string, p probe) result {
	url := strings.TrimRight(base, "/") + p.Path
	req, err := http.NewRequest(p.Method, url, nil)
	if err != nil {
		return result{Probe: p, Err: err}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return result{Probe: p, Duration: elapsed, Err: err}
	}
	defer resp.Body.Close()

	return result{Probe: p, Status: resp.StatusCode, Duration: elapsed}
}

func report(res result) {
	label := "ok"
	if res.Err != nil {
		label = "error: " + res.Err.Error()
	} else if res.Status != res.Probe.Expect {
		label = fmt.Sprintf("want %d got %d", res.Probe.Expect, res.Status)
	}
	fmt.Printf("%-6s %-40s %8s  %s\n", res.Probe.Method, res.Probe.Path, res.Duration.Round(time.Millisecond), label)
}

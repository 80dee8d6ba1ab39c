package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"time"

	"classroom-judge/internal/judge"
	"classroom-judge/internal/schemas"
)

func main() {
	base := envOr("API_BASE_URL", "http://localhost:8000")
	token := envOr("API_TOKEN", "dev-secret-token")

	baseFlag := flag.String("base", base, "API base URL (e.g., http://localhost:8000)")
	tokenFlag := flag.String("token", token, "API token")
	wait := flag.Duration("wait", 30*time.Second, "How long to poll for a judged report")
	repo := flag.String("repo", "", "Also submit a container run for this repository")
	commit := flag.String("commit", "", "Commit to check out for -repo")
	flag.Parse()

	httpc := &http.Client{Timeout: 12 * time.Second}

	report := judge.Report{Exercises: []judge.Exercise{
		{Name: "intro1", Result: true},
		{Name: "variables1", Result: true},
		{Name: "functions1", Result: false},
	}}
	raw, err := json.Marshal(report)
	if err != nil {
		fatalf("marshal report: %v", err)
	}

	// 1) Synchronous judge
	var points judge.Points
	if err := post(httpc, *baseFlag+"/judge", *tokenFlag, raw, http.StatusOK, &points); err != nil {
		fatalf("judge: %v", err)
	}
	want := judge.Judge(string(raw))
	if !maps.Equal(points, want) {
		fatalf("judge: got %v, want %v", points, want)
	}
	fmt.Printf("✅ Judged inline: %s\n", compactJSON(points))

	// 2) Garbage judges to {}
	var empty judge.Points
	if err := post(httpc, *baseFlag+"/judge", *tokenFlag, []byte("not json"), http.StatusOK, &empty); err != nil {
		fatalf("judge garbage: %v", err)
	}
	if len(empty) != 0 {
		fatalf("judge garbage: got %v, want {}", empty)
	}
	fmt.Println("✅ Garbage report judged to {}")

	// 3) Stored report, judged by the worker
	var submitted schemas.SubmitResp
	if err := post(httpc, *baseFlag+"/reports", *tokenFlag, raw, http.StatusAccepted, &submitted); err != nil {
		fatalf("submit report: %v", err)
	}
	fmt.Printf("✅ Submitted report: id=%s\n", submitted.ReportID)
	out := poll(httpc, *baseFlag, *tokenFlag, submitted.ReportID, *wait)
	if out.Status != "judged" || !maps.Equal(out.Points, want) {
		fatalf("stored report: %s", compactJSON(out))
	}
	fmt.Printf("✅ Worker judged report: %d/%d\n", out.Earned, out.Possible)

	// 4) Optional container run
	if *repo != "" {
		body, _ := json.Marshal(schemas.RunRequest{Repository: *repo, Commit: *commit})
		var run schemas.SubmitResp
		if err := post(httpc, *baseFlag+"/runs", *tokenFlag, body, http.StatusAccepted, &run); err != nil {
			fatalf("submit run: %v", err)
		}
		fmt.Printf("✅ Submitted run: id=%s\n", run.ReportID)
		out := poll(httpc, *baseFlag, *tokenFlag, run.ReportID, *wait)
		fmt.Printf("ℹ️  Run result:\n%s\n", compactJSON(out))
	}

	fmt.Println("🎉 Smoke run OK")
}

// --- helpers ---

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func poll(c *http.Client, base, token, id string, wait time.Duration) schemas.ReportOut {
	deadline := time.Now().Add(wait)
	for {
		var out schemas.ReportOut
		if err := getJSON(c, fmt.Sprintf("%s/reports/%s", base, id), token, &out); err != nil {
			fatalf("get report: %v", err)
		}
		if out.Status != "pending" {
			return out
		}
		if time.Now().After(deadline) {
			fatalf("report %s still pending after %s", id, wait)
		}
		time.Sleep(time.Second)
	}
}

func post(c *http.Client, url, bearer string, body []byte, wantCode int, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != wantCode {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("POST %s -> %d: %s", url, res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func getJSON(c *http.Client, url, bearer string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("GET %s -> %d: %s", url, res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func compactJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func fatalf(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}

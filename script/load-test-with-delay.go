package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/payment"
)

// StepResult contains metrics for a single HTTP call
type StepResult struct {
	Step         string
	Success      bool
	ResponseTime time.Duration
	StatusCode   int
	Error        error
}

// TestStats contains aggregated test statistics
type TestStats struct {
	Lifecycles          int
	Completed           int
	Cancelled           int
	Broken              int
	AcceptConflicts     int
	DuplicateDeliveries int
	TotalTime           time.Duration
	StepTimes           map[string][]time.Duration
	StepFailures        map[string]int
	ErrorCounts         map[string]int
	Lock                sync.Mutex
}

// Scenario is one path through the lifecycle
type Scenario struct {
	Name          string
	PaymentMethod string
	Cancel        bool // buyer cancels after acceptance instead of waiting for delivery
}

type client struct {
	http    *http.Client
	baseURL string
	secret  string
	stats   *TestStats
}

func main() {
	concurrency := flag.Int("c", 5, "Number of concurrent goroutines")
	total := flag.Int("n", 100, "Number of lifecycles to run")
	sellersStr := flag.String("sellers", "seller-1,seller-2", "Comma-separated sellers racing to accept each transaction")
	baseURL := flag.String("url", "http://localhost:8080", "Base URL for the API")
	secret := flag.String("secret", "whsec_dev", "Webhook signing secret configured on the server")
	duplicates := flag.Float64("dup", 0.2, "Share of payment webhooks delivered twice")
	delayMs := flag.Int("delay", 100, "Delay between lifecycles in milliseconds")
	flag.Parse()

	sellers := strings.Split(*sellersStr, ",")

	scenarios := []Scenario{
		{"Prepaid delivered", "prepaid_online", false},
		{"Prepaid cancelled", "prepaid_online", true},
		{"COD delivered", "cash_on_delivery", false},
		{"COD cancelled", "cash_on_delivery", true},
	}

	fmt.Printf("Load testing %s with %d lifecycles, %d goroutines\n", *baseURL, *total, *concurrency)
	fmt.Printf("Sellers racing per transaction: %v\n", sellers)
	fmt.Printf("Duplicate webhook share: %.0f%%, delay: %d ms\n", *duplicates*100, *delayMs)

	stats := &TestStats{
		Lifecycles:   *total,
		StepTimes:    make(map[string][]time.Duration),
		StepFailures: make(map[string]int),
		ErrorCounts:  make(map[string]int),
	}
	c := &client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: *baseURL,
		secret:  *secret,
		stats:   stats,
	}

	jobs := make(chan int, *total)
	for i := 0; i < *total; i++ {
		jobs <- i
	}
	close(jobs)

	startTime := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if *delayMs > 0 {
					time.Sleep(time.Duration(*delayMs) * time.Millisecond)
				}
				scenario := scenarios[rand.Intn(len(scenarios))]
				c.runLifecycle(scenario, sellers, rand.Float64() < *duplicates)
			}
		}()
	}
	wg.Wait()

	stats.TotalTime = time.Since(startTime)
	printResults(stats)
}

// runLifecycle drives one transaction from creation to a terminal status
func (c *client) runLifecycle(s Scenario, sellers []string, duplicate bool) {
	buyer := "buyer-" + uuid.NewString()[:8]
	ref := ""
	if s.PaymentMethod == "prepaid_online" {
		ref = "cs_load_" + uuid.NewString()
	}

	var created struct {
		TransactionID string `json:"transactionId"`
	}
	ok := c.call("create", http.MethodPost, "/api/v1/transactions", buyer, map[string]any{
		"items":              []map[string]any{{"name": "Load item", "quantity": 1, "unitPrice": 2500}},
		"amountTotal":        2500,
		"paymentMethod":      s.PaymentMethod,
		"externalPaymentRef": ref,
	}, &created, http.StatusCreated)
	if !ok {
		c.broken()
		return
	}
	id := created.TransactionID

	if ref != "" {
		deliveryID := "evt_" + uuid.NewString()
		if !c.webhook(deliveryID, ref) {
			c.broken()
			return
		}
		if duplicate {
			c.webhook(deliveryID, ref)
			c.stats.Lock.Lock()
			c.stats.DuplicateDeliveries++
			c.stats.Lock.Unlock()
		}
	}

	// every seller races; exactly one may win
	winner := ""
	var mu sync.Mutex
	var race sync.WaitGroup
	for _, seller := range sellers {
		race.Add(1)
		go func(seller string) {
			defer race.Done()
			status := c.status("accept", http.MethodPost, "/api/v1/transactions/"+id+"/accept", seller, nil)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case http.StatusOK:
				winner = seller
			case http.StatusConflict:
				c.stats.Lock.Lock()
				c.stats.AcceptConflicts++
				c.stats.Lock.Unlock()
			}
		}(seller)
	}
	race.Wait()
	if winner == "" {
		c.broken()
		return
	}

	if s.Cancel {
		if c.call("cancel", http.MethodPost, "/api/v1/transactions/"+id+"/cancel", buyer,
			map[string]any{"actorRole": "buyer"}, nil, http.StatusOK) {
			c.stats.Lock.Lock()
			c.stats.Cancelled++
			c.stats.Lock.Unlock()
			return
		}
		c.broken()
		return
	}

	if !c.call("ship", http.MethodPost, "/api/v1/transactions/"+id+"/ship", winner, nil, nil, http.StatusOK) ||
		!c.call("confirm", http.MethodPost, "/api/v1/transactions/"+id+"/confirm-receipt", buyer, nil, nil, http.StatusOK) {
		c.broken()
		return
	}

	c.stats.Lock.Lock()
	c.stats.Completed++
	c.stats.Lock.Unlock()
}

func (c *client) webhook(deliveryID, ref string) bool {
	payload, _ := json.Marshal(map[string]any{
		"id":      deliveryID,
		"type":    "checkout.session.completed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             ref,
				"payment_status": "paid",
				"amount_total":   2500,
			},
		},
	})

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/webhooks/payments", bytes.NewReader(payload))
	if err != nil {
		c.record(StepResult{Step: "webhook", Error: err})
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Payment-Signature", payment.Sign(c.secret, payload, time.Now()))
	return c.do("webhook", req, nil, http.StatusOK) == http.StatusOK
}

func (c *client) call(step, method, path, userID string, body, out any, want int) bool {
	return c.request(step, method, path, userID, body, out, want) == want
}

func (c *client) status(step, method, path, userID string, body any) int {
	return c.request(step, method, path, userID, body, nil, http.StatusOK)
}

func (c *client) request(step, method, path, userID string, body, out any, want int) int {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.record(StepResult{Step: step, Error: err})
			return 0
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		c.record(StepResult{Step: step, Error: err})
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	return c.do(step, req, out, want)
}

func (c *client) do(step string, req *http.Request, out any, want int) int {
	start := time.Now()
	resp, err := c.http.Do(req)
	result := StepResult{Step: step, ResponseTime: time.Since(start)}
	if err != nil {
		result.Error = err
		c.record(result)
		return 0
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode == want || (step == "accept" && resp.StatusCode == http.StatusConflict)
	if !result.Success {
		result.Error = fmt.Errorf("%s: HTTP status code %d", step, resp.StatusCode)
	}
	if out != nil && resp.StatusCode == want {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			result.Success = false
			result.Error = fmt.Errorf("%s: decode: %w", step, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	c.record(result)
	return resp.StatusCode
}

func (c *client) record(r StepResult) {
	c.stats.Lock.Lock()
	defer c.stats.Lock.Unlock()
	c.stats.StepTimes[r.Step] = append(c.stats.StepTimes[r.Step], r.ResponseTime)
	if !r.Success {
		c.stats.StepFailures[r.Step]++
		if r.Error != nil {
			c.stats.ErrorCounts[r.Error.Error()]++
		}
	}
}

func (c *client) broken() {
	c.stats.Lock.Lock()
	c.stats.Broken++
	c.stats.Lock.Unlock()
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)*p/100]
}

func printResults(stats *TestStats) {
	fmt.Println("\n================= TEST RESULTS =================")
	fmt.Printf("Lifecycles:           %d\n", stats.Lifecycles)
	fmt.Printf("Completed:            %d\n", stats.Completed)
	fmt.Printf("Cancelled:            %d\n", stats.Cancelled)
	fmt.Printf("Broken:               %d\n", stats.Broken)
	fmt.Printf("Accept conflicts:     %d\n", stats.AcceptConflicts)
	fmt.Printf("Duplicate deliveries: %d\n", stats.DuplicateDeliveries)
	fmt.Printf("Total Test Time:      %.2f seconds\n", stats.TotalTime.Seconds())
	fmt.Printf("Lifecycles/second:    %.2f\n", float64(stats.Completed+stats.Cancelled)/stats.TotalTime.Seconds())

	fmt.Println("\n----------------- RESPONSE TIMES -----------------")
	steps := make([]string, 0, len(stats.StepTimes))
	for step := range stats.StepTimes {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		times := stats.StepTimes[step]
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		fmt.Printf("%-8s n=%-5d p50=%-10v p90=%-10v p99=%-10v failed=%d\n", step, len(times),
			percentile(times, 50), percentile(times, 90), percentile(times, 99), stats.StepFailures[step])
	}

	if len(stats.ErrorCounts) > 0 {
		fmt.Println("\n----------------- ERROR DISTRIBUTION -----------------")
		for errMsg, count := range stats.ErrorCounts {
			fmt.Printf("%-50s: %d\n", errMsg, count)
		}
	}

	fmt.Println("\n================= CONCLUSION =================")
	if stats.Broken == 0 {
		fmt.Println("✅ Every lifecycle reached a terminal status")
	} else {
		fmt.Printf("❌ %d lifecycles stopped early\n", stats.Broken)
	}
	fmt.Println("================================================")
}

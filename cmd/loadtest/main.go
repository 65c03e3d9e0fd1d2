package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	Pairs           []string
	Amount          float64
	ConcurrentUsers int
	RequestsPerUser int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// LoadTestResult holds the result of a single request
type LoadTestResult struct {
	UserID     int
	RequestID  int
	StatusCode int
	Duration   time.Duration
	Success    bool
	Error      error
	Timestamp  time.Time
}

func main() {
	var config LoadTestConfig

	flags := pflag.NewFlagSet("loadtest", pflag.ExitOnError)
	flags.StringVar(&config.BaseURL, "url", "http://localhost:8081", "Server base URL")
	flags.StringSliceVar(&config.Pairs, "pairs", []string{"USD:EUR", "USD:GBP", "EUR:JPY"}, "Currency pairs to convert, FROM:TO")
	flags.Float64Var(&config.Amount, "amount", 100, "Amount converted by every request")
	flags.IntVarP(&config.ConcurrentUsers, "users", "u", 10, "Number of concurrent users")
	flags.IntVarP(&config.RequestsPerUser, "requests", "n", 100, "Number of requests per user")
	flags.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flags.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flags.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flags.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	_ = flags.Parse(os.Args[1:])

	targets, err := convertURLs(config.BaseURL, config.Pairs, config.Amount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Starting load test...\n")
	fmt.Printf("URL: %s\n", config.BaseURL)
	fmt.Printf("Pairs: %s\n", strings.Join(config.Pairs, ", "))
	fmt.Printf("Concurrent Users: %d\n", config.ConcurrentUsers)
	fmt.Printf("Requests per User: %d\n", config.RequestsPerUser)
	fmt.Printf("Timeout: %v\n", config.Timeout)
	fmt.Printf("Ramp-up Duration: %v\n", config.RampUpDuration)
	fmt.Printf("Think Time: %v\n", config.ThinkTime)
	fmt.Printf("Test Duration: %v\n", config.TestDuration)
	fmt.Println()

	summary := runLoadTest(config, targets)

	printSummary(summary)
}

// convertURLs builds one /api/v1/convert URL per FROM:TO pair
func convertURLs(baseURL string, pairs []string, amount float64) ([]string, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one currency pair is required")
	}

	targets := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		from, to, found := strings.Cut(pair, ":")
		if !found || from == "" || to == "" {
			return nil, fmt.Errorf("invalid pair %q, expected FROM:TO", pair)
		}
		query := url.Values{}
		query.Set("from", strings.ToUpper(from))
		query.Set("to", strings.ToUpper(to))
		query.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
		targets = append(targets, strings.TrimSuffix(baseURL, "/")+"/api/v1/convert?"+query.Encode())
	}
	return targets, nil
}

func runLoadTest(config LoadTestConfig, targets []string) LoadTestSummary {
	results := make(chan LoadTestResult, config.ConcurrentUsers*config.RequestsPerUser)

	client := &http.Client{
		Timeout: config.Timeout,
	}

	startTime := time.Now()

	ctx := context.Background()
	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	var wg sync.WaitGroup
	rampUpDelay := config.RampUpDuration / time.Duration(max(config.ConcurrentUsers, 1))

	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()

			time.Sleep(time.Duration(uid) * rampUpDelay)

			for reqID := 0; reqID < config.RequestsPerUser; reqID++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				target := targets[(uid+reqID)%len(targets)]
				results <- makeRequest(ctx, client, target, uid, reqID)

				if config.ThinkTime > 0 {
					time.Sleep(config.ThinkTime)
				}
			}
		}(userID)
	}

	wg.Wait()
	close(results)

	return processResults(results, time.Since(startTime))
}

func makeRequest(ctx context.Context, client *http.Client, target string, userID, requestID int) LoadTestResult {
	start := time.Now()
	result := LoadTestResult{
		UserID:    userID,
		RequestID: requestID,
		Timestamp: start,
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = err
		return result
	}

	resp, err := client.Do(request)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	return result
}

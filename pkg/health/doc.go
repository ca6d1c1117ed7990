/*
Package health provides HTTP-based health check mechanisms for monitoring
renderer container health.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	         ▼
	┌────────────┐
	│ HTTPChecker│
	└────────────┘
	      │
	      ▼
	   GET /health

# Health Check Flow

 1. Renderer container starts, Supervisor constructs an HTTPChecker if the
    descriptor declares a health endpoint.
 2. Every Interval: run the check.
 3. If the check fails: increment consecutive failures.
 4. If failures >= Retries: mark the renderer unhealthy.
 5. The Node tears down ACTIVE and releases the assignment for the Healer
    to eventually reclaim.

# HTTP Health Checks

HTTP checks perform HTTP requests to verify application health:

	Check Type: HTTP
	Configuration:
	├── URL: http://localhost:<port>/health
	├── Method: GET, POST, HEAD
	├── Headers: Custom HTTP headers
	├── Expected Status: 200-399 (configurable)
	└── Timeout: 10 seconds

Example responses:
  - 200 OK → Healthy
  - 503 Service Unavailable → Unhealthy
  - Connection timeout → Unhealthy
  - Connection refused → Unhealthy

# Core Components

## Checker Interface

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

## Result Structure

	type Result struct {
		Healthy   bool          // Check passed?
		Message   string        // Human-readable message
		CheckedAt time.Time     // When check ran
		Duration  time.Duration // How long check took
	}

## Status Tracking

Status tracks health over time and implements hysteresis: multiple
failures are required before marking unhealthy, preventing flapping from
transient issues.

	type Status struct {
		ConsecutiveFailures  int
		ConsecutiveSuccesses int
		LastCheck            time.Time
		LastResult           Result
		Healthy              bool
		StartedAt            time.Time
	}

## Configuration

	type Config struct {
		Interval    time.Duration  // Time between checks (default: 30s)
		Timeout     time.Duration  // Max check duration (default: 10s)
		Retries     int            // Failures before unhealthy (default: 3)
		StartPeriod time.Duration  // Grace period for slow startup (default: 0)
	}

# Usage Example

	import "github.com/cuemby/shortlist/pkg/health"

	checker := health.NewHTTPChecker("http://localhost:8080/health").
		WithMethod("GET").
		WithStatusRange(200, 299).
		WithTimeout(5 * time.Second)

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		fmt.Printf("healthy: %s (took %v)\n", result.Message, result.Duration)
	} else {
		fmt.Printf("unhealthy: %s\n", result.Message)
	}

## Status Tracking Loop

	status := health.NewStatus()
	config := health.Config{Interval: 10 * time.Second, Timeout: 5 * time.Second, Retries: 3}
	checker := health.NewHTTPChecker("http://localhost:8080/health")

	for {
		if status.InStartPeriod(config) {
			time.Sleep(config.Interval)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		result := checker.Check(ctx)
		cancel()
		status.Update(result, config)
		if !status.Healthy {
			break // caller tears down the renderer
		}
		time.Sleep(config.Interval)
	}

# Integration Points

internal/renderer.Supervisor constructs an HTTPChecker for any task_type
descriptor with health_endpoint set, and the Node's ACTIVE health-check
ticker calls Supervisor.CheckHealth every HealthCheckInterval.

# See Also

  - internal/renderer - drives renderer container lifecycle and health polling
  - internal/node - ACTIVE state's health-check loop
*/
package health

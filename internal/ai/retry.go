package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// RetryConfig holds the call guard settings for reasoning requests
type RetryConfig struct {
	MaxRetries        int           // Retries after the first attempt (default: 0, analyzers try again next cycle)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Weighted failures before opening (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)

	MaxConcurrentCalls int // Maximum concurrent provider calls (default: 3, 0 = unlimited)
}

// DefaultRetryConfig returns the default call guard configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            0,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// ErrorType classifies a provider error for retry and breaker accounting
type ErrorType int

const (
	ErrorUnknown   ErrorType = iota
	ErrorTransient           // timeouts, 5xx, connection resets
	ErrorQuota               // 429 and quota exhaustion
	ErrorAuth                // 401, 403
	ErrorInvalid             // other 4xx
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTransient:
		return "TRANSIENT"
	case ErrorQuota:
		return "QUOTA"
	case ErrorAuth:
		return "AUTH"
	case ErrorInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// breakerWeight is how many failures an error of this type counts as
func (e ErrorType) breakerWeight() int {
	switch e {
	case ErrorQuota:
		return 3
	case ErrorTransient, ErrorUnknown:
		return 1
	default:
		return 0
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, fail fast
	CircuitHalfOpen                     // Probing for recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops calling a provider that keeps failing
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	logger *zap.Logger
	now    func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		lastStateChange:  time.Now(),
		logger:           zap.NewNop(),
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the circuit is open and its timeout
// has not yet elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failure of unknown type
func (cb *CircuitBreaker) RecordFailure() {
	cb.recordFailureWithType(ErrorUnknown)
}

func (cb *CircuitBreaker) recordFailureWithType(errType ErrorType) {
	weight := errType.breakerWeight()
	if weight == 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount += weight
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure while probing reopens immediately
		cb.transitionTo(CircuitOpen)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns the state with the current failure and success counts
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transitionTo must be called with the lock held
func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.successCount = 0
	if next == CircuitClosed {
		cb.failureCount = 0
	}
	cb.lastStateChange = cb.now()

	cb.logger.Info("circuit breaker state transition",
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
		zap.Int("failures", cb.failureCount),
		zap.Duration("open_timeout", cb.openTimeout))
}

// retryWithBackoff runs fn under the concurrency slot, the breaker and a
// per-attempt timeout, retrying transient failures up to MaxRetries times.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.sem != nil {
		// Waiting for a slot counts against the per-call bound
		acquireCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		err := c.sem.Acquire(acquireCtx, 1)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer c.sem.Release(1)
	}

	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				state, failures, _ := c.breaker.GetMetrics()
				c.logger.Warn("reasoning call blocked by circuit breaker",
					zap.String("operation", operation),
					zap.Stringer("state", state),
					zap.Int("failures", failures))
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			if attempt > 0 {
				c.logger.Info("reasoning call succeeded after retries",
					zap.String("operation", operation), zap.Int("retries", attempt))
			}
			return nil
		}

		lastErr = err
		errType := classifyError(err)

		// A cancelled parent is shutdown, not provider trouble
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		if c.breaker != nil {
			c.breaker.recordFailureWithType(errType)
		}

		if !isRetriableError(err) {
			return fmt.Errorf("%s failed (%s): %w", operation, errType, err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Info("reasoning call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.retry.MaxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	if c.retry.MaxRetries == 0 {
		return fmt.Errorf("%s failed: %w", operation, lastErr)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, c.retry.MaxRetries+1, lastErr)
}

// classifyError maps provider SDK errors and transport failures to an ErrorType
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return classifyStatus(anthropicErr.StatusCode)
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return classifyStatus(geminiErr.Code)
	}
	var geminiErrPtr *genai.APIError
	if errors.As(err, &geminiErrPtr) && geminiErrPtr != nil {
		return classifyStatus(geminiErrPtr.Code)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"), strings.Contains(msg, "resource_exhausted"):
		return ErrorQuota
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "api key not valid"), strings.Contains(msg, "permission denied"):
		return ErrorAuth
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"), strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"), strings.Contains(msg, "gateway timeout"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "network"):
		return ErrorTransient
	case strings.Contains(msg, "400"), strings.Contains(msg, "404"):
		return ErrorInvalid
	}
	return ErrorUnknown
}

func classifyStatus(code int) ErrorType {
	switch {
	case code == 429:
		return ErrorQuota
	case code == 401 || code == 403:
		return ErrorAuth
	case code >= 500:
		return ErrorTransient
	case code >= 400:
		return ErrorInvalid
	}
	return ErrorUnknown
}

// isRetriableError reports whether another attempt could succeed
func isRetriableError(err error) bool {
	switch classifyError(err) {
	case ErrorTransient, ErrorQuota:
		return true
	}
	return false
}

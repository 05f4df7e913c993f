package health

import (
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Patterns stripped from error messages before they reach the health endpoint.
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	wsURLRegex       = regexp.MustCompile(`wss?://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Health states reported by Status.Status.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true only in StateHealthy
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy reports a component doing its job, e.g. a connected client or a driver
// between epochs.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded reports a component still working but impaired, such as a NATS client
// that is reconnecting. The health endpoint keeps answering 200.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy reports a component that cannot take part in the simulation. The
// health endpoint answers 503.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// Aggregate rolls sub-statuses up into one status for component. The worst state
// wins; an empty list is healthy. The sub-statuses are copied into the result.
func Aggregate(component string, subStatuses []Status) Status {
	worst := StateHealthy
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			worst = StateUnhealthy
		case sub.IsDegraded() && worst == StateHealthy:
			worst = StateDegraded
		}
	}

	var status Status
	switch {
	case len(subStatuses) == 0:
		status = NewHealthy(component, "Nothing to report")
	case worst == StateUnhealthy:
		status = NewUnhealthy(component, unhealthyNames(subStatuses)+" unhealthy")
	case worst == StateDegraded:
		status = NewDegraded(component, "Running with degraded components")
	default:
		status = NewHealthy(component, "All components healthy")
	}
	if len(subStatuses) > 0 {
		status.SubStatuses = append([]Status(nil), subStatuses...)
	}
	return status
}

func unhealthyNames(statuses []Status) string {
	var names []string
	for _, s := range statuses {
		if s.IsUnhealthy() {
			names = append(names, s.Component)
		}
	}
	return strings.Join(names, ", ")
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy with subStatus appended. The receiver's slice is
// never shared with the copy.
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// sanitizeErrorMessage removes potentially sensitive information from error messages.
// FromError applies it to every error message it converts.
//
// Sanitization patterns:
//   - URLs (http://, https://, nats://, ws://, wss://) → [URL]
//   - File paths (Unix: /path/to/file, Windows: C:\path\to\file) → [PATH]
//   - IP addresses (192.168.1.100) → [IP]
//   - Port numbers (:8080) → [PORT]
//   - Credentials (password=X, token=X, key=X, secret=X) → [REDACTED]
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err

	// Remove URLs first (before paths, as they contain paths)
	sanitized = httpURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = wsURLRegex.ReplaceAllString(sanitized, "[URL]")

	// Remove file paths (Unix and Windows)
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	// Remove IP addresses
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")

	// Remove port numbers
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	// Remove potential credentials (basic patterns) - check against lowercase but replace in original case
	lowerSanitized := strings.ToLower(sanitized)
	if strings.Contains(lowerSanitized, "password") || strings.Contains(lowerSanitized, "token") ||
		strings.Contains(lowerSanitized, "key") || strings.Contains(lowerSanitized, "secret") ||
		strings.Contains(lowerSanitized, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}

// FromError converts an error into a status for the named component. A nil error is
// healthy. The message is sanitized so broker URLs and addresses do not leak through
// the health endpoint.
func FromError(name string, err error) Status {
	if err == nil {
		return NewHealthy(name, "Component healthy")
	}
	return NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
}

// HTTPStatus maps the status to the code served by the health endpoint.
// Only unhealthy answers 503.
func (s Status) HTTPStatus() int {
	if s.IsUnhealthy() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

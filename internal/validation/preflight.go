// Package validation runs startup preflight checks against the configured
// endpoints. Failures are advisory: the daemon starts anyway, but the
// operator gets concrete fixes instead of a silent dead pipeline.
package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ValidationResult contains the result of one preflight check.
type ValidationResult struct {
	OK       bool
	Message  string
	Issues   []string
	Warnings []string
	Fixes    []string
}

// ValidateBackendURL checks that the search backend address is a usable
// HTTP endpoint.
func ValidateBackendURL(raw string) *ValidationResult {
	result := &ValidationResult{OK: true}

	u, err := url.Parse(raw)
	if err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("Could not parse backend URL: %s", raw)
		result.Issues = append(result.Issues, "Invalid URL format")
		result.Fixes = append(result.Fixes, "Set backend.base_url to e.g. http://127.0.0.1:8080")
		return result
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		result.OK = false
		result.Message = fmt.Sprintf("Backend URL %s has scheme %q (need http or https)", raw, u.Scheme)
		result.Issues = append(result.Issues, fmt.Sprintf("Unsupported scheme %q", u.Scheme))
		result.Fixes = append(result.Fixes, "Use an http:// or https:// address for backend.base_url")
		return result
	}
	if u.Host == "" {
		result.OK = false
		result.Message = fmt.Sprintf("Backend URL %s has no host", raw)
		result.Issues = append(result.Issues, "Missing host")
		result.Fixes = append(result.Fixes, "Set backend.base_url to e.g. http://127.0.0.1:8080")
		return result
	}

	result.Message = fmt.Sprintf("Backend URL %s is well formed", raw)
	return result
}

// ValidateGatewayURL checks that the microphone gateway address is a
// WebSocket endpoint.
func ValidateGatewayURL(raw string) *ValidationResult {
	result := &ValidationResult{OK: true}

	u, err := url.Parse(raw)
	if err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("Could not parse gateway URL: %s", raw)
		result.Issues = append(result.Issues, "Invalid URL format")
		result.Fixes = append(result.Fixes, "Set gateway.url to e.g. ws://127.0.0.1:9090/mic")
		return result
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		result.OK = false
		result.Message = fmt.Sprintf("Gateway URL %s has scheme %q (need ws or wss)", raw, u.Scheme)
		result.Issues = append(result.Issues, fmt.Sprintf("Unsupported scheme %q", u.Scheme))
		result.Fixes = append(result.Fixes, "Use a ws:// or wss:// address for gateway.url")
		return result
	}

	result.Message = fmt.Sprintf("Gateway URL %s is well formed", raw)
	return result
}

// ProbeBackendHealth calls GET /health on the backend. A failure is a
// warning, not an issue: the fallback policy keeps the surface usable.
func ProbeBackendHealth(baseURL string) *ValidationResult {
	result := &ValidationResult{OK: true}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/health")
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Backend health probe failed: %v", err))
		result.Fixes = append(result.Fixes, "Start the search backend, or run obi-searchstub for local development")
		result.Message = "Backend unreachable (searches will use the fallback policy)"
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Backend health endpoint returned %d", resp.StatusCode))
		result.Fixes = append(result.Fixes, "Check the backend logs; POST /search may still work")
		result.Message = fmt.Sprintf("Backend health check returned %d", resp.StatusCode)
		return result
	}

	result.Message = "Backend health check passed"
	return result
}

// CheckEndpoints validates both configured endpoints and probes the
// backend. Issues from the URL checks accumulate; health problems stay
// warnings.
func CheckEndpoints(backendURL, gatewayURL string) *ValidationResult {
	result := &ValidationResult{OK: true}
	var messages []string

	for _, check := range []*ValidationResult{
		ValidateBackendURL(backendURL),
		ValidateGatewayURL(gatewayURL),
	} {
		if !check.OK {
			result.OK = false
			result.Issues = append(result.Issues, check.Issues...)
			result.Fixes = append(result.Fixes, check.Fixes...)
		}
		messages = append(messages, check.Message)
	}

	if result.OK {
		health := ProbeBackendHealth(backendURL)
		result.Warnings = append(result.Warnings, health.Warnings...)
		result.Fixes = append(result.Fixes, health.Fixes...)
		messages = append(messages, health.Message)
	}

	result.Message = strings.Join(messages, " | ")
	if result.OK {
		result.Message = "Preflight passed: " + result.Message
	} else {
		result.Message = "Preflight FAILED: " + result.Message
	}
	return result
}

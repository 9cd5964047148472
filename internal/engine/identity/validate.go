package identity

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// UserAgentValidator builds the load-time check for user agent strings:
// length bounds plus the substrings every real browser family carries.
func UserAgentValidator(minLength, maxLength int, required []string) ValidateFunc {
	return func(value string) error {
		if len(value) < minLength {
			return fmt.Errorf("user agent shorter than %d characters", minLength)
		}
		if maxLength > 0 && len(value) > maxLength {
			return fmt.Errorf("user agent longer than %d characters", maxLength)
		}
		for _, token := range required {
			if token == "" {
				continue
			}
			if !strings.Contains(value, token) {
				return fmt.Errorf("user agent missing required token %q", token)
			}
		}
		return nil
	}
}

// ProxyValidator checks the host:port shape of proxy values.
func ProxyValidator() ValidateFunc {
	return func(value string) error {
		host, portStr, err := net.SplitHostPort(value)
		if err != nil {
			return fmt.Errorf("proxy %q is not host:port: %w", value, err)
		}
		if host == "" {
			return fmt.Errorf("proxy %q has an empty host", value)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("proxy %q has an invalid port", value)
		}
		return nil
	}
}

package checkout

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateRedirectURL accepts absolute http(s) URLs. When allowedHosts is
// non-empty the hostname must match one entry exactly (case-insensitive).
func ValidateRedirectURL(raw string, allowedHosts []string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRedirectURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRedirectURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRedirectURL)
	}

	if len(allowedHosts) == 0 {
		return nil
	}
	for _, allowed := range allowedHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not an allowed storefront host", ErrInvalidRedirectURL, host)
}

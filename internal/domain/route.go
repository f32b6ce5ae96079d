package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const MethodAny = "*"

type RateLimit struct {
	Window time.Duration `json:"window" yaml:"window"`
	Max    int           `json:"max" yaml:"max"`
}

// RouteConfig declares how one path pattern is guarded and which service
// receives it. Patterns are literal paths optionally ending in "/*".
type RouteConfig struct {
	Path        string     `json:"path" yaml:"path"`
	Service     string     `json:"service" yaml:"service"`
	Method      string     `json:"method" yaml:"method"`
	Auth        bool       `json:"auth" yaml:"auth"`
	RateLimit   *RateLimit `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	StripPrefix string     `json:"stripPrefix,omitempty" yaml:"stripPrefix,omitempty"`
}

func (r *RouteConfig) Validate() error {
	if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: route path %q must start with /", ErrInvalidRequest, r.Path)
	}
	if r.Service == "" {
		return fmt.Errorf("%w: route %s has no service", ErrInvalidRequest, r.Path)
	}
	if r.RateLimit != nil && (r.RateLimit.Window <= 0 || r.RateLimit.Max <= 0) {
		return fmt.Errorf("%w: route %s rate limit needs a positive window and max", ErrInvalidRequest, r.Path)
	}
	if r.Method != "" && r.Method != MethodAny && !isKnownMethod(strings.ToUpper(r.Method)) {
		return fmt.Errorf("%w: route %s has unknown method %q", ErrInvalidRequest, r.Path, r.Method)
	}
	return nil
}

// Prefix is the literal part of the pattern, without the trailing wildcard.
func (r *RouteConfig) Prefix() string {
	p := strings.TrimSuffix(r.Path, "*")
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func (r *RouteConfig) IsWildcard() bool {
	return strings.HasSuffix(r.Path, "/*")
}

// RouterPattern translates the declared pattern into gin's catch-all syntax.
func (r *RouteConfig) RouterPattern() string {
	if r.IsWildcard() {
		return strings.TrimSuffix(r.Path, "*") + "*path"
	}
	return r.Path
}

func (r *RouteConfig) AnyMethod() bool {
	return r.Method == "" || r.Method == MethodAny
}

// DownstreamPath strips StripPrefix from the inbound path. The result
// always starts with "/".
func (r *RouteConfig) DownstreamPath(requestPath string) string {
	p := requestPath
	if r.StripPrefix != "" && strings.HasPrefix(p, r.StripPrefix) {
		p = strings.TrimPrefix(p, r.StripPrefix)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// ValidateRoutes rejects invalid entries and duplicate method/pattern pairs.
func ValidateRoutes(routes []RouteConfig) error {
	seen := make(map[string]struct{}, len(routes))
	var errs []error
	for i := range routes {
		if err := routes[i].Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToUpper(routes[i].Method) + " " + routes[i].Path
		if _, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%w: duplicate route %s", ErrInvalidRequest, key))
		}
		seen[key] = struct{}{}
	}
	return errors.Join(errs...)
}

func isKnownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

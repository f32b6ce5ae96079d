package domain

import "strings"

type ServiceStatus string

const (
	StatusActive   ServiceStatus = "active"
	StatusInactive ServiceStatus = "inactive"
)

const DefaultHealthCheckPath = "/health"

type Endpoint struct {
	Path   string `json:"path"`
	Method string `json:"method"`
	Auth   bool   `json:"auth"`
}

// ServiceInfo is the registry record for one registered instance of a
// logical service.
type ServiceInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Status      ServiceStatus `json:"status"`
	HealthCheck string        `json:"healthCheck"`
	Version     string        `json:"version"`
	Endpoints   []Endpoint    `json:"endpoints"`
}

func (s *ServiceInfo) IsActive() bool {
	return s.Status == StatusActive
}

func (s *ServiceInfo) HealthURL() string {
	path := s.HealthCheck
	if path == "" {
		path = DefaultHealthCheckPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(s.URL, "/") + path
}

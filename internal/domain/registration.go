package domain

import (
	"errors"
	"net/url"
	"strconv"
	"time"
)

type RegisterRequest struct {
	Name        string     `json:"name" binding:"required"`
	URL         string     `json:"url" binding:"required"`
	HealthCheck string     `json:"healthCheck"`
	Version     string     `json:"version"`
	Weight      int        `json:"weight"`
	Endpoints   []Endpoint `json:"endpoints"`
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	if r.HealthCheck == "" {
		r.HealthCheck = DefaultHealthCheckPath
	}
	if r.Weight <= 0 {
		r.Weight = 1
	}
	return nil
}

// InstanceID derives the instance id from the service name and the
// registration time.
func (r *RegisterRequest) InstanceID(now time.Time) string {
	return r.Name + strconv.FormatInt(now.UnixNano(), 10)
}

func (r *RegisterRequest) ServiceInfo(id string) *ServiceInfo {
	return &ServiceInfo{
		ID:          id,
		Name:        r.Name,
		URL:         r.URL,
		Status:      StatusActive,
		HealthCheck: r.HealthCheck,
		Version:     r.Version,
		Endpoints:   r.Endpoints,
	}
}

type RegisterResponse struct {
	Success    bool   `json:"success"`
	InstanceID string `json:"instanceId"`
	Service    string `json:"service"`
}

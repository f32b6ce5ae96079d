package client

import "fmt"

type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description,omitempty"`
}

type RegisterRequest struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	HealthCheck string     `json:"healthCheck,omitempty"`
	Version     string     `json:"version,omitempty"`
	Weight      int        `json:"weight,omitempty"`
	Endpoints   []Endpoint `json:"endpoints,omitempty"`
}

type RegisterResponse struct {
	Success    bool   `json:"success"`
	InstanceID string `json:"instanceId"`
	Service    string `json:"service"`
}

// RejectedError is a 4xx answer from the gateway. It is not retried.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request (%d): %s", e.Status, e.Message)
}

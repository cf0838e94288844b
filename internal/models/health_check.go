package models

import "time"

type HealthCheck struct {
	Status      string            `json:"status"`
	ModelLoaded bool              `json:"model_loaded"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
}

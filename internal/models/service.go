package models

type Service struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
}

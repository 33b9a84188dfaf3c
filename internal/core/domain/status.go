package domain

// ServerStatus reports how far the query server has loaded.
type ServerStatus struct {
	State     string `json:"state"`
	Ready     bool   `json:"ready"`
	Documents int    `json:"documents"`
	Dimension int    `json:"dimension"`
}

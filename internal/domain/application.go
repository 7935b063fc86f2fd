package domain

// Status is the terminal state of a team's deployment, persisted on the
// application record after every task that touches the container runtime.
type Status string

const (
	StatusRunning                    Status = "running"
	StatusExited                     Status = "exited"
	StatusInvalidParameter           Status = "invalid_parameter"
	StatusInvalidRegistryCredentials Status = "invalid_registry_credentials"
	StatusInternalError              Status = "internal_error"
)

// Application is the durable record for one team's deployment, keyed by
// TeamID. Field presence follows the table in the data model: most fields
// are only set once a task has observed the container runtime.
type Application struct {
	TeamID         string `json:"team_id" redis:"team_id"`
	Subdomain      string `json:"subdomain" redis:"subdomain"`
	ImageName      string `json:"image_name" redis:"image_name"`
	ContainerID    string `json:"container_id,omitempty" redis:"container_id"`
	ContainerName  string `json:"container_name,omitempty" redis:"container_name"`
	Route          string `json:"route,omitempty" redis:"route"`
	Status         string `json:"status,omitempty" redis:"status"`
	Error          string `json:"error,omitempty" redis:"error"`
	Logs           string `json:"logs,omitempty" redis:"logs"`
	LogsUpdatedAt  string `json:"logs_updated_at,omitempty" redis:"logs_updated_at"`
	StartedAt      string `json:"started_at,omitempty" redis:"started_at"`
}

// HasError reports whether the record carries a populated error field,
// mirroring the "remove error field if not present on the incoming record"
// save rule in the state store contract.
func (a *Application) HasError() bool {
	return a.Error != ""
}

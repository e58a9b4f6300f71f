package store

import "time"

// Role values for Token/User.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func IsRoleValid(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// Server status values.
const (
	ServerOnline  = "online"
	ServerOffline = "offline"
	ServerUnknown = "unknown"
)

// Application status values.
const (
	AppPending   = "pending"
	AppDeploying = "deploying"
	AppRunning   = "running"
	AppStopped   = "stopped"
	AppFailed    = "failed"
)

// Build strategies.
const (
	BuildDockerfile     = "dockerfile"
	BuildNixpacks       = "nixpacks"
	BuildDockerCompose   = "docker_compose"
)

// Deployment status values and the pipeline order they advance through.
const (
	DeployQueued    = "queued"
	DeployCloning   = "cloning"
	DeployBuilding  = "building"
	DeployDeploying = "deploying"
	DeployRunning   = "running"
	DeployFailed    = "failed"
	DeployCancelled = "cancelled"
)

// IsTerminalDeploymentStatus reports whether status is one of the three
// terminal states a Deployment cannot leave.
func IsTerminalDeploymentStatus(status string) bool {
	switch status {
	case DeployRunning, DeployFailed, DeployCancelled:
		return true
	default:
		return false
	}
}

// Deployment trigger kinds.
const (
	TriggerManual  = "manual"
	TriggerWebhook = "webhook"
	TriggerRetry   = "retry"
)

// Health status values.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// Webhook delivery status values.
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

// Webhook providers.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// User is an identity record; login/registration themselves are out of
// scope (§1) and owned by the external transport layer.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Token is a bearer credential used by the minimal in-scope auth middleware
// (full session/login handling is an external collaborator per §1).
type Token struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Hash       string     `json:"-"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Server is a deployment target.
type Server struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Host           string     `json:"host"`
	Port           int        `json:"port"`
	Username       string     `json:"username"`
	SSHPrivateKey  *string    `json:"-"` // encrypted at rest, never serialized
	IsLocal        bool       `json:"is_local"`
	Status         string     `json:"status"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Application is the unit the orchestrator deploys.
type Application struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	ServerID       int64     `json:"server_id"`
	GitURL         *string   `json:"git_url,omitempty"`
	GitBranch      *string   `json:"git_branch,omitempty"`
	BuildStrategy  string    `json:"build_strategy"`
	DockerfilePath *string   `json:"dockerfile_path,omitempty"`
	Port           *int      `json:"port,omitempty"`
	AutoDeploy     bool      `json:"auto_deploy"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EnvironmentVariable holds a single (application, key) -> ciphertext pair.
// Value is the SecretBox-sealed stored form; plaintext never touches this
// struct outside of the brief window a deploy decrypts it for injection.
type EnvironmentVariable struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	Key           string    `json:"key"`
	Value         string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Domain is a hostname routed to an application.
type Domain struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	Hostname      string    `json:"hostname"`
	IsPrimary     bool      `json:"is_primary"`
	SSLActive     bool      `json:"ssl_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeployKey is the per-application SSH key pair used only for git read
// access. PrivateKey is SecretBox-sealed.
type DeployKey struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	PublicKey     string    `json:"public_key"`
	PrivateKey    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Deployment is one pipeline run.
type Deployment struct {
	ID                int64      `json:"id"`
	ApplicationID     int64      `json:"application_id"`
	ServerID          int64      `json:"server_id"`
	Trigger           string     `json:"trigger"`
	CommitSHA         *string    `json:"commit_sha,omitempty"`
	CommitMessage     *string    `json:"commit_message,omitempty"`
	Status            string     `json:"status"`
	BuildLog          string     `json:"build_log"`
	BuildLogTruncated bool       `json:"build_log_truncated"`
	ContainerID       *string    `json:"container_id,omitempty"`
	ImageTag          string     `json:"image_tag"`
	HostPort          *int       `json:"host_port,omitempty"`
	CancelRequested   bool       `json:"-"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HealthCheck is the per-application probe configuration. Defaults mirror
// spec.md §4.7's tick interval and thresholds.
type HealthCheck struct {
	ApplicationID      int64 `json:"application_id"`
	Path               string `json:"path"`
	IntervalSeconds    int    `json:"interval_seconds"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	HealthyThreshold   int    `json:"healthy_threshold"`
	UnhealthyThreshold int    `json:"unhealthy_threshold"`
}

// DefaultHealthCheck returns the HealthCheck applied when an application has
// none configured (spec.md §3: "Defaults apply if absent").
func DefaultHealthCheck(applicationID int64) HealthCheck {
	return HealthCheck{
		ApplicationID:      applicationID,
		Path:               "/",
		IntervalSeconds:    15,
		TimeoutSeconds:     5,
		HealthyThreshold:   2,
		UnhealthyThreshold: 3,
	}
}

// HealthCheckResult is one time-indexed probe outcome.
type HealthCheckResult struct {
	ID              int64     `json:"id"`
	ApplicationID   int64     `json:"application_id"`
	ContainerID     string    `json:"container_id"`
	Status          string    `json:"status"`
	ResponseTimeMs  int       `json:"response_time_ms"`
	StatusCode      *int      `json:"status_code,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// ContainerStats is one time-indexed resource sample.
type ContainerStats struct {
	ID             int64     `json:"id"`
	ContainerID    string    `json:"container_id"`
	ApplicationID  *int64    `json:"application_id,omitempty"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryMB       float64   `json:"memory_mb"`
	MemoryLimitMB  float64   `json:"memory_limit_mb"`
	NetworkRxMB    float64   `json:"network_rx_mb"`
	NetworkTxMB    float64   `json:"network_tx_mb"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// StatsRetention is how long ContainerStats rows are kept (spec.md §4.7).
const StatsRetention = 24 * time.Hour

// Webhook is the at-most-one-per-app push-event receiver configuration.
type Webhook struct {
	ApplicationID int64     `json:"application_id"`
	Provider      string    `json:"provider"`
	Secret        string    `json:"-"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// WebhookDelivery is an append-only record of one received webhook request.
type WebhookDelivery struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	Provider      string    `json:"provider"`
	EventType     string    `json:"event_type"`
	Branch        *string   `json:"branch,omitempty"`
	CommitSHA     *string   `json:"commit_sha,omitempty"`
	CommitMessage *string   `json:"commit_message,omitempty"`
	Author        *string   `json:"author,omitempty"`
	Status        string    `json:"status"`
	DeploymentID  *int64    `json:"deployment_id,omitempty"`
	DeliveredAt   time.Time `json:"delivered_at"`
}

package domain

import "time"

// Remote status values reported by the model-building API.
const (
	StatusBuilding          = "BUILDING"
	StatusReady             = "READY"
	StatusReadyBasicTesting = "READY_BASIC_TESTING"
	StatusNotBuilt          = "NOT_BUILT"
	StatusFailed            = "FAILED"

	ImportInProgress = "IN_PROGRESS"
	ImportComplete   = "COMPLETE"
	ImportFailed     = "FAILED"

	ExportInProgress = "IN_PROGRESS"
	ExportReady      = "READY"
	ExportFailed     = "FAILED"
)

// IntentVersion pins an intent to an immutable version when building a bot.
type IntentVersion struct {
	IntentName    string `json:"intentName"`
	IntentVersion string `json:"intentVersion"`
}

// IntentState is the service view of an intent.
type IntentState struct {
	Name     string
	Version  string
	Checksum string
}

// ImportState is the service view of an import job.
type ImportState struct {
	ID             string
	Name           string
	Status         string
	FailureReasons []string
}

// BotState is the service view of a bot version or alias.
type BotState struct {
	Name          string
	Version       string
	Status        string
	Checksum      string
	FailureReason string
}

// BotBuild carries everything needed to rebuild the mutable head of a bot.
type BotBuild struct {
	Definition BotDefinition
	Intents    []IntentVersion
	Checksum   string
}

// AliasState is the service view of a bot alias.
type AliasState struct {
	Name       string
	BotName    string
	BotVersion string
	Checksum   string
}

// AliasUpdate creates or repoints an alias. Checksum is empty when creating.
type AliasUpdate struct {
	Name        string
	BotName     string
	BotVersion  string
	Description string
	Checksum    string
}

// ExportState is the service view of a bot export.
type ExportState struct {
	Name          string
	Version       string
	Status        string
	URL           string
	FailureReason string
}

// EndpointPermission authorizes the NLU service to invoke one function.
type EndpointPermission struct {
	FunctionName string
	StatementID  string
	Action       string
	Principal    string
	SourceARN    string
}

// Deployment outcome values stored in history records.
const (
	DeploymentSucceeded = "SUCCEEDED"
	DeploymentUnchanged = "UNCHANGED"
	DeploymentFailed    = "FAILED"
)

// DeploymentRecord is one finished deployment as kept in the history table.
type DeploymentRecord struct {
	PK             string
	SK             string
	DeploymentID   string
	BotName        string
	Alias          string
	BotVersion     string
	Outcome        string
	ErrorCode      string
	IntentVersions []IntentVersion
	FinishedAt     time.Time
	TTL            int64
}

package models

// DriveType identifies which cloud-storage backend a Drive record targets.
type DriveType string

const (
	DriveTypeS3    DriveType = "s3"
	DriveTypeAzure DriveType = "azure"
)

// Drive is a configured storage destination a user's tasks resolve against.
// Concrete provider behavior lives behind internal/driveprovider; this is
// just the persisted identity and connection parameters.
type Drive struct {
	ID       string            `json:"id"`
	OwnerID  string            `json:"owner_id"`
	Type     DriveType         `json:"type"`
	Name     string            `json:"name"`
	Bucket   string            `json:"bucket"`
	Region   string            `json:"region,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

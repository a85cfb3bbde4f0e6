package prod

import "time"

const (
	GOOGLE_STORAGE_HOST = "https://storage.googleapis.com"
	DynamoDBRegion      = "us-east-2"
	S3Region            = "auto"
)

// Separation
const (
	WorkerCount      = 2
	JobTimeout       = 15 * time.Minute
	MaxInputDuration = 10 * time.Minute
	Retention        = 72 * time.Hour
	JobLease         = 2 * time.Minute
)

const (
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	Port            = ":5000"
)

package dev

import (
	"path"
	"time"

	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/config/local"
)

// DynamoDB
const (
	DynamoAccessKeyID     = "local"
	DynamoSecretAccessKey = "local"
	DynamoDBHost          = "http://localhost:8000"
	DynamoDBRegion        = "localhost"
)

var DynamoConfig = config.LocalDynamo{
	AccessKeyID:     DynamoAccessKeyID,
	SecretAccessKey: DynamoSecretAccessKey,
	Region:          DynamoDBRegion,
	Host:            DynamoDBHost,
}

// RabbitMQ
const (
	RabbitMQHost            = "amqp://localhost:5672"
	RabbitMQEventsQueueName = "stemsplit-job-events-dev"
	RabbitMQIntakeQueueName = "stemsplit-job-intake-dev"
)

// Separation
const (
	WorkerCount      = 2
	JobTimeout       = 10 * time.Minute
	MaxInputDuration = 10 * time.Minute
	Retention        = 24 * time.Hour
	JobLease         = time.Minute
)

func WorkingDirPath() string {
	return path.Join(local.ProjectRoot(), "/src/worker/wd")
}

func DiskStorageConfig() config.DiskStorage {
	return config.DiskStorage{
		RootDir:    path.Join(local.ProjectRoot(), "/src/worker/storage-dev"),
		BucketName: "stemsplit-dev",
	}
}

func SQLiteRecordStoreConfig() config.SQLiteRecordStore {
	return config.SQLiteRecordStore{
		Path: path.Join(local.ProjectRoot(), "/src/worker/storage-dev/jobs.db"),
	}
}

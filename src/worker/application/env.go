package application

import (
	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/config/dev"
	"github.com/veedubyou/stemsplit/src/shared/config/envvar"
	"github.com/veedubyou/stemsplit/src/shared/config/prod"
	"github.com/veedubyou/stemsplit/src/shared/lib/env"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/orchestrator"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

// ConfigFromEnv reads the separation stack's configuration for the current
// environment. Missing required variables panic.
func ConfigFromEnv() Config {
	switch env.Get() {
	case env.Production:
		return Config{
			RecordStoreConfig: config.DynamoRecordStore{
				Dynamo: config.ProdDynamo{
					AccessKeyID:     envvar.MustGet(envvar.AWS_ACCESS_KEY_ID),
					SecretAccessKey: envvar.MustGet(envvar.AWS_SECRET_ACCESS_KEY),
					Region:          prod.DynamoDBRegion,
				},
			},
			CloudStorageConfig:      prodCloudStorage(),
			RabbitMQURL:             envvar.GetOr(envvar.RABBITMQ_URL, ""),
			RabbitMQEventsQueueName: envvar.GetOr(envvar.RABBITMQ_EVENTS_QUEUE_NAME, ""),
			RabbitMQIntakeQueueName: envvar.GetOr(envvar.RABBITMQ_INTAKE_QUEUE_NAME, ""),
			FFmpegBinPath:           envvar.MustGet(envvar.FFMPEG_BIN_PATH),
			WorkingDirPath:          envvar.MustGet(envvar.WORKING_DIR_PATH),
			ModelName:               envvar.GetOr(envvar.SEPARATION_MODEL, separation.DefaultModelName),
			OutputFormat:            envvar.GetOr(envvar.OUTPUT_FORMAT, string(codec.WAV)),
			MaxInputDuration:        envvar.GetDurationOr(envvar.MAX_INPUT_DURATION, prod.MaxInputDuration),
			Orchestrator: orchestrator.Config{
				Workers:    envvar.GetIntOr(envvar.WORKER_COUNT, prod.WorkerCount),
				JobTimeout: envvar.GetDurationOr(envvar.JOB_TIMEOUT, prod.JobTimeout),
				Retention:  envvar.GetDurationOr(envvar.JOB_RETENTION, prod.Retention),
				Lease:      envvar.GetDurationOr(envvar.JOB_LEASE, prod.JobLease),
				InstanceID: envvar.GetOr(envvar.INSTANCE_ID, ""),
			},
		}

	case env.Development:
		return Config{
			RecordStoreConfig:       dev.SQLiteRecordStoreConfig(),
			CloudStorageConfig:      dev.DiskStorageConfig(),
			RabbitMQURL:             envvar.GetOr(envvar.RABBITMQ_URL, ""),
			RabbitMQEventsQueueName: dev.RabbitMQEventsQueueName,
			RabbitMQIntakeQueueName: dev.RabbitMQIntakeQueueName,
			FFmpegBinPath:           envvar.GetOr(envvar.FFMPEG_BIN_PATH, config.FFmpegPath()),
			WorkingDirPath:          envvar.GetOr(envvar.WORKING_DIR_PATH, dev.WorkingDirPath()),
			ModelName:               envvar.GetOr(envvar.SEPARATION_MODEL, separation.DefaultModelName),
			OutputFormat:            envvar.GetOr(envvar.OUTPUT_FORMAT, string(codec.WAV)),
			MaxInputDuration:        envvar.GetDurationOr(envvar.MAX_INPUT_DURATION, dev.MaxInputDuration),
			Orchestrator: orchestrator.Config{
				Workers:    envvar.GetIntOr(envvar.WORKER_COUNT, dev.WorkerCount),
				JobTimeout: envvar.GetDurationOr(envvar.JOB_TIMEOUT, dev.JobTimeout),
				Retention:  envvar.GetDurationOr(envvar.JOB_RETENTION, dev.Retention),
				Lease:      envvar.GetDurationOr(envvar.JOB_LEASE, dev.JobLease),
				InstanceID: envvar.GetOr(envvar.INSTANCE_ID, ""),
			},
		}

	default:
		panic("Unexpected environment")
	}
}

func prodCloudStorage() config.CloudStorage {
	switch backend := envvar.GetOr(envvar.STORAGE_BACKEND, "gcs"); backend {
	case "gcs":
		return config.ProdCloudStorage{
			StorageHost: prod.GOOGLE_STORAGE_HOST,
			SecretKey:   envvar.MustGet(envvar.GOOGLE_CLOUD_KEY),
			BucketName:  envvar.MustGet(envvar.GOOGLE_CLOUD_STORAGE_BUCKET_NAME),
		}

	case "s3":
		return config.S3CloudStorage{
			StorageHost:     envvar.MustGet(envvar.S3_PUBLIC_HOST),
			Endpoint:        envvar.MustGet(envvar.S3_ENDPOINT),
			Region:          prod.S3Region,
			AccessKeyID:     envvar.MustGet(envvar.S3_ACCESS_KEY_ID),
			SecretAccessKey: envvar.MustGet(envvar.S3_SECRET_ACCESS_KEY),
			BucketName:      envvar.MustGet(envvar.S3_BUCKET_NAME),
		}

	default:
		panic("Unexpected storage backend " + backend)
	}
}

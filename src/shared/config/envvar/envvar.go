package envvar

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ENVIRONMENT                      = "ENVIRONMENT"
	AWS_ACCESS_KEY_ID                = "AWS_ACCESS_KEY_ID"
	AWS_SECRET_ACCESS_KEY            = "AWS_SECRET_ACCESS_KEY"
	RABBITMQ_URL                     = "RABBITMQ_URL"
	RABBITMQ_EVENTS_QUEUE_NAME       = "RABBITMQ_EVENTS_QUEUE_NAME"
	RABBITMQ_INTAKE_QUEUE_NAME       = "RABBITMQ_INTAKE_QUEUE_NAME"
	STORAGE_BACKEND                  = "STORAGE_BACKEND"
	GOOGLE_CLOUD_KEY                 = "GOOGLE_CLOUD_KEY"
	GOOGLE_CLOUD_STORAGE_BUCKET_NAME = "GOOGLE_CLOUD_STORAGE_BUCKET_NAME"
	S3_ENDPOINT                      = "S3_ENDPOINT"
	S3_PUBLIC_HOST                   = "S3_PUBLIC_HOST"
	S3_ACCESS_KEY_ID                 = "S3_ACCESS_KEY_ID"
	S3_SECRET_ACCESS_KEY             = "S3_SECRET_ACCESS_KEY"
	S3_BUCKET_NAME                   = "S3_BUCKET_NAME"
	AUTH_PROVIDER                    = "AUTH_PROVIDER"
	GOOGLE_CLIENT_ID                 = "GOOGLE_CLIENT_ID"
	FIREBASE_PROJECT_ID              = "FIREBASE_PROJECT_ID"
	ALLOWED_FE_ORIGINS               = "ALLOWED_FE_ORIGINS"
	FFMPEG_BIN_PATH                  = "FFMPEG_BIN_PATH"
	WORKING_DIR_PATH                 = "WORKING_DIR_PATH"
	SEPARATION_MODEL                 = "SEPARATION_MODEL"
	OUTPUT_FORMAT                    = "OUTPUT_FORMAT"
	WORKER_COUNT                     = "WORKER_COUNT"
	JOB_TIMEOUT                      = "JOB_TIMEOUT"
	MAX_INPUT_DURATION               = "MAX_INPUT_DURATION"
	JOB_RETENTION                    = "JOB_RETENTION"
	JOB_LEASE                        = "JOB_LEASE"
	INSTANCE_ID                      = "INSTANCE_ID"
	PORT                             = "PORT"
)

func MustGet(key string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet {
		panic(fmt.Sprintf("No env variable found for key %s", key))
	}

	if val == "" {
		panic(fmt.Sprintf("Env variable is empty for key %s", key))
	}

	return val
}

func GetOr(key string, fallback string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet || val == "" {
		return fallback
	}

	return val
}

func GetIntOr(key string, fallback int) int {
	val := GetOr(key, "")
	if val == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		panic(fmt.Sprintf("Env variable %s is not an integer: %s", key, val))
	}

	return parsed
}

func GetDurationOr(key string, fallback time.Duration) time.Duration {
	val := GetOr(key, "")
	if val == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		panic(fmt.Sprintf("Env variable %s is not a duration: %s", key, val))
	}

	return parsed
}

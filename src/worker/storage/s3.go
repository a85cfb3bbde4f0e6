package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
)

var _ FileStore = S3FileStore{}

// S3FileStore works against S3 and anything speaking its API, R2 included.
type S3FileStore struct {
	client *s3.Client
	paths  storagepath.Generator
}

func NewS3FileStore(ctx context.Context, storageConfig config.S3CloudStorage) (S3FileStore, error) {
	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(storageConfig.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			storageConfig.AccessKeyID,
			storageConfig.SecretAccessKey,
			"",
		)),
	}

	if storageConfig.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: storageConfig.Endpoint,
			}, nil
		})
		options = append(options, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return S3FileStore{}, cerr.Wrap(err).Error("Failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return S3FileStore{
		client: client,
		paths:  storagepath.Generator{Host: storageConfig.StorageHost},
	}, nil
}

func (s S3FileStore) GetFile(ctx context.Context, fileURL string) ([]byte, error) {
	bucket, key, err := s.split(fileURL)
	if err != nil {
		return nil, err
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return nil, mark.Wrap(err, FileNotFoundMark, "No object at "+fileURL)
	}
	if err != nil {
		return nil, cerr.Field("url", fileURL).Wrap(err).Error("Failed to get object")
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, cerr.Field("url", fileURL).Wrap(err).Error("Failed to read object body")
	}

	return data, nil
}

func (s S3FileStore) WriteFile(ctx context.Context, fileURL string, data []byte) error {
	bucket, key, err := s.split(fileURL)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cerr.Field("url", fileURL).Wrap(err).Error("Failed to put object")
	}

	return nil
}

func (s S3FileStore) DeleteFile(ctx context.Context, fileURL string) error {
	bucket, key, err := s.split(fileURL)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return cerr.Field("url", fileURL).Wrap(err).Error("Failed to delete object")
	}

	return nil
}

func (s S3FileStore) Exists(ctx context.Context, fileURL string) (bool, error) {
	bucket, key, err := s.split(fileURL)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if isS3NotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, cerr.Field("url", fileURL).Wrap(err).Error("Failed to head object")
	}

	return true, nil
}

func (s S3FileStore) split(fileURL string) (string, string, error) {
	bucket, key, err := s.paths.Split(fileURL)
	if err != nil {
		return "", "", mark.Wrap(err, FileNotFoundMark, "URL is not in this store")
	}

	return bucket, key, nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

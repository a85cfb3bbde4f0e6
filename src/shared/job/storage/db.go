package jobstorage

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/cockroachdb/errors"
	"github.com/guregu/dynamo"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	dynamolib "github.com/veedubyou/stemsplit/src/shared/lib/dynamo"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
)

var _ jobentity.Store = DB{}

var (
	// a record may be written until it reaches a terminal state
	unfinishedCondition  = "attribute_not_exists($) OR $ IN (?, ?)"
	existingJobCondition = "attribute_exists(" + idKey + ")"
)

// DB keeps job records in DynamoDB.
type DB struct {
	dynamoDB dynamolib.DynamoDBWrapper
}

func NewDB(dynamoDB dynamolib.DynamoDBWrapper) DB {
	return DB{
		dynamoDB: dynamoDB,
	}
}

func CreateTable(ctx context.Context, dynamoDB dynamolib.DynamoDBWrapper) error {
	err := dynamoDB.CreateTable(JobsTable, record{}).
		Project(ownerIndex, dynamo.AllProjection).
		RunWithContext(ctx)
	if err != nil {
		return errors.Wrap(err, "Failed to create the jobs table")
	}

	return nil
}

func (d DB) PutJob(ctx context.Context, job jobentity.Job) error {
	if job.ID == "" {
		return mark.Message(IDEmptyMark, "Job ID is not defined")
	}

	err := d.dynamoDB.Table(JobsTable).
		Put(toRecord(job).toMap()).
		If(unfinishedCondition, idKey, stateKey, string(jobentity.Queued), string(jobentity.Running)).
		RunWithContext(ctx)
	if err != nil {
		if conditionalCheckFailed(err) {
			return mark.Wrap(err, JobFinishedMark, "Job record is already final")
		}

		return mark.Wrap(err, DefaultErrorMark, "Failed to put the job in the DB")
	}

	return nil
}

func (d DB) RenameJob(ctx context.Context, jobID string, inputName string) error {
	err := d.dynamoDB.Table(JobsTable).
		Update(idKey, jobID).
		Set(inputNameKey, inputName).
		If(existingJobCondition).
		RunWithContext(ctx)
	if err != nil {
		if conditionalCheckFailed(err) {
			return mark.Wrap(err, JobNotFound, "Failed to find job to rename")
		}

		return mark.Wrap(err, DefaultErrorMark, "Failed to rename job")
	}

	return nil
}

func (d DB) GetJob(ctx context.Context, jobID string) (jobentity.Job, error) {
	item := map[string]*dynamodb.AttributeValue{}
	err := d.dynamoDB.Table(JobsTable).
		Get(idKey, jobID).
		OneWithContext(ctx, &item)

	if err != nil {
		switch {
		case errors.Is(err, dynamo.ErrNotFound):
			return jobentity.Job{}, mark.Wrap(err, JobNotFound, "Job is not found")
		default:
			return jobentity.Job{}, mark.Wrap(err, DefaultErrorMark, "Failed to fetch job")
		}
	}

	return unmarshalItem(item)
}

func (d DB) ListJobsForOwner(ctx context.Context, owner string) ([]jobentity.Job, error) {
	records := []record{}
	err := d.dynamoDB.Table(JobsTable).
		Get(ownerKey, owner).
		Index(ownerIndex).
		AllWithContext(ctx, &records)
	if err != nil {
		return nil, mark.Wrap(err, DefaultErrorMark, "Failed to query jobs for owner")
	}

	jobs := toEntities(records)
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

func (d DB) ListUnfinishedJobs(ctx context.Context) ([]jobentity.Job, error) {
	records := []record{}
	err := d.dynamoDB.Table(JobsTable).
		Scan().
		Filter("$ IN (?, ?)", stateKey, string(jobentity.Queued), string(jobentity.Running)).
		AllWithContext(ctx, &records)
	if err != nil {
		return nil, mark.Wrap(err, DefaultErrorMark, "Failed to scan for unfinished jobs")
	}

	jobs := toEntities(records)
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	return jobs, nil
}

func (d DB) DeleteJob(ctx context.Context, jobID string) error {
	err := d.dynamoDB.Table(JobsTable).
		Delete(idKey, jobID).
		RunWithContext(ctx)
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to delete job")
	}

	return nil
}

func unmarshalItem(item map[string]*dynamodb.AttributeValue) (jobentity.Job, error) {
	for _, key := range []string{idKey, ownerKey, stateKey} {
		if err := dynamolib.ValidateStringField(item, key); err != nil {
			return jobentity.Job{}, mark.Wrap(err, UnmarshalMark, "Job item is malformed")
		}
	}

	rec := record{}
	if err := dynamo.UnmarshalItem(item, &rec); err != nil {
		return jobentity.Job{}, mark.Wrap(err, UnmarshalMark, "Failed to unmarshal job item")
	}

	return rec.toEntity(), nil
}

func conditionalCheckFailed(err error) bool {
	_, ok := err.(*dynamodb.ConditionalCheckFailedException)
	return ok
}

func toEntities(records []record) []jobentity.Job {
	jobs := make([]jobentity.Job, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, rec.toEntity())
	}

	return jobs
}

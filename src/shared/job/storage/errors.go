package jobstorage

import "github.com/cockroachdb/errors/domains"

var (
	JobNotFound      = domains.New("job_not_found")
	IDEmptyMark      = domains.New("job_id_empty")
	UnmarshalMark    = domains.New("job_unmarshal_fail")
	JobFinishedMark  = domains.New("job_already_finished")
	DefaultErrorMark = domains.New("default_error")
)

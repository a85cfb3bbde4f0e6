package config

// CloudStorage selects where job inputs and stem outputs live.
type CloudStorage interface {
	GetStorageHost() string
	GetBucket() string
}

var _ CloudStorage = ProdCloudStorage{}

// ProdCloudStorage is Google Cloud Storage.
type ProdCloudStorage struct {
	StorageHost string
	SecretKey   string
	BucketName  string
}

func (p ProdCloudStorage) GetStorageHost() string {
	return p.StorageHost
}

func (p ProdCloudStorage) GetBucket() string {
	return p.BucketName
}

var _ CloudStorage = LocalCloudStorage{}

// LocalCloudStorage is a fake GCS server for development.
type LocalCloudStorage struct {
	StorageHost  string
	HostEndpoint string
	BucketName   string
}

func (l LocalCloudStorage) GetStorageHost() string {
	return l.StorageHost
}

func (l LocalCloudStorage) GetBucket() string {
	return l.BucketName
}

var _ CloudStorage = S3CloudStorage{}

// S3CloudStorage is any S3 compatible object store, R2 included.
type S3CloudStorage struct {
	StorageHost     string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

func (s S3CloudStorage) GetStorageHost() string {
	return s.StorageHost
}

func (s S3CloudStorage) GetBucket() string {
	return s.BucketName
}

var _ CloudStorage = DiskStorage{}

// DiskStorage keeps everything on the local filesystem under RootDir.
type DiskStorage struct {
	RootDir    string
	BucketName string
}

func (d DiskStorage) GetStorageHost() string {
	return "file://" + d.RootDir
}

func (d DiskStorage) GetBucket() string {
	return d.BucketName
}

package config

// Dynamo selects the DynamoDB the job records table lives in.
type Dynamo interface {
	DynamoConfig()
}

var _ Dynamo = ProdDynamo{}

// ProdDynamo is the hosted service.
type ProdDynamo struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

func (p ProdDynamo) DynamoConfig() {}

var _ Dynamo = LocalDynamo{}

// LocalDynamo is a DynamoDB Local container. The jobs table is created on
// connect if it's missing.
type LocalDynamo struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Host            string
}

func (l LocalDynamo) DynamoConfig() {}

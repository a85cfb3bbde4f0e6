package dynamolib

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/guregu/dynamo"
	"github.com/veedubyou/stemsplit/src/shared/config"
)

var encoder = dynamodbattribute.NewEncoder(func(e *dynamodbattribute.Encoder) {
	e.MarshalOptions.EnableEmptyCollections = true
	e.NullEmptyString = false
	e.NullEmptyByteSlice = false
})

type putMap map[string]any

func (p putMap) MarshalDynamo() (*dynamodb.AttributeValue, error) {
	var fields map[string]any = p
	return encoder.Encode(fields)
}

func NewDynamoDBWrapper(db *dynamo.DB) DynamoDBWrapper {
	return DynamoDBWrapper{DB: db}
}

// Connect builds a client for either the hosted service or a local
// DynamoDB container.
func Connect(dynamoConfig config.Dynamo) DynamoDBWrapper {
	dbSession := session.Must(session.NewSession())

	var dbConfig *aws.Config

	switch t := dynamoConfig.(type) {
	case config.ProdDynamo:
		dbConfig = aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials(
				t.AccessKeyID,
				t.SecretAccessKey,
				"",
			)).
			WithRegion(t.Region)

	case config.LocalDynamo:
		dbConfig = aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials(
				t.AccessKeyID,
				t.SecretAccessKey,
				"",
			)).
			WithRegion(t.Region).
			WithEndpoint(t.Host)

	default:
		panic("Unexpected dynamo config type")
	}

	return NewDynamoDBWrapper(dynamo.New(dbSession, dbConfig))
}

type DynamoDBWrapper struct {
	*dynamo.DB
}

type DynamoTableWrapper struct {
	dynamo.Table
}

func (d DynamoDBWrapper) Table(tableName string) DynamoTableWrapper {
	return DynamoTableWrapper{
		Table: d.DB.Table(tableName),
	}
}

// Put writes a plain map item. Empty strings and collections are stored as
// such instead of being dropped.
func (d DynamoTableWrapper) Put(input map[string]any) *dynamo.Put {
	return d.Table.Put(putMap(input))
}

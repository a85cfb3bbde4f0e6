package testing

import (
	"context"
	"net"
	"net/url"
	"time"

	. "github.com/onsi/gomega"
	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/config/dev"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	dynamolib "github.com/veedubyou/stemsplit/src/shared/lib/dynamo"
)

// DynamoDB
const (
	DynamoAccessKeyID     = dev.DynamoAccessKeyID
	DynamoSecretAccessKey = dev.DynamoSecretAccessKey
	DynamoDBHost          = dev.DynamoDBHost
)

func DynamoConfig(region string) config.LocalDynamo {
	return config.LocalDynamo{
		AccessKeyID:     DynamoAccessKeyID,
		SecretAccessKey: DynamoSecretAccessKey,
		Region:          region,
		Host:            DynamoDBHost,
	}
}

// DynamoAvailable reports whether a local DynamoDB is listening.
func DynamoAvailable() bool {
	return reachable(DynamoDBHost)
}

func MakeTestDB(testRegion string) dynamolib.DynamoDBWrapper {
	return dynamolib.Connect(DynamoConfig(testRegion))
}

func BeforeSuiteDB(testRegion string) dynamolib.DynamoDBWrapper {
	db := MakeTestDB(testRegion)
	DeleteAllTables(db)
	return db
}

func AfterSuiteDB(db dynamolib.DynamoDBWrapper) {
	DeleteAllTables(db)
}

func ResetDB(db dynamolib.DynamoDBWrapper) {
	DeleteAllTables(db)
	err := jobstorage.CreateTable(context.Background(), db)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
}

func DeleteAllTables(db dynamolib.DynamoDBWrapper) {
	tableResults := db.ListTables()
	tableNames := ExpectSuccess(tableResults.All())

	for _, tableName := range tableNames {
		err := db.Table(tableName).DeleteTable().Run()
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
	}
}

func reachable(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	conn, err := net.DialTimeout("tcp", parsed.Host, 500*time.Millisecond)
	if err != nil {
		return false
	}

	_ = conn.Close()
	return true
}

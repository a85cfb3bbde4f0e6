package config

// RecordStore selects the document store that receives job records.
type RecordStore interface {
	RecordStoreConfig()
}

var _ RecordStore = DynamoRecordStore{}

type DynamoRecordStore struct {
	Dynamo Dynamo
}

func (d DynamoRecordStore) RecordStoreConfig() {}

var _ RecordStore = SQLiteRecordStore{}

type SQLiteRecordStore struct {
	Path string
}

func (s SQLiteRecordStore) RecordStoreConfig() {}

package application

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/rabbitmq/amqp091-go"
	"github.com/veedubyou/stemsplit/src/shared/config"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	jobstorage "github.com/veedubyou/stemsplit/src/shared/job/storage"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	dynamolib "github.com/veedubyou/stemsplit/src/shared/lib/dynamo"
	"github.com/veedubyou/stemsplit/src/shared/lib/executor"
	"github.com/veedubyou/stemsplit/src/shared/lib/rabbitmq"
	"github.com/veedubyou/stemsplit/src/shared/lib/storagepath"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/intake"
	"github.com/veedubyou/stemsplit/src/worker/orchestrator"
	"github.com/veedubyou/stemsplit/src/worker/pipeline"
	"github.com/veedubyou/stemsplit/src/worker/separation"
	"github.com/veedubyou/stemsplit/src/worker/storage"
)

type Config struct {
	RecordStoreConfig  config.RecordStore  `validate:"required"`
	CloudStorageConfig config.CloudStorage `validate:"required"`

	// RabbitMQURL is optional. Without it no events are published and no
	// intake queue is consumed.
	RabbitMQURL             string
	RabbitMQEventsQueueName string `validate:"required_with=RabbitMQURL"`
	RabbitMQIntakeQueueName string

	FFmpegBinPath    string        `validate:"required"`
	WorkingDirPath   string        `validate:"required"`
	ModelName        string        `validate:"required"`
	OutputFormat     string        `validate:"required"`
	MaxInputDuration time.Duration `validate:"gte=0"`

	Orchestrator orchestrator.Config
}

// App is the separation stack: storage, codec, engine and the orchestrator
// driving them. Both the HTTP server and the headless worker run one.
type App struct {
	orchestrator *orchestrator.Orchestrator
	gateway      storage.Gateway
	engine       *separation.Engine
	intake       *intake.QueueWorker

	closers []func()
}

func NewApp(ctx context.Context, appConfig Config) (*App, error) {
	if err := validator.New().Struct(appConfig); err != nil {
		return nil, cerr.Wrap(err).Error("Invalid worker config")
	}

	app := &App{}
	built := false
	defer func() {
		if !built {
			app.close()
		}
	}()

	workingDir, err := working_dir.NewWorkingDir(appConfig.WorkingDirPath)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to prepare working dir")
	}

	release, err := workingDir.Claim()
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to claim working dir")
	}
	app.closers = append(app.closers, release)

	outputFormat, err := codec.ParseFormat(appConfig.OutputFormat)
	if err != nil {
		return nil, cerr.Field("output_format", appConfig.OutputFormat).Wrap(err).Error("Invalid output format")
	}

	model, err := separation.LoadModel(appConfig.ModelName)
	if err != nil {
		return nil, cerr.Field("model", appConfig.ModelName).Wrap(err).Error("Failed to load separation model")
	}
	app.engine = separation.NewEngine(model, appConfig.MaxInputDuration)

	fileStore, err := storage.NewFileStore(ctx, appConfig.CloudStorageConfig)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to create file store")
	}
	if closer, ok := fileStore.(io.Closer); ok {
		app.closers = append(app.closers, func() {
			_ = closer.Close()
		})
	}

	paths := storagepath.Generator{
		Host:   appConfig.CloudStorageConfig.GetStorageHost(),
		Bucket: appConfig.CloudStorageConfig.GetBucket(),
	}
	app.gateway = storage.NewGateway(fileStore, paths, workingDir)

	recordStore, err := newRecordStore(ctx, appConfig.RecordStoreConfig)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to create record store")
	}
	if closer, ok := recordStore.(io.Closer); ok {
		app.closers = append(app.closers, func() {
			_ = closer.Close()
		})
	}

	var publisher rabbitmq.Publisher
	if appConfig.RabbitMQURL != "" {
		queuePublisher, err := rabbitmq.NewQueuePublisher(appConfig.RabbitMQURL, appConfig.RabbitMQEventsQueueName)
		if err != nil {
			return nil, cerr.Wrap(err).Error("Failed to create event publisher")
		}
		app.closers = append(app.closers, func() {
			_ = queuePublisher.Close()
		})
		publisher = queuePublisher
	}

	ffmpeg := codec.NewFFmpeg(appConfig.FFmpegBinPath, executor.BinaryFileExecutor{})
	runner := pipeline.NewPipeline(
		app.gateway,
		codec.NewDecoder(ffmpeg, workingDir, model.Target()),
		app.engine,
		codec.NewEncoder(ffmpeg, workingDir),
		outputFormat,
	)

	app.orchestrator, err = orchestrator.NewOrchestrator(
		appConfig.Orchestrator,
		runner,
		app.gateway,
		recordStore,
		orchestrator.NewRecorder(recordStore, publisher),
	)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to create orchestrator")
	}

	if appConfig.RabbitMQURL != "" && appConfig.RabbitMQIntakeQueueName != "" {
		conn, err := amqp091.Dial(appConfig.RabbitMQURL)
		if err != nil {
			return nil, cerr.Wrap(err).Error("Failed to dial rabbitMQ for intake")
		}
		app.closers = append(app.closers, func() {
			_ = conn.Close()
		})

		app.intake, err = intake.NewQueueWorkerFromConnection(conn, appConfig.RabbitMQIntakeQueueName, app.orchestrator)
		if err != nil {
			return nil, cerr.Wrap(err).Error("Failed to create intake worker")
		}
	}

	log.WithFields(log.Fields{
		"model":         model.Name,
		"stems":         model.StemNames(),
		"output_format": outputFormat,
		"workers":       appConfig.Orchestrator.Workers,
	}).Info("Separation stack ready")

	built = true
	return app, nil
}

func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

func (a *App) Gateway() storage.Gateway {
	return a.gateway
}

func (a *App) Engine() *separation.Engine {
	return a.engine
}

// Start launches the orchestrator and, when configured, the intake consumer.
func (a *App) Start(ctx context.Context) error {
	if err := a.orchestrator.Start(ctx); err != nil {
		return cerr.Wrap(err).Error("Failed to start orchestrator")
	}

	if a.intake != nil {
		go func() {
			if err := a.intake.Start(); err != nil {
				cerr.Log(cerr.Wrap(err).Error("Intake worker stopped"))
			}
		}()
	}

	return nil
}

func (a *App) Stop() {
	if a.intake != nil {
		a.intake.Stop()
	}

	a.orchestrator.Stop()
	a.close()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newRecordStore(ctx context.Context, recordStoreConfig config.RecordStore) (jobentity.Store, error) {
	switch t := recordStoreConfig.(type) {
	case config.DynamoRecordStore:
		db := dynamolib.Connect(t.Dynamo)
		if _, isLocal := t.Dynamo.(config.LocalDynamo); isLocal {
			ensureDynamoTable(ctx, db)
		}
		return jobstorage.NewDB(db), nil

	case config.SQLiteRecordStore:
		if err := os.MkdirAll(filepath.Dir(t.Path), os.ModePerm); err != nil {
			return nil, cerr.Field("path", t.Path).Wrap(err).Error("Failed to create sqlite dir")
		}

		store, err := jobstorage.OpenSQLite(t.Path)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, cerr.Field("config_type", recordStoreConfig).Error("Unrecognized record store config")
	}
}

// ensureDynamoTable creates the jobs table on a local DynamoDB. It already
// existing is the common case.
func ensureDynamoTable(ctx context.Context, db dynamolib.DynamoDBWrapper) {
	if err := jobstorage.CreateTable(ctx, db); err != nil {
		log.WithError(err).Debug("Jobs table not created")
	}
}

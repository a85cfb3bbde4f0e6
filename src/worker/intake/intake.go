// Package intake consumes submit_job messages from RabbitMQ and hands them
// to the orchestrator.
package intake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/rabbitmq/amqp091-go"
	"github.com/veedubyou/stemsplit/src/shared/failure"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/job/job_message"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/worker/orchestrator"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

type MessageChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

//counterfeiter:generate . Submitter
type Submitter interface {
	Submit(ctx context.Context, request orchestrator.SubmitRequest) (jobentity.Job, error)
}

const defaultRequeueDelay = time.Second

type QueueWorker struct {
	channel      MessageChannel
	channelLock  sync.Mutex
	submitter    Submitter
	queueName    string
	validate     *validator.Validate
	requeueDelay time.Duration
}

func NewQueueWorker(channel MessageChannel, queueName string, submitter Submitter) *QueueWorker {
	return &QueueWorker{
		channel:      channel,
		queueName:    queueName,
		submitter:    submitter,
		validate:     validator.New(),
		requeueDelay: defaultRequeueDelay,
	}
}

// WithRequeueDelay sets how long the worker waits before handing back a
// message that hit a storage outage.
func (q *QueueWorker) WithRequeueDelay(delay time.Duration) *QueueWorker {
	q.requeueDelay = delay
	return q
}

func NewQueueWorkerFromConnection(conn *amqp091.Connection, queueName string, submitter Submitter) (*QueueWorker, error) {
	rabbitChannel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, cerr.Wrap(err).Error("Failed to get channel")
	}

	queue, err := rabbitChannel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)

	if err != nil {
		_ = rabbitChannel.Close()
		return nil, cerr.Wrap(err).Error("Failed to declare queue")
	}

	return NewQueueWorker(rabbitChannel, queue.Name, submitter), nil
}

// Start consumes until the channel is closed. Every message is acked once it
// has been submitted. A message that hit a storage outage is requeued; any
// other rejection is nacked for good.
func (q *QueueWorker) Start() error {
	log.WithField("queue_name", q.queueName).Info("Starting intake worker")

	q.channelLock.Lock()
	if q.channel == nil {
		q.channelLock.Unlock()
		return cerr.Error("Intake worker has been stopped")
	}

	messageStream, err := q.channel.Consume(
		q.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	q.channelLock.Unlock()

	if err != nil {
		return cerr.Field("queue_name", q.queueName).
			Wrap(err).Error("Failed to start consuming from channel")
	}

	for message := range messageStream {
		logger := log.WithField("message_type", message.Type)

		job, err := q.handleMessage(message)
		if err != nil {
			err = cerr.Fields(cerr.F{
				"message_type": message.Type,
				"kind":         failure.KindOf(err),
			}).Wrap(err).Error("Failed to process message")

			cerr.Log(err)

			requeue := failure.KindOf(err) == failure.StorageError
			if requeue {
				time.Sleep(q.requeueDelay)
			}

			if err = message.Nack(false, requeue); err != nil {
				logger.Error("Failed to nack message")
			}
		} else {
			logger.WithField("job_id", job.ID).Info("Submitted job from queue")
			if err = message.Ack(false); err != nil {
				logger.Error("Failed to ack message")
			}
		}
	}

	return nil
}

func (q *QueueWorker) Stop() {
	q.channelLock.Lock()
	defer q.channelLock.Unlock()

	if q.channel == nil {
		return
	}

	_ = q.channel.Close()
	q.channel = nil
}

func (q *QueueWorker) handleMessage(message amqp091.Delivery) (jobentity.Job, error) {
	if message.Type != job_message.SubmitJobType {
		return jobentity.Job{}, failure.New(failure.InvalidInput, "unrecognized message type "+message.Type)
	}

	submitJob := job_message.SubmitJob{}
	if err := json.Unmarshal(message.Body, &submitJob); err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.InvalidInput, "message body is not a submit_job")
	}

	if err := q.validate.Struct(submitJob); err != nil {
		return jobentity.Job{}, failure.Wrap(err, failure.InvalidInput, "submit_job message is incomplete")
	}

	return q.submitter.Submit(context.Background(), orchestrator.SubmitRequest{
		Owner:     submitJob.Owner,
		InputRef:  submitJob.InputRef,
		InputName: submitJob.InputName,
	})
}

package dummy

import (
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/veedubyou/stemsplit/src/shared/lib/rabbitmq"
)

var _ rabbitmq.Publisher = &RabbitMQ{}
var _ amqp091.Acknowledger = RabbitMQAcknowledger{}

type RabbitMQ struct {
	Unavailable    bool
	MessageChannel chan amqp091.Delivery

	mutex          sync.Mutex
	ackCounter     int
	nackCounter    int
	requeueCounter int
}

type RabbitMQAcknowledger struct {
	ack  func()
	nack func(requeue bool)
}

func NewRabbitMQ() *RabbitMQ {
	return &RabbitMQ{
		Unavailable:    false,
		MessageChannel: make(chan amqp091.Delivery, 100),
	}
}

func (r *RabbitMQ) Publish(msg amqp091.Publishing) error {
	if r.Unavailable {
		return NetworkFailure
	}

	acknowledger := RabbitMQAcknowledger{
		ack: func() {
			r.mutex.Lock()
			r.ackCounter++
			r.mutex.Unlock()
		},
		nack: func(requeue bool) {
			r.mutex.Lock()
			r.nackCounter++
			if requeue {
				r.requeueCounter++
			}
			r.mutex.Unlock()
		},
	}

	r.MessageChannel <- amqp091.Delivery{
		Acknowledger:    acknowledger,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		DeliveryMode:    msg.DeliveryMode,
		Timestamp:       msg.Timestamp,
		Type:            msg.Type,
		Body:            msg.Body,
	}
	return nil
}

func (r *RabbitMQ) Consume(_ string, _ string, _ bool, _ bool, _ bool, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	if r.Unavailable {
		return nil, NetworkFailure
	}

	return r.MessageChannel, nil
}

func (r *RabbitMQ) Close() error {
	return nil
}

func (r *RabbitMQ) AckCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.ackCounter
}

func (r *RabbitMQ) NackCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.nackCounter
}

// RequeueCount is how many of the nacks asked for redelivery.
func (r *RabbitMQ) RequeueCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.requeueCounter
}

func (r RabbitMQAcknowledger) Ack(tag uint64, multiple bool) error {
	r.ack()
	return nil
}

func (r RabbitMQAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	r.nack(requeue)
	return nil
}

func (r RabbitMQAcknowledger) Reject(tag uint64, requeue bool) error {
	r.nack(requeue)
	return nil
}

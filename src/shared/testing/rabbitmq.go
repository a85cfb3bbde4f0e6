package testing

import (
	"github.com/rabbitmq/amqp091-go"
	"github.com/veedubyou/stemsplit/src/shared/config/dev"
)

// RabbitMQ
const (
	RabbitMQHost            = dev.RabbitMQHost
	RabbitMQEventsQueueName = "stemsplit-job-events-test"
	RabbitMQIntakeQueueName = "stemsplit-job-intake-test"
)

// RabbitMQAvailable reports whether a local broker is listening.
func RabbitMQAvailable() bool {
	return reachable(RabbitMQHost)
}

func MakeRabbitMQConnection() *amqp091.Connection {
	return ExpectSuccess(amqp091.Dial(RabbitMQHost))
}

func ResetRabbitMQ(conn *amqp091.Connection) {
	channel := ExpectSuccess(conn.Channel())
	defer channel.Close()

	for _, queueName := range []string{RabbitMQEventsQueueName, RabbitMQIntakeQueueName} {
		ExpectSuccess(channel.QueueDeclare(queueName, true, false, false, false, nil))
		ExpectSuccess(channel.QueuePurge(queueName, false))
	}
}

func AfterSuiteRabbitMQ(conn *amqp091.Connection) {
	channel := ExpectSuccess(conn.Channel())
	defer channel.Close()

	for _, queueName := range []string{RabbitMQEventsQueueName, RabbitMQIntakeQueueName} {
		ExpectSuccess(channel.QueueDelete(queueName, false, false, false))
	}

	_ = conn.Close()
}

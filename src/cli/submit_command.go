package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/veedubyou/stemsplit/src/shared/config/dev"
	"github.com/veedubyou/stemsplit/src/shared/config/envvar"
	"github.com/veedubyou/stemsplit/src/shared/job/job_message"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/rabbitmq"
)

// newSubmitCommand queues a job on a worker's intake queue. Handy for
// poking a headless worker during development.
func newSubmitCommand() *cobra.Command {
	var (
		rabbitMQURL string
		queueName   string
		message     job_message.SubmitJob
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Publish a submit_job message to a worker's intake queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validator.New().Struct(message); err != nil {
				return cerr.Wrap(err).Error("Invalid job submission")
			}

			publisher, err := rabbitmq.NewQueuePublisher(rabbitMQURL, queueName)
			if err != nil {
				return err
			}
			defer publisher.Close()

			if err := rabbitmq.PublishJSON(publisher, job_message.SubmitJobType, message); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s on %s\n", message.InputRef, message.Owner, queueName)
			return nil
		},
	}

	cmd.Flags().StringVar(&rabbitMQURL, "rabbitmq-url", envvar.GetOr(envvar.RABBITMQ_URL, dev.RabbitMQHost), "RabbitMQ connection URL")
	cmd.Flags().StringVar(&queueName, "queue", envvar.GetOr(envvar.RABBITMQ_INTAKE_QUEUE_NAME, dev.RabbitMQIntakeQueueName), "Intake queue name")
	cmd.Flags().StringVar(&message.Owner, "owner", "", "Owner of the job")
	cmd.Flags().StringVar(&message.InputRef, "input-ref", "", "URL of an already stored input")
	cmd.Flags().StringVar(&message.InputName, "input-name", "", "Display name of the input")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("input-ref")

	return cmd
}

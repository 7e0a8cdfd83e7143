package queue

import (
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
)

// ExtractCallMsg asks the worker to run one extraction pass over one
// call. The pass row already exists in pending state when the message is
// published.
type ExtractCallMsg struct {
	CallID string `json:"call_id"`
	PassID string `json:"pass_id"`
}

// MergeCustomerMsg asks the worker to re-run the cross-call merge pass
// for one customer.
type MergeCustomerMsg struct {
	CustomerID string `json:"customer_id"`
}

// PublishExtract enqueues an extraction pass.
func PublishExtract(ch *amqp091.Channel, msg ExtractCallMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, ExtractQueue, data)
}

// PublishMerge enqueues a cross-call merge for a customer.
func PublishMerge(ch *amqp091.Channel, msg MergeCustomerMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, MergeQueue, data)
}

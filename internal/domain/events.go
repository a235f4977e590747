package domain

import "time"

// OperatorAlertEvent is published to the operator alerts topic for
// transitions that need human attention (disputes and refunds). Subject,
// title and message follow the wording of the merchant emails.
type OperatorAlertEvent struct {
	OrderID   int64     `json:"order_id"`
	Reference string    `json:"reference"`
	Subject   string    `json:"subject"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

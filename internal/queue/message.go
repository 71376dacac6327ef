package queue

import (
	"fmt"
	"strings"
)

// Task names.
const (
	TaskDeliverSMS         = "deliver_sms"
	TaskDeliverEmail       = "deliver_email"
	TaskSendDeliveryStatus = "send_delivery_status"
	TaskSendComplaint      = "send_complaint"
	TaskProcessSESResult   = "process_ses_result"
)

// Task is the broker payload for every queue.
type Task struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NotificationID string `json:"notificationId,omitempty"`
	Payload        string `json:"payload,omitempty"`
	Attempt        int    `json:"attempt"`
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if strings.TrimSpace(t.NotificationID) == "" && t.Payload == "" {
		return fmt.Errorf("task %s needs a notificationId or payload", t.Name)
	}
	if t.Attempt < 0 {
		return fmt.Errorf("invalid attempt %d", t.Attempt)
	}
	return nil
}

// NextAttempt returns a copy of the task for redelivery.
func (t Task) NextAttempt() Task {
	t.Attempt++
	return t
}

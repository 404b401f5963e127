package worker

import (
	"github.com/spec-kit/sla-monitor/internal/notify"
)

// NotificationTaskName is the supervisor name of the outbound mail consumer.
const NotificationTaskName = "notification-worker"

// StartNotificationWorker runs the outbound queue consumer under the supervisor.
func StartNotificationWorker(sup *Supervisor, w *notify.Worker) (*TaskHandle, error) {
	return sup.Start(NotificationTaskName, w.Run)
}

package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/notification"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// NotificationsModule owns outbound mail. It contributes no server
// deps; every mail enters through the queue.
type NotificationsModule struct {
	infra  *Infrastructure
	sender notification.Sender
}

// NewNotificationsModule wires the mail dispatcher. Without an SMTP
// host the module logs instead of delivering, which keeps development
// environments mail-free without a config switch.
func NewNotificationsModule(infra *Infrastructure) (*NotificationsModule, error) {
	var sender notification.Sender
	if infra.Config.SMTP.Host != "" {
		s, err := notification.NewSMTPSender(infra.Config.SMTP)
		if err != nil {
			return nil, fmt.Errorf("init smtp sender: %w", err)
		}
		sender = s
	} else {
		logger.Warn("no SMTP host configured, mail is logged instead of delivered")
		sender = notification.LogSender{}
	}
	return &NotificationsModule{infra: infra, sender: sender}, nil
}

func (m *NotificationsModule) Name() string { return "notifications" }

func (m *NotificationsModule) ContributeServerDeps(*handlers.ServerDeps) {}

// RegisterWorkers adds the mail dispatch worker.
func (m *NotificationsModule) RegisterWorkers(workers *river.Workers) {
	composer := notification.NewComposer(m.infra.Config.Server.PublicBaseURL)
	river.AddWorker(workers, jobs.NewEmailWorker(
		m.infra.Store, composer, m.sender, m.infra.FieldCodec))
}

func (m *NotificationsModule) Shutdown(context.Context) error { return nil }

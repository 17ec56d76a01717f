// Package notify queues policy alerts in redis and mails them to the
// accounts desk from a background worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/logger"
	"tripledger/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	QueueKey  = "ledger:alerts"
	FailedKey = "ledger:alerts:failed"

	maxTries    = 3
	pollTimeout = 2 * time.Second
)

type AlertJob struct {
	Alert   domain.PolicyAlert `json:"alert"`
	Tries   int                `json:"tries"`
	Created time.Time          `json:"created"`
}

type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
	To   []string
}

type Service struct {
	redis      *redis.Client
	smtp       SMTPConfig
	retryDelay time.Duration
	send       func(subject, body string) error
}

func New(rdb *redis.Client, cfg SMTPConfig) *Service {
	s := &Service{
		redis:      rdb,
		smtp:       cfg,
		retryDelay: 5 * time.Second,
	}
	s.send = s.sendMail
	return s
}

// PublishAlert queues an alert for the worker.
func (s *Service) PublishAlert(ctx context.Context, alert domain.PolicyAlert) error {
	job := AlertJob{
		Alert:   alert,
		Created: time.Now().UTC(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := s.redis.LPush(ctx, QueueKey, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to queue alert for %s: %w", alert.RefNo, err)
	}

	metrics.RecordAlert("queued")
	logger.Debug("policy alert queued", "ref_no", alert.RefNo, "warnings", len(alert.Warnings))
	return nil
}

// Start drains the queue until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("policy alert worker started", "smtp_enabled", s.enabled())

	for {
		select {
		case <-ctx.Done():
			logger.Info("policy alert worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, pollTimeout, QueueKey).Result()
	if err != nil {
		return
	}

	var job AlertJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad alert data: %v", err)
		return
	}

	job.Tries++
	subject, body := render(job.Alert)
	if err := s.send(subject, body); err != nil {
		logger.Error("failed to send policy alert", "ref_no", job.Alert.RefNo, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			s.wait(ctx)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), QueueKey, string(data))
			metrics.RecordAlert("retried")
		} else {
			s.saveFailed(job, err)
		}
		s.refreshQueueLength(ctx)
		return
	}

	metrics.RecordAlert("sent")
	s.refreshQueueLength(ctx)
	logger.Info("policy alert sent", "ref_no", job.Alert.RefNo)
}

func (s *Service) wait(ctx context.Context) {
	if s.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Service) enabled() bool {
	return s.smtp.Host != "" && len(s.smtp.To) > 0
}

// sendMail delivers over SMTP. Without a configured relay the alert is only logged.
func (s *Service) sendMail(subject, body string) error {
	if !s.enabled() {
		logger.Warn("policy alert not mailed, smtp is not configured", "subject", subject)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", s.smtp.From)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(s.smtp.To, ", "))
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "\r\n" + body

	var auth smtp.Auth
	if s.smtp.User != "" && s.smtp.Pass != "" {
		auth = smtp.PlainAuth("", s.smtp.User, s.smtp.Pass, s.smtp.Host)
	}

	addr := s.smtp.Host + ":" + s.smtp.Port
	return smtp.SendMail(addr, auth, s.smtp.From, s.smtp.To, []byte(message))
}

func render(a domain.PolicyAlert) (string, string) {
	subject := fmt.Sprintf("Policy override: %s %s", a.Operation, a.RefNo)

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction %s (id %d) was applied with an override.\n\n", a.RefNo, a.TransactionID)
	for _, w := range a.Warnings {
		fmt.Fprintf(&b, "- [%s] %s\n", w.Code, w.Message)
	}
	return subject, b.String()
}

func (s *Service) saveFailed(job AlertJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now().UTC(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), FailedKey, string(data))
	metrics.RecordAlert("failed")
	logger.Error("policy alert moved to failed queue", "ref_no", job.Alert.RefNo, "tries", job.Tries)
}

func (s *Service) refreshQueueLength(ctx context.Context) {
	metrics.AlertQueueLength.Set(float64(s.QueueLength(ctx)))
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, QueueKey).Result()
	return length
}

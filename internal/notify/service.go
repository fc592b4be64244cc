package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealpipe/internal/config"
	"dealpipe/internal/deal"
)

const userAgent = "dealpipe/0.1.0"

// Service defines the push notification surface exposed to workflow
// components. Every method is best effort; callers log failures and move on.
type Service interface {
	NotifyStageChanged(ctx context.Context, dealTitle string, from, to deal.Stage) error
	NotifyJobFailed(ctx context.Context, jobName string, jobID int64, err error) error
	NotifySweepCompleted(ctx context.Context, overdueTasks, notificationsCreated int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		jobFailures:  cfg.Notifications.JobFailures,
		sweepSummary: cfg.Notifications.SweepSummary,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	jobFailures  bool
	sweepSummary bool
}

func (n *ntfyService) NotifyStageChanged(ctx context.Context, dealTitle string, from, to deal.Stage) error {
	dealTitle = strings.TrimSpace(dealTitle)
	data := payload{
		title:   "Dealpipe - Stage Changed",
		message: fmt.Sprintf("%s moved from %s to %s", dealTitle, from, to),
		tags:    []string{"dealpipe", "stage", "changed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobName string, jobID int64, err error) error {
	if !n.jobFailures {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Dealpipe - Job Failed",
		message:  fmt.Sprintf("Job %s (id %d) exhausted retries: %s", jobName, jobID, detail),
		tags:     []string{"dealpipe", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySweepCompleted(ctx context.Context, overdueTasks, notificationsCreated int) error {
	if !n.sweepSummary {
		return nil
	}
	data := payload{
		title:   "Dealpipe - Overdue Sweep",
		message: fmt.Sprintf("Sweep found %d overdue tasks, created %d notifications", overdueTasks, notificationsCreated),
		tags:    []string{"dealpipe", "sweep", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Dealpipe - Test",
		message:  "Notification system test",
		tags:     []string{"dealpipe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyStageChanged(context.Context, string, deal.Stage, deal.Stage) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, int64, error) error              { return nil }
func (noopService) NotifySweepCompleted(context.Context, int, int) error                     { return nil }
func (noopService) TestNotification(context.Context) error                                   { return nil }

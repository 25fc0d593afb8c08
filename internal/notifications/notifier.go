// Package notifications delivers the approval workflow's emails: project
// admins hear about new submissions, submitters hear about completions.
// Delivery is fire and forget; failures are logged and never surfaced to
// the request path that triggered them.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vre-charite/service-approval/internal/metadata"
)

// SubmittedNotice carries the template data for a new-request mail.
type SubmittedNotice struct {
	SubmittedBy string
	ProjectGeid string
	SubmittedAt string
}

// CompletedNotice carries the template data for a request-completed mail.
type CompletedNotice struct {
	SubmittedBy string
	CompletedBy string
	ProjectGeid string
	SubmittedAt string
	CompletedAt string
}

type account struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a account) displayFirstName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Username
}

// EmailNotifier resolves recipients through the auth service and sends mail
// through the email service.
type EmailNotifier struct {
	authURL      string
	emailURL     string
	supportEmail string
	source       metadata.Source
	httpc        *http.Client
	logger       *slog.Logger
}

// NewEmailNotifier creates an EmailNotifier with a bounded request timeout.
func NewEmailNotifier(authURL, emailURL, supportEmail string, source metadata.Source, timeout time.Duration, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		authURL:      strings.TrimRight(authURL, "/"),
		emailURL:     strings.TrimRight(emailURL, "/"),
		supportEmail: supportEmail,
		source:       source,
		httpc:        &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// NotifySubmitted mails every active project admin about a new request.
func (n *EmailNotifier) NotifySubmitted(ctx context.Context, notice SubmittedNotice) {
	submitter, err := n.getUser(ctx, notice.SubmittedBy)
	if err != nil {
		n.logger.ErrorContext(ctx, "submission notification skipped: submitter lookup failed",
			slog.String("username", notice.SubmittedBy), slog.String("error", err.Error()))
		return
	}
	project, err := n.source.QueryNode(ctx, "Container", map[string]any{"global_entity_id": notice.ProjectGeid})
	if err != nil {
		n.logger.ErrorContext(ctx, "submission notification skipped: project lookup failed",
			slog.String("project_geid", notice.ProjectGeid), slog.String("error", err.Error()))
		return
	}

	admins, err := n.listRoleUsers(ctx, fmt.Sprintf("%s-admin", project.ProjectCode))
	if err != nil {
		n.logger.ErrorContext(ctx, "submission notification skipped: admin lookup failed",
			slog.String("project_geid", notice.ProjectGeid), slog.String("error", err.Error()))
		return
	}

	for _, admin := range admins {
		err := n.sendEmail(ctx, emailRequest{
			Subject:  "A new request to copy data to Core needs your approval",
			Receiver: admin.Email,
			Sender:   n.supportEmail,
			MsgType:  "html",
			Template: "copy_request/new_request.html",
			TemplateKwargs: map[string]any{
				"admin_first_name":  admin.displayFirstName(),
				"user_first_name":   submitter.displayFirstName(),
				"user_last_name":    submitter.LastName,
				"project_name":      project.Name,
				"request_timestamp": notice.SubmittedAt,
			},
		})
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to send submission notification",
				slog.String("receiver", admin.Email), slog.String("error", err.Error()))
		}
	}
}

// NotifyCompleted mails the submitter that their request was completed.
func (n *EmailNotifier) NotifyCompleted(ctx context.Context, notice CompletedNotice) {
	submitter, err := n.getUser(ctx, notice.SubmittedBy)
	if err != nil {
		n.logger.ErrorContext(ctx, "completion notification skipped: submitter lookup failed",
			slog.String("username", notice.SubmittedBy), slog.String("error", err.Error()))
		return
	}
	completer, err := n.getUser(ctx, notice.CompletedBy)
	if err != nil {
		n.logger.ErrorContext(ctx, "completion notification skipped: completer lookup failed",
			slog.String("username", notice.CompletedBy), slog.String("error", err.Error()))
		return
	}
	project, err := n.source.QueryNode(ctx, "Container", map[string]any{"global_entity_id": notice.ProjectGeid})
	if err != nil {
		n.logger.ErrorContext(ctx, "completion notification skipped: project lookup failed",
			slog.String("project_geid", notice.ProjectGeid), slog.String("error", err.Error()))
		return
	}

	err = n.sendEmail(ctx, emailRequest{
		Subject:  "Your request to copy data to Core is Completed",
		Receiver: submitter.Email,
		Sender:   n.supportEmail,
		MsgType:  "html",
		Template: "copy_request/complete_request.html",
		TemplateKwargs: map[string]any{
			"user_first_name":    submitter.displayFirstName(),
			"admin_first_name":   completer.displayFirstName(),
			"admin_last_name":    completer.LastName,
			"request_timestamp":  notice.SubmittedAt,
			"complete_timestamp": notice.CompletedAt,
			"project_name":       project.Name,
		},
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to send completion notification",
			slog.String("receiver", submitter.Email), slog.String("error", err.Error()))
	}
}

func (n *EmailNotifier) getUser(ctx context.Context, username string) (*account, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("exact", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/admin/user?%s", n.authURL, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	var reply struct {
		Result account `json:"result"`
	}
	if err := n.doJSON(req, &reply); err != nil {
		return nil, err
	}
	return &reply.Result, nil
}

func (n *EmailNotifier) listRoleUsers(ctx context.Context, roleName string) ([]account, error) {
	payload, err := json.Marshal(map[string]any{
		"role_names": []string{roleName},
		"status":     "active",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.authURL+"/v1/admin/roles/users", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var reply struct {
		Result []account `json:"result"`
	}
	if err := n.doJSON(req, &reply); err != nil {
		return nil, err
	}
	return reply.Result, nil
}

type emailRequest struct {
	Subject        string         `json:"subject"`
	Sender         string         `json:"sender"`
	Receiver       string         `json:"receiver"`
	MsgType        string         `json:"msg_type"`
	Template       string         `json:"template"`
	TemplateKwargs map[string]any `json:"template_kwargs"`
}

func (n *EmailNotifier) sendEmail(ctx context.Context, email emailRequest) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.emailURL+"/v1/email", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return n.doJSON(req, nil)
}

func (n *EmailNotifier) doJSON(req *http.Request, out any) error {
	resp, err := n.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

package email

import (
	"context"
	"strings"
	"time"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "tools/email")

const (
	// ToolName is the name of the tool
	ToolName = "email_scheduler"
	// Now is the value of date or time to send the email immediately
	Now = "NOW"

	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Tool returns the email_scheduler tool
func Tool(mailer Mailer, scheduler Scheduler) *tools.Descriptor {
	return tools.MustNew(ToolName,
		"To schedule and send an email to one or more guests. "+
			"Only call this tool if user has provided all arguments necessary, else you should ask him. "+
			"Always ask for a confirmation before sending the email.",
		tools.Schema{Params: []tools.Param{
			{Name: "to_emails", Type: tools.TypeString, Required: true, Description: "Comma separated list of guest email addresses."},
			{Name: "date", Type: tools.TypeString, Required: true, Description: "Scheduled date in YYYY-MM-DD format or use NOW to send at the moment."},
			{Name: "time", Type: tools.TypeString, Required: true, Description: "Scheduled time in HH:MM:SS format or use NOW to send at the moment."},
			{Name: "subject", Type: tools.TypeString, Required: true, Description: "The subject line of the email."},
			{Name: "body", Type: tools.TypeString, Required: true, Description: "The content for the body of the email."},
		}},
		func(ctx context.Context, tc *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			to, err := p.Emails("to_emails")
			if err != nil {
				return nil, err
			}
			now := tc.Now()
			at, err := scheduledTime(now, p.String("date"), p.String("time"))
			if err != nil {
				return nil, err
			}
			msg := &Message{
				To:      to,
				Subject: strings.TrimSpace(p.String("subject")),
				Body:    strings.TrimSpace(p.String("body")),
			}
			if msg.Subject == "" {
				return nil, tools.InvalidInputf("The 'subject' field cannot be empty.")
			}
			if msg.Body == "" {
				return nil, tools.InvalidInputf("The 'body' field cannot be empty.")
			}

			if !at.After(now) {
				id, err := mailer.Send(ctx, msg)
				if err != nil {
					return nil, err
				}
				logger.ContextKV(ctx, xlog.DEBUG,
					"status", "sent",
					"call_id", tc.CallID,
					"message_id", id,
				)
				return &tools.Response{
					Raw:  map[string]any{"success": true, "message_id": id},
					Text: "The email was sent to " + strings.Join(to, ", ") + ".",
				}, nil
			}

			// the job outlives the request
			jobCtx := chatmodel.NewFromContext(ctx)
			id, err := scheduler.Schedule(at, func(context.Context) error {
				_, err := mailer.Send(jobCtx, msg)
				return err
			})
			if err != nil {
				return nil, err
			}
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "scheduled",
				"call_id", tc.CallID,
				"job_id", id,
				"at", at,
			)
			return &tools.Response{
				Raw:  map[string]any{"success": true, "job_id": id, "scheduled_at": at},
				Text: "The email was scheduled, it will be sent on " + at.Format("January 02, 2006, at 15:04:05") + ".",
			}, nil
		})
}

// scheduledTime combines the date and time in the location of now,
// NOW takes the value from now.
func scheduledTime(now time.Time, date, tm string) (time.Time, error) {
	day := now
	if !strings.EqualFold(date, Now) {
		d, err := time.ParseInLocation(dateLayout, date, now.Location())
		if err != nil {
			return time.Time{}, tools.InvalidInputf("The 'date' field must be in YYYY-MM-DD format or 'NOW'.")
		}
		day = d
	}

	clock := now
	if !strings.EqualFold(tm, Now) {
		t, err := time.Parse(timeLayout, tm)
		if err != nil {
			return time.Time{}, tools.InvalidInputf("The 'time' field must be in HH:MM:SS format or 'NOW'.")
		}
		clock = t
	}

	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location()), nil
}

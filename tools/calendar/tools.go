package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/effective-security/agentloop/pkg/llmutils"
	"github.com/effective-security/agentloop/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentloop", "tools/calendar")

const (
	ListEventsName  = "list_events"
	CreateEventName = "create_event"
	EditEventName   = "edit_event"

	// DateLayout is the YYYY-MM-DD format
	DateLayout = "2006-01-02"
	// DateTimeLayout is the YYYY-MM-DD HH:MM:SS format
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Tools returns list_events, create_event and edit_event tools
func Tools(cal Calendar) []*tools.Descriptor {
	return []*tools.Descriptor{
		ListEvents(cal),
		CreateEvent(cal),
		EditEvent(cal),
	}
}

// ListEvents returns the list_events tool
func ListEvents(cal Calendar) *tools.Descriptor {
	return tools.MustNew(ListEventsName,
		"Retrieves a list of events from a user's calendar within a specified date range. "+
			"It returns the events with id, summary, start and end times, attendees and description.",
		tools.Schema{Params: []tools.Param{
			{
				Name:        "date_min",
				Type:        tools.TypeString,
				Description: "The earliest date to retrieve events, in 'YYYY-MM-DD' format. Only events occurring on or after this date will be included.",
				Required:    true,
			},
			{
				Name:        "date_max",
				Type:        tools.TypeString,
				Description: "The latest date to retrieve events, in 'YYYY-MM-DD' format. Only events occurring on or before this date will be included.",
				Required:    true,
			},
		}},
		func(ctx context.Context, tc *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			dateMin, dateMax := p.String("date_min"), p.String("date_max")
			if dateMin == "" || dateMax == "" {
				return nil, tools.InvalidInputf("Both 'date_min' and 'date_max' must be provided.")
			}

			loc := tc.Now().Location()
			from, err1 := time.ParseInLocation(DateLayout, dateMin, loc)
			to, err2 := time.ParseInLocation(DateLayout, dateMax, loc)
			if err1 != nil || err2 != nil {
				return nil, tools.InvalidInputf("Dates must be in 'YYYY-MM-DD' format.")
			}
			if from.After(to) {
				return nil, tools.InvalidInputf("'date_min' cannot be later than 'date_max'.")
			}

			events, err := cal.List(ctx, from, to.AddDate(0, 0, 1))
			if err != nil {
				return nil, err
			}
			if len(events) == 0 {
				return &tools.Response{Raw: events, Text: "No events found."}, nil
			}
			return &tools.Response{
				Raw: events,
				Text: fmt.Sprintf("%d events were found. Do not share the event ID with the user.\n%s",
					len(events), llmutils.ToYAML(events)),
			}, nil
		})
}

func eventSchema(edit bool) tools.Schema {
	var params []tools.Param
	if edit {
		params = append(params, tools.Param{
			Name:        "event_id",
			Type:        tools.TypeString,
			Description: "The unique ID of the event to be edited.",
			Required:    true,
		})
	}
	params = append(params,
		tools.Param{
			Name:        "datetime_start",
			Type:        tools.TypeString,
			Description: "The start date and time of the event in 'YYYY-MM-DD HH:MM:SS' format.",
			Required:    true,
		},
		tools.Param{
			Name:        "datetime_end",
			Type:        tools.TypeString,
			Description: "The end date and time of the event in 'YYYY-MM-DD HH:MM:SS' format.",
			Required:    true,
		},
		tools.Param{
			Name:        "summary",
			Type:        tools.TypeString,
			Description: "A short title or summary of the event.",
		},
		tools.Param{
			Name:        "description",
			Type:        tools.TypeString,
			Description: "A detailed description of the event.",
		},
		tools.Param{
			Name:        "attendees_emails",
			Type:        tools.TypeString,
			Description: "A comma-separated list of email addresses for the event attendees.",
		},
		tools.Param{
			Name:        "has_conference",
			Type:        tools.TypeBoolean,
			Description: "Indicates whether to include a conference link in the event. Defaults to true.",
		},
	)
	return tools.Schema{Params: params}
}

func eventFromParams(p tools.Params, loc *time.Location) (*Event, error) {
	start, err1 := time.ParseInLocation(DateTimeLayout, p.String("datetime_start"), loc)
	end, err2 := time.ParseInLocation(DateTimeLayout, p.String("datetime_end"), loc)
	if err1 != nil || err2 != nil {
		return nil, tools.InvalidInputf("Invalid date format. Use 'YYYY-MM-DD HH:MM:SS'.")
	}
	if !start.Before(end) {
		return nil, tools.InvalidInputf("The start time must be earlier than the end time.")
	}

	e := &Event{
		Summary:       strings.TrimSpace(p.String("summary")),
		Description:   strings.TrimSpace(p.String("description")),
		Start:         start,
		End:           end,
		HasConference: true,
	}
	if p.Has("has_conference") {
		e.HasConference = p.Bool("has_conference")
	}
	if strings.TrimSpace(p.String("attendees_emails")) != "" {
		emails, err := p.Emails("attendees_emails")
		if err != nil {
			return nil, err
		}
		e.Attendees = emails
	}
	return e, nil
}

// CreateEvent returns the create_event tool
func CreateEvent(cal Calendar) *tools.Descriptor {
	return tools.MustNew(CreateEventName,
		"Creates a new event in the user's calendar. It returns the created event.",
		eventSchema(false),
		func(ctx context.Context, tc *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			e, err := eventFromParams(p, tc.Now().Location())
			if err != nil {
				return nil, err
			}

			created, err := cal.Create(ctx, e)
			if err != nil {
				return nil, err
			}

			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "event_created",
				"call_id", tc.CallID,
				"event_id", created.ID,
			)
			return &tools.Response{
				Raw: created,
				Text: "The event has been created successfully. Do not share the event ID with the user.\n" +
					llmutils.ToYAML(created),
			}, nil
		})
}

// EditEvent returns the edit_event tool
func EditEvent(cal Calendar) *tools.Descriptor {
	return tools.MustNew(EditEventName,
		"Edits an existing event in the user's calendar, the event ID is returned by list_events. It returns the updated event.",
		eventSchema(true),
		func(ctx context.Context, tc *tools.ToolContext, p tools.Params) (*tools.Response, error) {
			id := strings.TrimSpace(p.String("event_id"))
			if id == "" {
				return nil, tools.InvalidInputf("'event_id' is required for action 'edit_event'.")
			}
			e, err := eventFromParams(p, tc.Now().Location())
			if err != nil {
				return nil, err
			}
			e.ID = id

			updated, err := cal.Update(ctx, e)
			if err != nil {
				return nil, err
			}

			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "event_updated",
				"call_id", tc.CallID,
				"event_id", updated.ID,
			)
			return &tools.Response{
				Raw: updated,
				Text: "The event was updated. Do not share the event ID with the user.\n" +
					llmutils.ToYAML(updated),
			}, nil
		})
}

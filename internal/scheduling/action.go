// Package scheduling implements the scheduling proxy: a closed set of actions,
// each mapped to one or two Calendly API calls, relayed in a uniform envelope.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/upstream"
)

// Action names accepted in the "action" field.
const (
	ActionGetUser              = "getUser"
	ActionGetEventTypes        = "getEventTypes"
	ActionGetAvailableTimes    = "getAvailableTimes"
	ActionCreateScheduledEvent = "createScheduledEvent"
)

// Calendly is the subset of the Calendly client the actions call.
type Calendly interface {
	Configured() bool
	GetCurrentUser(ctx context.Context) (json.RawMessage, error)
	CurrentUserURI(ctx context.Context) (string, error)
	ListEventTypes(ctx context.Context, userURI string) (json.RawMessage, error)
	GetAvailableTimes(ctx context.Context, eventType, startTime, endTime string) (json.RawMessage, error)
	CreateScheduledEvent(ctx context.Context, event upstream.ScheduledEventRequest) (json.RawMessage, error)
}

// Action is one of GetUser, GetEventTypes, GetAvailableTimes or
// CreateScheduledEvent. The unexported method keeps the set closed.
type Action interface {
	Name() string
	execute(ctx context.Context, c Calendly) (json.RawMessage, error)
}

// GetUser returns the connected Calendly account.
type GetUser struct{}

func (GetUser) Name() string { return ActionGetUser }

func (GetUser) execute(ctx context.Context, c Calendly) (json.RawMessage, error) {
	return c.GetCurrentUser(ctx)
}

// GetEventTypes lists the event types owned by the connected account. It
// needs the account URI first, so it makes two calls in sequence.
type GetEventTypes struct{}

func (GetEventTypes) Name() string { return ActionGetEventTypes }

func (GetEventTypes) execute(ctx context.Context, c Calendly) (json.RawMessage, error) {
	uri, err := c.CurrentUserURI(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListEventTypes(ctx, uri)
}

// GetAvailableTimes lists open slots of an event type between two instants.
type GetAvailableTimes struct {
	EventType string `json:"event_type" validate:"required"`
	StartTime string `json:"start_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime   string `json:"end_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

func (GetAvailableTimes) Name() string { return ActionGetAvailableTimes }

func (a GetAvailableTimes) execute(ctx context.Context, c Calendly) (json.RawMessage, error) {
	return c.GetAvailableTimes(ctx, a.EventType, a.StartTime, a.EndTime)
}

// CreateScheduledEvent books a slot for an invitee.
type CreateScheduledEvent struct {
	EventType    string `json:"event_type" validate:"required"`
	StartTime    string `json:"start_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	InviteeEmail string `json:"invitee_email" validate:"required,email"`
	InviteeName  string `json:"invitee_name" validate:"required"`
}

func (CreateScheduledEvent) Name() string { return ActionCreateScheduledEvent }

func (a CreateScheduledEvent) execute(ctx context.Context, c Calendly) (json.RawMessage, error) {
	return c.CreateScheduledEvent(ctx, upstream.ScheduledEventRequest{
		EventType: a.EventType,
		StartTime: a.StartTime,
		Invitee:   upstream.Invitee{Email: a.InviteeEmail, Name: a.InviteeName},
	})
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseAction decodes {action, ...params} into its Action variant and
// validates the parameters that variant requires.
func ParseAction(body []byte, v *validator.Validate) (Action, error) {
	var head struct {
		Action *string `json:"action"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "action" {
			return nil, api.InvalidInput("Le champ action doit être une chaîne de caractères")
		}
		return nil, api.NewError(api.KindInvalidInput, "Corps de requête JSON invalide", err)
	}
	if head.Action == nil || *head.Action == "" {
		return nil, api.InvalidInput("Action requise")
	}

	var action Action
	switch *head.Action {
	case ActionGetUser:
		return GetUser{}, nil
	case ActionGetEventTypes:
		return GetEventTypes{}, nil
	case ActionGetAvailableTimes:
		var a GetAvailableTimes
		if err := decodeParams(body, &a, v); err != nil {
			return nil, err
		}
		action = a
	case ActionCreateScheduledEvent:
		var a CreateScheduledEvent
		if err := decodeParams(body, &a, v); err != nil {
			return nil, err
		}
		action = a
	default:
		return nil, api.UnsupportedAction(*head.Action)
	}
	return action, nil
}

func decodeParams(body []byte, dst any, v *validator.Validate) error {
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return api.InvalidInput(fmt.Sprintf("Paramètre invalide: %s", typeErr.Field))
		}
		return api.NewError(api.KindInvalidInput, "Corps de requête JSON invalide", err)
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return api.InvalidInput(fmt.Sprintf("Paramètre requis manquant: %s", fe.Field()))
			}
			return api.InvalidInput(fmt.Sprintf("Paramètre invalide: %s", fe.Field()))
		}
		return api.NewError(api.KindInvalidInput, "Paramètres invalides", err)
	}
	return nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/eventbot/internal/export"
	"github.com/avolkov/eventbot/internal/model"
	"github.com/avolkov/eventbot/internal/repository"
	"github.com/avolkov/eventbot/internal/service"
	"github.com/avolkov/eventbot/internal/workflow"
)

// Router dispatches inbound updates to the engine and the admin workflow
// controller and renders replies.
type Router struct {
	engine *service.Engine
	flows  *workflow.Controller
	now    func() time.Time
}

// NewRouter constructs a Router.
func NewRouter(engine *service.Engine, flows *workflow.Controller) *Router {
	return &Router{engine: engine, flows: flows, now: time.Now}
}

// Handle processes one update. Domain outcomes become user-visible replies;
// only store failures propagate as errors, and any such failure drops the
// sender's workflow session back to Idle so a broken flow cannot wedge.
func (r *Router) Handle(ctx context.Context, upd Update) ([]Reply, error) {
	user, err := r.engine.EnsureUser(ctx, upd.Sender, upd.Name)
	if err != nil {
		r.flows.Reset(upd.Sender)
		return nil, err
	}

	// An armed delete confirmation survives only its own confirm button or
	// a fresh delete selection. Any other intervening action disarms it, so
	// a stale confirm press afterwards cannot delete anything.
	if state, pending := r.flows.StateOf(upd.Sender); state == workflow.AwaitingConfirmation {
		if !keepsConfirmation(upd, pending) {
			r.flows.Reset(upd.Sender)
		}
	}

	var replies []Reply
	switch upd.Kind {
	case KindCommand:
		replies, err = r.handleCommand(user, upd.Payload)
	case KindText:
		replies, err = r.handleText(ctx, user, upd.Payload)
	case KindCallback:
		replies, err = r.handleCallback(ctx, user, upd.Payload)
	default:
		replies = []Reply{{Text: "Unsupported update."}}
	}
	if err != nil {
		r.flows.Reset(upd.Sender)
		return nil, err
	}
	return replies, nil
}

func keepsConfirmation(upd Update, pendingEventID string) bool {
	if upd.Kind != KindCallback {
		return false
	}
	if upd.Payload == cbConfirmDelete+pendingEventID {
		return true
	}
	return strings.HasPrefix(upd.Payload, cbDelete)
}

func (r *Router) handleCommand(user *model.User, name string) ([]Reply, error) {
	isAdmin := r.engine.IsAdmin(user.TgID)
	switch name {
	case "start":
		return []Reply{{
			Text: "Welcome to the event sign-up bot!\n" +
				"Use the menu buttons below to browse events and manage your sign-ups.",
			Menu: mainMenu(isAdmin),
		}}, nil
	case "menu":
		return []Reply{{Text: "Main menu:", Menu: mainMenu(isAdmin)}}, nil
	case "help":
		return []Reply{{Text: helpText(isAdmin)}}, nil
	default:
		return []Reply{{Text: "Unknown command.", Menu: mainMenu(isAdmin)}}, nil
	}
}

func (r *Router) handleText(ctx context.Context, user *model.User, text string) ([]Reply, error) {
	isAdmin := r.engine.IsAdmin(user.TgID)

	// Structured create-event parsing engages only while this admin's
	// session awaits a spec. Ordinary chat text with semicolons in it is
	// never misrouted here.
	if isAdmin {
		if state, _ := r.flows.StateOf(user.TgID); state == workflow.AwaitingEventSpec {
			return r.consumeEventSpec(ctx, user, text)
		}
	}

	switch text {
	case labelUpcoming:
		return r.listUpcoming(ctx, isAdmin)
	case labelMySignups:
		return r.mySignups(ctx, user)
	case labelCancelAll:
		n, err := r.engine.CancelAll(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return []Reply{{Text: "You have no active sign-ups.", Menu: mainMenu(isAdmin)}}, nil
		}
		return []Reply{{
			Text: fmt.Sprintf("All your sign-ups are cancelled (%d).", n),
			Menu: mainMenu(isAdmin),
		}}, nil
	case labelHelp:
		return []Reply{{Text: helpText(isAdmin)}}, nil
	case labelAdminPanel:
		if !isAdmin {
			return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
		}
		return []Reply{{Text: "Admin panel. Choose an action:", Menu: adminMenu()}}, nil
	case labelCreateEvent:
		if !isAdmin {
			return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
		}
		r.flows.BeginCreate(user.TgID)
		return []Reply{{
			Text: "Creating a new event.\n" +
				"Send the details as:\n" +
				"Title;Topic;Description;YYYY-MM-DD\n\n" +
				"Example:\n" +
				"Developer meetup;IT;Discussing new tech;2024-12-15\n\n" +
				"Press 'Back' to cancel.",
			Menu: backMenu(),
		}}, nil
	case labelExport:
		return r.adminEventList(ctx, user, cbExport, "Export participants. Choose an event:")
	case labelDeleteEvent:
		return r.adminEventList(ctx, user, cbDelete, "Deleting an event. Choose one:")
	case labelParticipants:
		return r.adminEventList(ctx, user, cbUsers, "Participants. Choose an event:")
	case labelBack:
		r.flows.Reset(user.TgID)
		if isAdmin {
			return []Reply{{Text: "Back to the admin panel.", Menu: adminMenu()}}, nil
		}
		return []Reply{{Text: "Back to the main menu.", Menu: mainMenu(false)}}, nil
	case labelMainMenu:
		r.flows.Reset(user.TgID)
		return []Reply{{Text: "Main menu:", Menu: mainMenu(isAdmin)}}, nil
	default:
		return []Reply{{Text: "Please use the menu buttons.", Menu: mainMenu(isAdmin)}}, nil
	}
}

// consumeEventSpec handles the one free-text turn of the create-event flow.
// Every exit path, success or not, returns the session to Idle.
func (r *Router) consumeEventSpec(ctx context.Context, user *model.User, text string) ([]Reply, error) {
	r.flows.Reset(user.TgID)

	switch text {
	case labelBack:
		return []Reply{{Text: "Creation cancelled.", Menu: adminMenu()}}, nil
	case labelMainMenu:
		return []Reply{{Text: "Creation cancelled.", Menu: mainMenu(true)}}, nil
	}

	spec, err := workflow.ParseEventSpec(text)
	if err != nil {
		return []Reply{{
			Text: "Wrong format: need 4 fields separated by ';'. Nothing was created.",
			Menu: adminMenu(),
		}}, nil
	}

	ev, err := r.engine.CreateEvent(ctx, user.TgID, spec.Title, spec.Topic, spec.Description, spec.RawDate)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return []Reply{{
				Text: fmt.Sprintf("Nothing was created: %v.", err),
				Menu: adminMenu(),
			}}, nil
		}
		return nil, err
	}

	return []Reply{{
		Text: fmt.Sprintf(
			"Event created!\nID: %s\nTitle: %s\nDate: %s",
			ev.ID, ev.Title, ev.Date.Format("02.01.2006"),
		),
		Menu: adminMenu(),
	}}, nil
}

func (r *Router) handleCallback(ctx context.Context, user *model.User, token string) ([]Reply, error) {
	isAdmin := r.engine.IsAdmin(user.TgID)

	switch {
	case token == cbBackToEvents:
		return r.listUpcoming(ctx, isAdmin)
	case token == cbMyEvents:
		return r.mySignups(ctx, user)
	case token == cbAdminPanel:
		// Generic cancel: any pending confirmation is dropped, no mutation.
		r.flows.Reset(user.TgID)
		if !isAdmin {
			return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
		}
		return []Reply{{Text: "Admin panel. Choose an action:", Menu: adminMenu()}}, nil
	case strings.HasPrefix(token, cbEventSelect):
		return r.eventCard(ctx, user, strings.TrimPrefix(token, cbEventSelect), false)
	case strings.HasPrefix(token, cbEventDetails):
		return r.eventCard(ctx, user, strings.TrimPrefix(token, cbEventDetails), true)
	case strings.HasPrefix(token, cbEventRegister):
		return r.register(ctx, user, strings.TrimPrefix(token, cbEventRegister))
	case strings.HasPrefix(token, cbCancel):
		return r.cancelOne(ctx, user, strings.TrimPrefix(token, cbCancel))
	case strings.HasPrefix(token, cbUsers):
		return r.participants(ctx, user, strings.TrimPrefix(token, cbUsers))
	case strings.HasPrefix(token, cbExport):
		return r.exportRoster(ctx, user, strings.TrimPrefix(token, cbExport))
	case strings.HasPrefix(token, cbConfirmDelete):
		return r.confirmDelete(ctx, user, strings.TrimPrefix(token, cbConfirmDelete))
	case strings.HasPrefix(token, cbDelete):
		return r.startDelete(ctx, user, strings.TrimPrefix(token, cbDelete))
	default:
		return []Reply{{Text: "Unknown action."}}, nil
	}
}

func (r *Router) listUpcoming(ctx context.Context, isAdmin bool) ([]Reply, error) {
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := r.engine.ListUpcomingEvents(ctx, today)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return []Reply{{Text: "No upcoming events at the moment.", Menu: mainMenu(isAdmin)}}, nil
	}

	var b strings.Builder
	b.WriteString("Upcoming events:\n\n")
	buttons := make([]Button, 0, len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, formatEventShort(ev))
		buttons = append(buttons, Button{Label: ev.Title, Callback: cbEventSelect + ev.ID})
	}
	return []Reply{{Text: b.String(), Buttons: buttons}}, nil
}

func (r *Router) mySignups(ctx context.Context, user *model.User) ([]Reply, error) {
	regs, err := r.engine.ListUserRegistrations(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return []Reply{{
			Text: "You are not signed up for any event yet.",
			Menu: mainMenu(r.engine.IsAdmin(user.TgID)),
		}}, nil
	}

	var b strings.Builder
	b.WriteString("Your sign-ups:\n\n")
	buttons := make([]Button, 0, len(regs))
	for _, reg := range regs {
		fmt.Fprintf(&b, "- %s\n  Date: %s\n  Signed up: %s\n",
			reg.EventTitle,
			reg.EventDate.Format("02.01.2006"),
			reg.RegisteredAt.Format("02.01.2006 15:04"),
		)
		buttons = append(buttons, Button{
			Label:    "Cancel " + reg.EventTitle,
			Callback: cbCancel + reg.ID,
		})
	}
	return []Reply{{Text: b.String(), Buttons: buttons}}, nil
}

func (r *Router) eventCard(ctx context.Context, user *model.User, eventID string, full bool) ([]Reply, error) {
	ev, err := r.engine.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []Reply{{Text: "Event not found."}}, nil
		}
		return nil, err
	}
	registered, err := r.engine.IsRegistered(ctx, user.ID, eventID)
	if err != nil {
		return nil, err
	}

	text := formatEventShort(*ev)
	if full {
		text = formatEventFull(*ev)
	}

	var buttons []Button
	if !registered {
		buttons = append(buttons, Button{Label: "Sign up", Callback: cbEventRegister + eventID})
	}
	buttons = append(buttons,
		Button{Label: "Details", Callback: cbEventDetails + eventID},
		Button{Label: "Back to events", Callback: cbBackToEvents},
	)
	return []Reply{{Text: text, Buttons: buttons}}, nil
}

func (r *Router) register(ctx context.Context, user *model.User, eventID string) ([]Reply, error) {
	reg, err := r.engine.Register(ctx, user.ID, eventID)
	switch {
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return []Reply{{Text: "You are already signed up for this event."}}, nil
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Event not found."}}, nil
	case err != nil:
		return nil, err
	}

	ev, err := r.engine.GetEvent(ctx, eventID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	text := fmt.Sprintf("You are signed up!\nRegistration #%s", reg.ID)
	if ev != nil {
		text = fmt.Sprintf(
			"You are signed up!\nEvent: %s\nDate: %s\nRegistration #%s",
			ev.Title, ev.Date.Format("02.01.2006"), reg.ID,
		)
	}
	return []Reply{{
		Text: text,
		Buttons: []Button{
			{Label: "My sign-ups", Callback: cbMyEvents},
			{Label: "All events", Callback: cbBackToEvents},
		},
	}}, nil
}

func (r *Router) cancelOne(ctx context.Context, user *model.User, regID string) ([]Reply, error) {
	err := r.engine.CancelOne(ctx, regID, user.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Registration not found."}}, nil
	case errors.Is(err, repository.ErrNotOwner):
		return []Reply{{Text: "This registration is not yours."}}, nil
	case err != nil:
		return nil, err
	}
	return []Reply{{
		Text:    "Sign-up cancelled.",
		Buttons: []Button{{Label: "My sign-ups", Callback: cbMyEvents}},
	}}, nil
}

func (r *Router) adminEventList(ctx context.Context, user *model.User, prefix, title string) ([]Reply, error) {
	events, err := r.engine.ListAllEvents(ctx, user.TgID)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
		}
		return nil, err
	}
	if len(events) == 0 {
		return []Reply{{Text: "There are no events.", Menu: adminMenu()}}, nil
	}

	buttons := make([]Button, 0, len(events))
	for _, ev := range events {
		buttons = append(buttons, Button{
			Label:    fmt.Sprintf("%s (%s)", ev.Title, ev.Date.Format("02.01.2006")),
			Callback: prefix + ev.ID,
		})
	}
	return []Reply{{Text: title, Buttons: buttons}}, nil
}

func (r *Router) participants(ctx context.Context, user *model.User, eventID string) ([]Reply, error) {
	parts, err := r.engine.ListEventParticipants(ctx, user.TgID, eventID)
	switch {
	case errors.Is(err, service.ErrForbidden):
		return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Event not found."}}, nil
	case err != nil:
		return nil, err
	}

	if len(parts) == 0 {
		return []Reply{{Text: "Nobody has signed up for this event yet."}}, nil
	}
	var b strings.Builder
	b.WriteString("Participants:\n\n")
	for _, p := range parts {
		fmt.Fprintf(&b, "- %s (ID: %d)\n", p.FullName, p.TgID)
	}
	return []Reply{{
		Text:    b.String(),
		Buttons: []Button{{Label: "Export", Callback: cbExport + eventID}},
	}}, nil
}

func (r *Router) exportRoster(ctx context.Context, user *model.User, eventID string) ([]Reply, error) {
	parts, err := r.engine.ListEventParticipants(ctx, user.TgID, eventID)
	switch {
	case errors.Is(err, service.ErrForbidden):
		return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Event not found."}}, nil
	case err != nil:
		return nil, err
	}

	ev, err := r.engine.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []Reply{{Text: "Event not found."}}, nil
		}
		return nil, err
	}
	doc, err := export.BuildRoster(eventID, parts)
	if err != nil {
		return nil, err
	}
	return []Reply{{
		Document: &Document{
			Filename: doc.Filename,
			Caption: fmt.Sprintf("Participant export\nEvent: %s\nParticipants: %d",
				ev.Title, len(parts)),
			Content: doc.Content,
		},
	}}, nil
}

// startDelete renders the irreversible-deletion warning and arms the
// confirmation gate for this admin and event.
func (r *Router) startDelete(ctx context.Context, user *model.User, eventID string) ([]Reply, error) {
	parts, err := r.engine.ListEventParticipants(ctx, user.TgID, eventID)
	switch {
	case errors.Is(err, service.ErrForbidden):
		return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Event not found."}}, nil
	case err != nil:
		return nil, err
	}
	ev, err := r.engine.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []Reply{{Text: "Event not found."}}, nil
		}
		return nil, err
	}

	r.flows.BeginDelete(user.TgID, eventID)
	return []Reply{{
		Text: fmt.Sprintf(
			"Confirm deletion.\nEvent: %s\nDate: %s\nParticipants: %d\n\n"+
				"This cannot be undone: every sign-up for this event will be removed.",
			ev.Title, ev.Date.Format("02.01.2006"), len(parts),
		),
		Buttons: []Button{
			{Label: "Confirm deletion", Callback: cbConfirmDelete + eventID},
			{Label: "Cancel", Callback: cbAdminPanel},
		},
	}}, nil
}

func (r *Router) confirmDelete(ctx context.Context, user *model.User, eventID string) ([]Reply, error) {
	if !r.flows.TakePendingDelete(user.TgID, eventID) {
		return []Reply{{Text: "No deletion is pending for this event."}}, nil
	}
	err := r.engine.DeleteEvent(ctx, user.TgID, eventID)
	switch {
	case errors.Is(err, service.ErrForbidden):
		return []Reply{{Text: "Access denied.", Menu: mainMenu(false)}}, nil
	case errors.Is(err, repository.ErrNotFound):
		return []Reply{{Text: "Event not found."}}, nil
	case err != nil:
		return nil, err
	}
	return []Reply{{
		Text:    "Event deleted, including all of its sign-ups.",
		Buttons: []Button{{Label: "Back to admin panel", Callback: cbAdminPanel}},
	}}, nil
}

func formatEventShort(ev model.Event) string {
	return fmt.Sprintf("%s\nDate: %s\nTopic: %s", ev.Title, ev.Date.Format("02.01.2006"), ev.Topic)
}

func formatEventFull(ev model.Event) string {
	return fmt.Sprintf(
		"%s\nDate: %s\nTopic: %s\nDescription:\n%s\n\nEvent ID: %s",
		ev.Title, ev.Date.Format("02.01.2006"), ev.Topic, ev.Description, ev.ID,
	)
}

func helpText(isAdmin bool) string {
	text := "Command reference\n\n" +
		"Main functions:\n" +
		"- Upcoming events: browse and sign up\n" +
		"- My sign-ups: your current registrations\n" +
		"- Cancel all sign-ups: drop every registration at once\n"
	if isAdmin {
		text += "\nFor administrators:\n" +
			"- Admin panel: system management\n" +
			"- Create event / Delete event: event lifecycle\n" +
			"- Participants: see who signed up\n" +
			"- Export participants: download a CSV roster\n"
	}
	return text
}

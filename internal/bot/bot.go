// Package bot translates inbound conversational updates into engine and
// workflow calls and builds the replies the transport renders.
package bot

// Kind distinguishes the three inbound update shapes.
type Kind string

// Inbound update kinds.
const (
	KindCommand  Kind = "command"
	KindText     Kind = "text"
	KindCallback Kind = "callback"
)

// Update is one inbound user action.
type Update struct {
	Kind    Kind   `json:"kind"`
	Sender  int64  `json:"sender"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// Button is one inline button with its callback token.
type Button struct {
	Label    string `json:"label"`
	Callback string `json:"callback"`
}

// Document is a file attachment with a caption.
type Document struct {
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	Content  []byte `json:"content"`
}

// Reply is one outbound message. Menu carries persistent text-button labels
// (the client echoes a tapped label back as a text update); Buttons carry
// inline callback buttons.
type Reply struct {
	Text     string    `json:"text"`
	Menu     []string  `json:"menu,omitempty"`
	Buttons  []Button  `json:"buttons,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Menu labels.
const (
	labelUpcoming     = "Upcoming events"
	labelMySignups    = "My sign-ups"
	labelCancelAll    = "Cancel all sign-ups"
	labelHelp         = "Help"
	labelAdminPanel   = "Admin panel"
	labelCreateEvent  = "Create event"
	labelExport       = "Export participants"
	labelDeleteEvent  = "Delete event"
	labelParticipants = "Participants"
	labelBack         = "Back"
	labelMainMenu     = "Main menu"
)

// Callback token prefixes. The token encodes an action and its target ID.
const (
	cbEventSelect   = "event_select_"
	cbEventDetails  = "event_details_"
	cbEventRegister = "event_register_"
	cbCancel        = "cancel_"
	cbUsers         = "users_"
	cbExport        = "export_"
	cbDelete        = "delete_"
	cbConfirmDelete = "confirm_delete_"
	cbBackToEvents  = "back_to_events"
	cbMyEvents      = "my_events"
	cbAdminPanel    = "admin_panel"
)

func mainMenu(isAdmin bool) []string {
	menu := []string{labelUpcoming, labelMySignups, labelCancelAll, labelHelp}
	if isAdmin {
		menu = append([]string{labelAdminPanel}, menu...)
	}
	return menu
}

func adminMenu() []string {
	return []string{labelCreateEvent, labelExport, labelDeleteEvent, labelParticipants, labelMainMenu}
}

func backMenu() []string {
	return []string{labelBack}
}

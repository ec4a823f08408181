package services

// Event types fanned out to status subscribers.
const (
	EventStatus  = "status"
	EventSyncing = "syncing"
	EventConsent = "consent"
)

// Status is the drive connection state.
type Status struct {
	Ready     bool `json:"ready"`
	Connected bool `json:"connected"`
}

// Event is a sync status change. Only the fields relevant to Type are set.
type Event struct {
	Type    string `json:"type"`
	Status  Status `json:"status"`
	Syncing bool   `json:"syncing"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Notifier receives status events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

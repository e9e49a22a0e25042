package notifier

// TextNotifier is the minimal delivery interface. It stays small so
// components can depend on it without importing a concrete transport.
type TextNotifier interface {
	SendText(text string) error
}

// Noop drops every message. Used when no notifier is configured.
type Noop struct{}

func (Noop) SendText(string) error { return nil }

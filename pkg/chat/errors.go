package chat

import "errors"

var (
	// ErrSessionUnavailable is returned when no chat session could be
	// established with the remote service. No fragment has been delivered.
	ErrSessionUnavailable = errors.New("chat session unavailable")

	// ErrStream is returned when the exchange could not be opened or the
	// response stream failed. Fragments delivered before the failure stay valid.
	ErrStream = errors.New("response stream failed")

	// ErrBusy is returned when an exchange is requested while another one
	// is still in flight.
	ErrBusy = errors.New("an exchange is already in progress")
)

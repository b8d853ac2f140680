package chat

var (
	// ErrServerFull is returned by Registry.Reserve when the client cap is hit.
	ErrServerFull = errorString("server_full")
	// ErrSinkClosed is reported by deliver when the session is no longer writable.
	ErrSinkClosed = errorString("sink_closed")
)

type errorString string

func (e errorString) Error() string { return string(e) }

package wire

// Status is the terminal result code carried by every response message.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusError
	StatusUnauthorized
	StatusNotFound
	StatusNotHandled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	case StatusError:
		return "Error"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusNotFound:
		return "NotFound"
	case StatusNotHandled:
		return "NotHandled"
	}
	return "Unknown"
}

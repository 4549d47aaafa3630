package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Batch layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBusy       = "E_BUSY"
	ErrCancelled  = "E_CANCELLED"
	ErrViolation  = "E_VIOLATION"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrBusy:            {},
	ErrCancelled:       {},
	ErrViolation:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

package slayer

import "fmt"

// Contract violation codes. Each one means the caller asked for a transition
// the current state does not allow.
const (
	ErrInvalidSkip          = "E_INVALID_SKIP"
	ErrNoActiveTask         = "E_NO_ACTIVE_TASK"
	ErrTaskActive           = "E_TASK_ACTIVE"
	ErrInsufficientPoints   = "E_INSUFFICIENT_POINTS"
	ErrStorageLocked        = "E_STORAGE_LOCKED"
	ErrStorageOccupied      = "E_STORAGE_OCCUPIED"
	ErrStorageEmpty         = "E_STORAGE_EMPTY"
	ErrAlreadyUnlocked      = "E_ALREADY_UNLOCKED"
	ErrGiverLocked          = "E_GIVER_LOCKED"
	ErrNoEligibleAssignment = "E_NO_ELIGIBLE_ASSIGNMENT"
)

// ContractError is returned by Machine operations whose preconditions do not hold.
// The machine state is left unchanged.
type ContractError struct {
	Op     string
	Code   string
	Detail string
}

func (e *ContractError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("slayer %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("slayer %s: %s: %s", e.Op, e.Code, e.Detail)
}

func violation(op, code, format string, args ...any) error {
	return &ContractError{Op: op, Code: code, Detail: fmt.Sprintf(format, args...)}
}

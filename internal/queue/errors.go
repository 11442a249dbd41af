package queue

import (
	"fmt"

	"github.com/google/uuid"
)

// TerminalError is returned when cancelling a download that already ended.
type TerminalError struct {
	ID     uuid.UUID
	Status Status
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("cannot cancel download %s in state %s", e.ID, e.Status)
}

func (e *TerminalError) Is(target error) bool {
	return target == ErrAlreadyTerminal
}

package record

import (
	"errors"
	"fmt"

	"github.com/jobdeck/automation/pkg/protocol"
)

// wrapStoreError keeps an already-categorized collaborator error intact and
// treats everything else as transient.
func wrapStoreError(err error) error {
	var actionErr *protocol.ActionError
	if errors.As(err, &actionErr) {
		return err
	}

	return protocol.NewTransientFailure(fmt.Errorf("record store: %w", err))
}

func stringify(value any) string {
	if value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safepass/internal/common"
)

// passthrough lists the errors a repository may return that already carry
// caller-facing meaning.
var passthrough = []error{
	common.ErrorNotFound,
	common.ErrorConflict,
	common.ErrorInvalidState,
	common.ErrorInvalidInput,
	common.ErrorUnauthorized,
	common.ErrorGone,
	common.ErrorDependency,
}

var errNoPasswordMethod = fmt.Errorf("%w: password login is not enabled for this account", common.ErrorInvalidState)

// storeError keeps known sentinels and turns anything else into a dependency
// failure so that driver errors never reach the caller unclassified.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range passthrough {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", common.ErrorDependency, op, err)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorInvalidInput, fmt.Sprintf(format, args...))
}

package lua

import (
	"fmt"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
)

var (
	// ErrStateClosed is returned when calling into a closed state.
	ErrStateClosed = fmt.Errorf("lua state is closed: %w", commands.ErrHandlerGone)
)

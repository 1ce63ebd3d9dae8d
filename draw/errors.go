package draw

import (
	"errors"
	"fmt"
)

// InsufficientPoolError reports that fewer identifiers are eligible than a
// draw needs. Class is zero when the scope is the whole grade.
type InsufficientPoolError struct {
	Grade     int
	Class     byte
	Available int
	Required  int
}

func (e *InsufficientPoolError) Error() string {
	if e.Class != 0 {
		return fmt.Sprintf("insufficient pool in class %d%c: %d available, %d required", e.Grade, e.Class, e.Available, e.Required)
	}
	return fmt.Sprintf("insufficient pool in grade %d: %d available, %d required", e.Grade, e.Available, e.Required)
}

// NoDistinctClassError reports a paired draw where every remaining candidate
// shares the class of the first winner.
type NoDistinctClassError struct {
	Class string
}

func (e *NoDistinctClassError) Error() string {
	return fmt.Sprintf("no eligible student outside class %s", e.Class)
}

// IsInsufficientPool unwraps err into an InsufficientPoolError.
func IsInsufficientPool(err error) (*InsufficientPoolError, bool) {
	var ip *InsufficientPoolError
	if errors.As(err, &ip) {
		return ip, true
	}
	return nil, false
}

// IsNoDistinctClass unwraps err into a NoDistinctClassError.
func IsNoDistinctClass(err error) (*NoDistinctClassError, bool) {
	var nd *NoDistinctClassError
	if errors.As(err, &nd) {
		return nd, true
	}
	return nil, false
}

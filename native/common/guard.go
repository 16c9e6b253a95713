package common

import "errors"

// ErrModulePaused is returned by Guard when an operator has paused the module
// through the governance pause view.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the operator-controlled pause switches per module name.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails closed when the named module is paused. A nil view means no
// pause control is wired and every call passes.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

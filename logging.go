package reactor

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
)

// logCategory is the catrate category for rate limited dispatcher logs.
type logCategory struct {
	kind string
	mode Mode
}

// logDebug returns a debug-level builder, or nil unless debug logging was
// enabled via [WithDebug]. A nil builder discards everything.
func (d *Dispatcher) logDebug() *logiface.Builder[logiface.Event] {
	if !d.debug {
		return nil
	}
	return d.logger.Debug()
}

func (d *Dispatcher) logWarning(w *ConfigurationWarning) {
	d.logger.Warning().
		Str(`setting`, w.Setting).
		Str(`value`, fmt.Sprint(w.Value)).
		Str(`retained`, fmt.Sprint(w.Retained)).
		Log(w.Error())
}

// logCallbackFailure is rate limited per mode, and per kind of failure.
func (d *Dispatcher) logCallbackFailure(err *CallbackError) {
	kind := `error`
	var pe PanicError
	if errors.As(err.Cause, &pe) {
		kind = `panic`
	}
	if _, ok := d.limiter.Allow(logCategory{kind: kind, mode: err.Mode}); !ok {
		return
	}
	if b := d.logger.Err(); b.Enabled() {
		if err.Handle != nil {
			b = b.Str(`handle`, fmt.Sprint(err.Handle))
		}
		b.Str(`mode`, err.Mode.String()).
			Str(`kind`, kind).
			Err(err.Cause).
			Log(`reactor: callback failed`)
	}
}

func (d *Dispatcher) logAttach(mode Mode, h Handle, replaceIfBusy bool) {
	if b := d.logDebug(); b.Enabled() {
		b.Str(`mode`, mode.String()).
			Str(`handle`, fmt.Sprint(h)).
			Bool(`replace`, replaceIfBusy).
			Log(`reactor: attached`)
	}
}

func (d *Dispatcher) logDetach(mode Mode, h Handle, removed bool) {
	if b := d.logDebug(); b.Enabled() {
		b.Str(`mode`, mode.String()).
			Str(`handle`, fmt.Sprint(h)).
			Bool(`removed`, removed).
			Log(`reactor: detached`)
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Level tags a message for the sinks.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is one notification.
type Message struct {
	Title string
	Body  string
	Level Level
}

// Toaster shows an in-app toast. It is always available.
type Toaster interface {
	Toast(msg Message) error
}

// Native is a desktop notification backend with a permission model.
// Permission and RequestPermission return ErrUnsupported when Supported is
// false.
type Native interface {
	Supported() bool
	Permission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	Send(ctx context.Context, msg Message) error
}

// ///////////////////////////////////////////////
// Dispatcher
// ///////////////////////////////////////////////

const deniedWarning = "Native notification permission was denied; reminders will appear as toasts."

// Dispatcher routes messages to the toast sink and the native backend.
// Permission refusal and missing native support each produce one warning
// toast per Dispatcher.
type Dispatcher struct {
	title  string
	native Native
	toast  Toaster
	log    *slog.Logger

	mu                sync.Mutex
	mode              Mode
	warnedDenied      bool
	warnedUnsupported bool
}

// NewDispatcher returns a Dispatcher. A nil native means native delivery
// is unsupported; a nil logger uses slog.Default.
func NewDispatcher(mode Mode, title string, native Native, toast Toaster, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{title: title, mode: mode, native: native, toast: toast, log: log}
}

// SetMode switches the delivery mode, e.g. after a config reload.
func (d *Dispatcher) SetMode(m Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
}

// Mode returns the current delivery mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Dispatcher) supported() bool {
	return d.native != nil && d.native.Supported()
}

// Notify delivers body under the dispatcher's title. When the mode wants
// native delivery and permission has not been decided yet, it is requested
// first. A failed native send falls back to a toast.
func (d *Dispatcher) Notify(ctx context.Context, body string) error {
	mode := d.Mode()
	msg := Message{Title: d.title, Body: body, Level: LevelInfo}

	perm := PermissionDefault
	supported := d.supported()
	if mode.WantsNative() {
		if !supported {
			d.warnOnce(&d.warnedUnsupported, "Native notifications are not available; reminders will appear as toasts.")
		} else {
			perm = d.resolvePermission(ctx)
			if perm == PermissionDenied {
				d.warnOnce(&d.warnedDenied, deniedWarning)
			}
		}
	}

	plan := Route(mode, perm, supported)
	var errs []error

	if plan.Native {
		if err := d.native.Send(ctx, msg); err != nil {
			d.log.Warn("native notification failed, falling back to toast", "error", err)
			errs = append(errs, err)
			plan.Toast = true
			// The endpoint revoked a permission it had granted.
			if errors.Is(err, ErrPermissionDenied) {
				perm = PermissionDenied
				d.warnOnce(&d.warnedDenied, deniedWarning)
			}
		}
	}
	if plan.Toast {
		toastMsg := msg
		if mode == ModeBrowser {
			toastMsg.Title = fallbackTitle(d.title, supported, perm)
		}
		if err := d.toast.Toast(toastMsg); err != nil {
			errs = append(errs, fmt.Errorf("toast: %w", err))
		}
	}
	return errors.Join(errs...)
}

// resolvePermission queries the native permission and asks for it while
// it is still undecided.
func (d *Dispatcher) resolvePermission(ctx context.Context) Permission {
	perm, err := d.native.Permission(ctx)
	if err != nil {
		d.log.Warn("native permission query failed", "error", err)
		return PermissionDefault
	}
	if perm != PermissionDefault {
		return perm
	}
	perm, err = d.native.RequestPermission(ctx)
	if err != nil {
		d.log.Warn("native permission request failed", "error", err)
		return PermissionDefault
	}
	d.log.Info("native notification permission", "permission", perm.String())
	return perm
}

// RequestPermission asks the native backend for permission explicitly and
// reports the outcome as a toast.
func (d *Dispatcher) RequestPermission(ctx context.Context) (Permission, error) {
	if !d.supported() {
		d.toastLevel(LevelError, "This system does not support native notifications.")
		return PermissionDefault, ErrUnsupported
	}
	perm, err := d.native.Permission(ctx)
	if err == nil && perm == PermissionDefault {
		perm, err = d.native.RequestPermission(ctx)
	}
	if err != nil {
		return PermissionDefault, err
	}
	switch perm {
	case PermissionGranted:
		d.toastLevel(LevelSuccess, "Native notification permission granted.")
	case PermissionDenied:
		d.toastLevel(LevelWarning, "Native notification permission denied.")
		return perm, ErrPermissionDenied
	}
	return perm, nil
}

// Warn shows a warning toast regardless of mode.
func (d *Dispatcher) Warn(body string) {
	d.toastLevel(LevelWarning, body)
}

func (d *Dispatcher) warnOnce(flag *bool, body string) {
	d.mu.Lock()
	if *flag {
		d.mu.Unlock()
		return
	}
	*flag = true
	d.mu.Unlock()
	d.Warn(body)
}

func (d *Dispatcher) toastLevel(level Level, body string) {
	if err := d.toast.Toast(Message{Title: d.title, Body: body, Level: level}); err != nil {
		d.log.Warn("toast failed", "error", err)
	}
}

// fallbackTitle marks a browser-mode toast with the reason native delivery
// did not happen.
func fallbackTitle(title string, supported bool, perm Permission) string {
	switch {
	case !supported:
		return title + " (native notifications unsupported)"
	case perm != PermissionGranted:
		return title + " (native notifications blocked)"
	default:
		return title
	}
}

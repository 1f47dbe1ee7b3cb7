// Package notify delivers threshold reminders. A [Dispatcher] routes each
// message to an in-app toast sink, a native notification endpoint, or both,
// according to the configured [Mode], the native endpoint's [Permission]
// state and whether native delivery is supported at all.
package notify

import (
	"errors"
	"fmt"
	"strings"
)

// Delivery errors. Both are recovered by falling back to a toast.
var (
	ErrPermissionDenied = errors.New("native notification permission denied")
	ErrUnsupported      = errors.New("native notifications unsupported")
)

// ///////////////////////////////////////////////
// Mode
// ///////////////////////////////////////////////

// Mode is the user's requested delivery channel.
type Mode int

const (
	ModeToast Mode = iota
	ModeBrowser
	ModeBoth
)

// ParseMode parses "toast", "browser" or "both". The legacy spelling
// "toastr" is accepted as "toast".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toast", "toastr":
		return ModeToast, nil
	case "browser":
		return ModeBrowser, nil
	case "both":
		return ModeBoth, nil
	default:
		return ModeToast, fmt.Errorf("invalid notify type %q: must be toast, browser, or both", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeBrowser:
		return "browser"
	case ModeBoth:
		return "both"
	default:
		return "toast"
	}
}

// WantsNative reports whether the mode asks for native delivery.
func (m Mode) WantsNative() bool {
	return m == ModeBrowser || m == ModeBoth
}

// ///////////////////////////////////////////////
// Permission
// ///////////////////////////////////////////////

// Permission mirrors the three-state desktop notification permission.
type Permission int

const (
	// PermissionDefault means the user has not been asked yet.
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

// ParsePermission maps "granted"/"denied" to their states; anything else
// is PermissionDefault.
func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// ///////////////////////////////////////////////
// Routing
// ///////////////////////////////////////////////

// Plan says which sinks receive a message.
type Plan struct {
	Native bool
	Toast  bool
}

// Route maps (mode, permission, support) to a delivery plan. Native
// delivery needs both support and a granted permission; browser-only mode
// falls back to a toast when it cannot deliver natively.
func Route(mode Mode, perm Permission, supported bool) Plan {
	native := supported && perm == PermissionGranted
	switch mode {
	case ModeBoth:
		return Plan{Native: native, Toast: true}
	case ModeBrowser:
		return Plan{Native: native, Toast: !native}
	default:
		return Plan{Toast: true}
	}
}

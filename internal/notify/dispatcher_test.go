package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

type recordingToaster struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingToaster) Toast(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingToaster) levels(level Level) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

type fakeNative struct {
	supported bool
	perm      Permission
	// grant is the answer to RequestPermission.
	grant   Permission
	sendErr error

	requests int
	sent     []Message
}

func (f *fakeNative) Supported() bool { return f.supported }

func (f *fakeNative) Permission(context.Context) (Permission, error) {
	if !f.supported {
		return PermissionDefault, ErrUnsupported
	}
	return f.perm, nil
}

func (f *fakeNative) RequestPermission(context.Context) (Permission, error) {
	f.requests++
	f.perm = f.grant
	return f.perm, nil
}

func (f *fakeNative) Send(_ context.Context, msg Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

// ///////////////////////////////////////////////
// Notify
// ///////////////////////////////////////////////

func TestDispatcher_Notify(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		native      *fakeNative
		wantNative  int
		wantInfo    int
		wantWarns   int
		wantRequest int
	}{
		{
			name:     "toast mode ignores native",
			mode:     ModeToast,
			native:   &fakeNative{supported: true, perm: PermissionGranted},
			wantInfo: 1,
		},
		{
			name:       "browser granted goes native only",
			mode:       ModeBrowser,
			native:     &fakeNative{supported: true, perm: PermissionGranted},
			wantNative: 1,
		},
		{
			name:       "both granted goes to both",
			mode:       ModeBoth,
			native:     &fakeNative{supported: true, perm: PermissionGranted},
			wantNative: 1,
			wantInfo:   1,
		},
		{
			name:        "browser default requests then delivers",
			mode:        ModeBrowser,
			native:      &fakeNative{supported: true, perm: PermissionDefault, grant: PermissionGranted},
			wantNative:  1,
			wantRequest: 1,
		},
		{
			name:        "browser default refused falls back with warning",
			mode:        ModeBrowser,
			native:      &fakeNative{supported: true, perm: PermissionDefault, grant: PermissionDenied},
			wantInfo:    1,
			wantWarns:   1,
			wantRequest: 1,
		},
		{
			name:      "browser denied falls back",
			mode:      ModeBrowser,
			native:    &fakeNative{supported: true, perm: PermissionDenied},
			wantInfo:  1,
			wantWarns: 1,
		},
		{
			name:      "browser unsupported falls back",
			mode:      ModeBrowser,
			native:    &fakeNative{supported: false},
			wantInfo:  1,
			wantWarns: 1,
		},
		{
			name:      "both unsupported still toasts",
			mode:      ModeBoth,
			native:    &fakeNative{supported: false},
			wantInfo:  1,
			wantWarns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toast := &recordingToaster{}
			d := NewDispatcher(tt.mode, "Usage reminder", tt.native, toast, nil)

			if err := d.Notify(context.Background(), "hello"); err != nil {
				t.Fatalf("Notify: %v", err)
			}

			if len(tt.native.sent) != tt.wantNative {
				t.Errorf("native sends = %d, want %d", len(tt.native.sent), tt.wantNative)
			}
			if got := len(toast.levels(LevelInfo)); got != tt.wantInfo {
				t.Errorf("info toasts = %d, want %d", got, tt.wantInfo)
			}
			if got := len(toast.levels(LevelWarning)); got != tt.wantWarns {
				t.Errorf("warning toasts = %d, want %d", got, tt.wantWarns)
			}
			if tt.native.requests != tt.wantRequest {
				t.Errorf("permission requests = %d, want %d", tt.native.requests, tt.wantRequest)
			}
		})
	}
}

func TestDispatcher_WarnsOnce(t *testing.T) {
	toast := &recordingToaster{}
	d := NewDispatcher(ModeBrowser, "T", &fakeNative{supported: true, perm: PermissionDenied}, toast, nil)

	for i := 0; i < 3; i++ {
		if err := d.Notify(context.Background(), "again"); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if got := len(toast.levels(LevelWarning)); got != 1 {
		t.Errorf("warning toasts = %d, want 1", got)
	}
	if got := len(toast.levels(LevelInfo)); got != 3 {
		t.Errorf("info toasts = %d, want 3", got)
	}
}

func TestDispatcher_NilNativeIsUnsupported(t *testing.T) {
	toast := &recordingToaster{}
	d := NewDispatcher(ModeBrowser, "T", nil, toast, nil)
	if err := d.Notify(context.Background(), "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	infos := toast.levels(LevelInfo)
	if len(infos) != 1 {
		t.Fatalf("info toasts = %d, want 1", len(infos))
	}
	if !strings.Contains(infos[0].Title, "unsupported") {
		t.Errorf("fallback title = %q, want unsupported marker", infos[0].Title)
	}
}

func TestDispatcher_NativeSendFailureFallsBack(t *testing.T) {
	toast := &recordingToaster{}
	sendErr := errors.New("connection refused")
	native := &fakeNative{supported: true, perm: PermissionGranted, sendErr: sendErr}
	d := NewDispatcher(ModeBrowser, "T", native, toast, nil)

	err := d.Notify(context.Background(), "body")
	if !errors.Is(err, sendErr) {
		t.Errorf("Notify error = %v, want wrapped send error", err)
	}
	if got := len(toast.levels(LevelInfo)); got != 1 {
		t.Errorf("info toasts = %d, want 1 fallback", got)
	}
}

func TestDispatcher_SendRevokedWarnsOnce(t *testing.T) {
	toast := &recordingToaster{}
	native := &fakeNative{supported: true, perm: PermissionGranted, sendErr: ErrPermissionDenied}
	d := NewDispatcher(ModeBrowser, "T", native, toast, nil)

	for i := 0; i < 3; i++ {
		if err := d.Notify(context.Background(), "body"); !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("Notify #%d error = %v, want ErrPermissionDenied", i, err)
		}
	}
	warnings := toast.levels(LevelWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Body, "denied") {
		t.Errorf("warning toasts = %+v, want one permission warning", warnings)
	}
	infos := toast.levels(LevelInfo)
	if len(infos) != 3 {
		t.Fatalf("info toasts = %d, want 3 fallbacks", len(infos))
	}
	if !strings.Contains(infos[0].Title, "blocked") {
		t.Errorf("fallback title = %q, want blocked marker", infos[0].Title)
	}
}

func TestDispatcher_SetMode(t *testing.T) {
	toast := &recordingToaster{}
	native := &fakeNative{supported: true, perm: PermissionGranted}
	d := NewDispatcher(ModeToast, "T", native, toast, nil)

	d.SetMode(ModeBrowser)
	if d.Mode() != ModeBrowser {
		t.Fatalf("Mode() = %v, want browser", d.Mode())
	}
	if err := d.Notify(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if len(native.sent) != 1 || len(toast.levels(LevelInfo)) != 0 {
		t.Errorf("after SetMode(browser): native %d, toasts %d; want 1, 0",
			len(native.sent), len(toast.levels(LevelInfo)))
	}
}

// ///////////////////////////////////////////////
// RequestPermission
// ///////////////////////////////////////////////

func TestDispatcher_RequestPermission(t *testing.T) {
	tests := []struct {
		name     string
		native   Native
		wantPerm Permission
		wantErr  error
		wantLvl  Level
	}{
		{
			name:     "granted",
			native:   &fakeNative{supported: true, grant: PermissionGranted},
			wantPerm: PermissionGranted,
			wantLvl:  LevelSuccess,
		},
		{
			name:     "denied",
			native:   &fakeNative{supported: true, grant: PermissionDenied},
			wantPerm: PermissionDenied,
			wantErr:  ErrPermissionDenied,
			wantLvl:  LevelWarning,
		},
		{
			name:     "unsupported",
			native:   nil,
			wantPerm: PermissionDefault,
			wantErr:  ErrUnsupported,
			wantLvl:  LevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toast := &recordingToaster{}
			d := NewDispatcher(ModeBrowser, "T", tt.native, toast, nil)
			perm, err := d.RequestPermission(context.Background())
			if perm != tt.wantPerm {
				t.Errorf("perm = %v, want %v", perm, tt.wantPerm)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected err: %v", err)
			}
			if len(toast.levels(tt.wantLvl)) != 1 {
				t.Errorf("expected one %s toast, got %+v", tt.wantLvl, toast.msgs)
			}
		})
	}
}

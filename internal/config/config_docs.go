package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "tracker.notify_type")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Tracker ──────────────────────────────────────────────────
	"tracker": {
		Comment: "Session and reminder settings.",
	},
	"tracker.enabled": {
		Comment: "Master switch. Disabling stops the tick but keeps stored session state.",
	},
	"tracker.notify_type": {
		Comment: "Where reminders go: \"toast\", \"browser\" (native endpoint) or \"both\".\nBrowser-only falls back to a toast when the endpoint is missing or permission is refused.",
		Alternatives: []string{
			`notify_type = "browser"`,
			`notify_type = "both"`,
		},
	},
	"tracker.enable_duration_tracking": {
		Comment: "Remind after continuous use reaches each duration threshold.",
	},
	"tracker.grace_period_minutes": {
		Comment: "An inactivity gap shorter than this continues the current session.\nA gap of exactly this length starts a new one.",
	},
	"tracker.duration_thresholds": {
		Comment: "Continuous-use reminders in hours, each fired once per session.",
	},
	"tracker.enable_fixed_time_tracking": {
		Comment: "Remind at fixed local times of day.",
	},
	"tracker.fixed_time_thresholds": {
		Comment: "Time-of-day reminders (HH:MM, local time), each fired once per day.",
	},
	"tracker.tick_interval_seconds": {
		Comment: "How often thresholds are checked.",
	},

	// ── Notify ───────────────────────────────────────────────────
	"notify": {
		Comment: "Notification delivery.",
	},
	"notify.title": {
		Comment: "Heading shown on native notifications and toasts.",
	},
	"notify.icon": {
		Comment: "Icon passed to the native endpoint (path or URL).",
		Alternatives: []string{
			`icon = "/img/usage.png"`,
		},
	},
	"notify.native_url": {
		Comment: "Native notification endpoint. Leave unset to disable native delivery.\nThe endpoint receives POST <url> with {id, title, body, icon, level}\nand answers GET/POST <url>/permission with {\"permission\": \"granted\"|\"denied\"|\"default\"}.",
		Alternatives: []string{
			`native_url = "http://127.0.0.1:47615/notify"`,
		},
	},
	"notify.native_secret": {
		Comment: "Shared secret sent as X-Usage-Tracker-Secret.",
		Alternatives: []string{
			`native_secret = "change-me"`,
		},
	},
	"notify.native_timeout_seconds": {
		Comment: "Per-request timeout for the native endpoint.",
	},
	"notify.native_retries": {
		Comment: "Retries for the native endpoint before falling back.",
	},

	// ── Activity ─────────────────────────────────────────────────
	"activity": {
		Comment: "Activity sources. `usage-tracker ping` always counts; file changes\nunder these directories count too.",
	},
	"activity.paths": {
		Comment: "Extra directories to watch (not recursive).",
		Alternatives: []string{
			`paths = ["~/SillyTavern/data/default-user/chats"]`,
		},
	},
	"activity.patterns": {
		Comment: "Doublestar globs matched against the file name relative to its watched\ndirectory. Empty matches everything.",
		Alternatives: []string{
			`patterns = ["**/*.jsonl"]`,
		},
	},
	"activity.poll_interval_seconds": {
		Comment: "Polling interval used when file notifications are unavailable.",
	},

	// ── Storage ──────────────────────────────────────────────────
	"storage": {
		Comment: "Where session and reminder state is kept.",
	},
	"storage.backend": {
		Comment: "\"file\" (store.json) or \"sqlite\" (store.db).",
		Alternatives: []string{
			`backend = "sqlite"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging.",
	},
	"log.level": {
		Comment: "Minimum level: trace, debug, info, warn, error.",
	},
	"log.max_size_mb": {
		Comment: "Log file size before rotation.",
	},
}

package activity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yuncengfeihou/usage-tracker2/internal/atomicfile"
)

// Kind is the type of a reported activity.
type Kind string

const (
	// KindActive is user input: typing, clicking, sending a message.
	KindActive Kind = "active"
	// KindHidden means the app lost focus. It still refreshes last-active.
	KindHidden Kind = "hidden"
	// KindVisible means the app came back into view; the session decision
	// is re-evaluated.
	KindVisible Kind = "visible"
)

// ParseKind parses an activity kind. Empty means active.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindActive, nil
	case KindActive, KindHidden, KindVisible:
		return k, nil
	default:
		return "", fmt.Errorf("invalid activity kind %q: must be active, hidden, or visible", s)
	}
}

// Ping is one activity report. At (epoch ms) doubles as a sequence number
// so the daemon can ignore a ping it has already handled.
type Ping struct {
	Kind Kind
	At   int64
}

// NewPing stamps kind with now.
func NewPing(kind Kind, now time.Time) Ping {
	return Ping{Kind: kind, At: now.UnixMilli()}
}

// String renders one ping log line: "<kind> <epoch-ms>".
func (p Ping) String() string {
	return fmt.Sprintf("%s %d", p.Kind, p.At)
}

// ParsePing decodes one ping log line.
func ParsePing(data []byte) (Ping, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return Ping{}, fmt.Errorf("malformed ping %q", strings.TrimSpace(string(data)))
	}
	kind, err := ParseKind(fields[0])
	if err != nil {
		return Ping{}, err
	}
	at, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || at <= 0 {
		return Ping{}, fmt.Errorf("malformed ping timestamp %q", fields[1])
	}
	return Ping{Kind: kind, At: at}, nil
}

// The ping file is an append-only log, one ping per line. Once it passes
// maxPingLog bytes the writer rewrites it down to the last keepPings lines.
const (
	maxPingLog = 16 << 10
	keepPings  = 32
)

// AppendPing adds p to the ping log at path and returns the ping as
// written. At is bumped past the newest logged ping so every line carries
// a distinct sequence number.
func AppendPing(path string, p Ping) (Ping, error) {
	logged, _, err := ReadPings(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return p, err
	}
	if n := len(logged); n > 0 && p.At <= logged[n-1].At {
		p.At = logged[n-1].At + 1
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return p, fmt.Errorf("open ping file: %w", err)
	}
	_, err = f.WriteString(p.String() + "\n")
	size := int64(0)
	if info, statErr := f.Stat(); statErr == nil {
		size = info.Size()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return p, fmt.Errorf("append ping: %w", err)
	}

	if size > maxPingLog {
		if err := compactPings(path, append(logged, p)); err != nil {
			return p, err
		}
	}
	return p, nil
}

func compactPings(path string, pings []Ping) error {
	if len(pings) > keepPings {
		pings = pings[len(pings)-keepPings:]
	}
	var b strings.Builder
	for _, p := range pings {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	return atomicfile.Write(path, []byte(b.String()), 0o600)
}

// ReadPings decodes the ping log at path in file order. Lines that do not
// parse are skipped and counted in malformed.
func ReadPings(path string) (pings []Ping, malformed int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read ping file: %w", err)
	}
	for line := range strings.Lines(string(data)) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := ParsePing([]byte(line))
		if err != nil {
			malformed++
			continue
		}
		pings = append(pings, p)
	}
	return pings, malformed, nil
}

// Sequencer drops pings that are not newer than the last one accepted.
type Sequencer struct {
	last int64
}

// Accept reports whether p is newer than every ping accepted so far.
func (s *Sequencer) Accept(p Ping) bool {
	if p.At <= s.last {
		return false
	}
	s.last = p.At
	return true
}

// Fresh returns the pings not seen before, in log order, and marks them seen.
func (s *Sequencer) Fresh(pings []Ping) []Ping {
	var out []Ping
	for _, p := range pings {
		if s.Accept(p) {
			out = append(out, p)
		}
	}
	return out
}

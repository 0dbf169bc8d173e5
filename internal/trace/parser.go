package trace

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ExchangeEvent is one message passing through an integration step,
// reconstructed from the Camel CLI's trace dump output.
type ExchangeEvent struct {
	Timestamp  string            // verbatim from the trace header line
	Step       string            // "<node-path> : <index> - <status>"
	Status     string            // terminal status word, duration annotation removed
	Headers    map[string]string // exchange headers plus derived metadata (see Header* keys)
	Body       string            // body lines joined by newline, "" if no body section
	ExchangeID string            // correlation id, "" until discovered
}

// Reserved header keys for structural metadata derived from trace lines.
const (
	HeaderEndpoint        = "Endpoint"
	HeaderService         = "Service"
	HeaderMessageType     = "MessageType"
	HeaderExchangeType    = "ExchangeType"
	HeaderExchangePattern = "ExchangePattern"
	HeaderBodyType        = "BodyType"
	HeaderBodySize        = "BodySize"
)

// ErrDone is returned by Feed after Done has been called.
var ErrDone = errors.New("trace: parser is done")

// Emission delays. Tuned against observed Camel CLI output timing; the
// structural lines of an exchange arrive within a few milliseconds of
// each other, so a short debounce is enough.
const (
	DefaultEarlyEmitDelay = 50 * time.Millisecond
	DefaultBodyIdleDelay  = 80 * time.Millisecond
)

var (
	// ANSI SGR sequences (colors, bold, reset).
	ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

	// Optional log-source prefix ("mycontainer | ...") used when several
	// process outputs are interleaved under a source tag.
	sourcePrefixRe = regexp.MustCompile(`^[^|]*\| `)

	// Trace header line: timestamp, pid, separator, [thread], node-path,
	// colon, step index, dash, status tail. The thread tag may itself
	// contain brackets ("[er[timer://tick]]"), so it matches greedily to
	// the last closing bracket before the node-path.
	headerLineRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})\s+(\d+)\s+---\s+\[(.*)\]\s+(\S+)\s*:\s*(\d+)\s*-\s*(.*)$`)

	// Trailing parenthetical on a status tail, e.g. "Completed (took 5ms)".
	trailingParenRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

	parenRe     = regexp.MustCompile(`\(([^)]*)\)`)
	typeAnnotRe = regexp.MustCompile(`^\s*\([^)]*\)`)
	bodyBytesRe = regexp.MustCompile(`\(bytes:\s*(\d+)\)`)
	kvSplitRe   = regexp.MustCompile(`\s{2,}`)
	idTokenRe   = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

const minExchangeIDLen = 16

// Option configures a Parser.
type Option func(*Parser)

// WithEarlyEmitDelay sets the delay before an exchange with a terminal
// status is emitted while waiting for late structural lines.
func WithEarlyEmitDelay(d time.Duration) Option {
	return func(p *Parser) { p.earlyEmitDelay = d }
}

// WithBodyIdleDelay sets the debounce window after the last body line
// for traces that do not announce an exact byte count.
func WithBodyIdleDelay(d time.Duration) Option {
	return func(p *Parser) { p.bodyIdleDelay = d }
}

// event is the exchange under construction plus its transient parse state.
type event struct {
	ev          ExchangeEvent
	emitted     bool
	bodyMode    bool
	bodyStarted bool
	wantBytes   int // -1 when the Body marker carried no byte count
	gotBytes    int
	serviceCont bool // next bare (...) line continues the Service value
}

// Parser turns the Camel CLI's line-oriented trace dump into
// ExchangeEvents. Feed it whole lines in arrival order; it keeps exactly
// one exchange under construction and delivers each completed exchange to
// the emit callback at most once.
//
// Emission can happen synchronously inside Feed or from a timer goroutine;
// the emit callback must not call back into the Parser.
type Parser struct {
	mu sync.Mutex

	emit func(ExchangeEvent)

	earlyEmitDelay time.Duration
	bodyIdleDelay  time.Duration

	cur   *event
	gen   uint64 // bumped whenever the event under construction changes
	timer *time.Timer
	done  bool
}

// New creates a Parser delivering completed exchanges to emit.
func New(emit func(ExchangeEvent), opts ...Option) *Parser {
	p := &Parser{
		emit:           emit,
		earlyEmitDelay: DefaultEarlyEmitDelay,
		bodyIdleDelay:  DefaultBodyIdleDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed consumes one line without its trailing terminator. It never
// blocks on the consumer and returns ErrDone after Done.
func (p *Parser) Feed(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return ErrDone
	}

	clean := preprocess(line)

	if m := headerLineRe.FindStringSubmatch(clean); m != nil {
		p.flushLocked()
		p.startEvent(m)
		return nil
	}

	// Lines outside an exchange carry no information.
	if p.cur == nil {
		return nil
	}

	p.classify(line, clean)
	return nil
}

// Done flushes the exchange under construction and releases timers.
// Feed must not be called afterwards.
func (p *Parser) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.flushLocked()
	p.done = true
}

// StripANSI removes ANSI SGR sequences from s. Body lines keep their
// original formatting; displays that want plain text use this.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// preprocess strips ANSI color sequences and an optional log-source
// prefix so classification sees plain text. Body accumulation still uses
// the original line.
func preprocess(line string) string {
	return sourcePrefixRe.ReplaceAllString(StripANSI(line), "")
}

func (p *Parser) startEvent(m []string) {
	status := strings.TrimSpace(trailingParenRe.ReplaceAllString(m[6], ""))
	p.cur = &event{
		ev: ExchangeEvent{
			Timestamp: m[1],
			Step:      fmt.Sprintf("%s : %s - %s", m[4], m[5], status),
			Status:    status,
			Headers:   make(map[string]string),
		},
		wantBytes: -1,
	}
	p.gen++
}

// classify runs the content classifiers in priority order against one
// line. raw is the original line, clean the preprocessed one.
func (p *Parser) classify(raw, clean string) {
	trimmed := strings.TrimSpace(clean)

	switch {
	case strings.HasPrefix(trimmed, "Exchange"):
		p.classifyExchange(trimmed)

	case strings.HasPrefix(trimmed, "Header"):
		p.classifyHeader(trimmed)

	case strings.HasPrefix(trimmed, "Endpoint"):
		p.cur.ev.Headers[HeaderEndpoint] = strings.TrimSpace(strings.TrimPrefix(trimmed, "Endpoint"))
		p.cur.serviceCont = false

	case strings.HasPrefix(trimmed, "Service"):
		p.cur.ev.Headers[HeaderService] = strings.TrimSpace(strings.TrimPrefix(trimmed, "Service"))
		// A following bare (...) line, e.g. "(protocol=http)", belongs
		// to this value.
		p.cur.serviceCont = true

	case p.cur.serviceCont && strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")"):
		p.cur.ev.Headers[HeaderService] += " " + trimmed
		p.cur.serviceCont = false

	case strings.HasPrefix(trimmed, "Message"):
		if m := parenRe.FindStringSubmatch(trimmed); m != nil {
			p.cur.ev.Headers[HeaderMessageType] = strings.TrimSpace(m[1])
		}
		p.cur.serviceCont = false

	case strings.HasPrefix(trimmed, "Body"):
		p.classifyBodyMarker(trimmed)

	case p.cur.bodyMode:
		p.appendBody(raw)

	default:
		// Structural noise between header and body; inert.
	}
}

// classifyExchange extracts the correlation id and, when present, the
// exchange type and pattern from an "Exchange (...) ..." line.
func (p *Parser) classifyExchange(trimmed string) {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "Exchange"))

	if strings.HasPrefix(rest, "(") {
		if m := parenRe.FindStringSubmatch(rest); m != nil {
			p.cur.ev.Headers[HeaderExchangeType] = strings.TrimSpace(m[1])
		}
	}

	// Scan right-to-left for the first token that looks like a
	// correlation id; this tolerates type and pattern annotations
	// without parsing them positionally.
	fields := strings.Fields(rest)
	for i := len(fields) - 1; i >= 0; i-- {
		tok := fields[i]
		if len(tok) < minExchangeIDLen || !strings.Contains(tok, "-") || !idTokenRe.MatchString(tok) {
			continue
		}
		p.cur.ev.ExchangeID = tok
		if i > 0 && !strings.HasPrefix(fields[i-1], "(") {
			p.cur.ev.Headers[HeaderExchangePattern] = fields[i-1]
		}
		break
	}
	p.cur.serviceCont = false

	if p.cur.ev.ExchangeID == "" {
		return
	}
	// A terminal step with no body section announced yet: give a still
	// arriving structural line a short window before emitting.
	if !p.cur.bodyMode && p.cur.wantBytes < 0 && hasTerminalStatus(p.cur.ev.Status) {
		p.armTimer(p.earlyEmitDelay)
	}
}

// classifyHeader stores one "Header (Type)  key  value" line. Key and
// value are separated by a run of two or more spaces. Only a leading
// parenthesized type annotation is dropped; parens inside the value stay.
func (p *Parser) classifyHeader(trimmed string) {
	rest := typeAnnotRe.ReplaceAllString(strings.TrimPrefix(trimmed, "Header"), "")
	parts := kvSplitRe.Split(strings.TrimSpace(rest), 2)
	if len(parts) == 2 {
		p.cur.ev.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	p.cur.serviceCont = false
}

// classifyBodyMarker enters body mode. The marker may carry a
// parenthesized content type and a byte count.
func (p *Parser) classifyBodyMarker(trimmed string) {
	rest := strings.TrimPrefix(trimmed, "Body")

	p.cur.wantBytes = -1
	if m := bodyBytesRe.FindStringSubmatch(rest); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			p.cur.wantBytes = n
			p.cur.ev.Headers[HeaderBodySize] = m[1]
		}
	}
	for _, m := range parenRe.FindAllStringSubmatch(rest, -1) {
		if strings.HasPrefix(strings.TrimSpace(m[1]), "bytes:") {
			continue
		}
		p.cur.ev.Headers[HeaderBodyType] = strings.TrimSpace(m[1])
		break
	}

	p.cur.bodyMode = true
	p.cur.bodyStarted = false
	p.cur.gotBytes = 0
	p.cur.serviceCont = false
	p.cancelTimer()
}

// appendBody accumulates one original (non-preprocessed) body line and
// fires the exact-size trigger or re-arms the idle debounce.
func (p *Parser) appendBody(raw string) {
	if p.cur.bodyStarted {
		p.cur.ev.Body += "\n" + raw
		p.cur.gotBytes += len(raw) + 1
	} else {
		p.cur.ev.Body = raw
		p.cur.gotBytes = len(raw)
		p.cur.bodyStarted = true
	}

	if p.cur.ev.ExchangeID != "" && !p.cur.emitted &&
		p.cur.wantBytes >= 0 && p.cur.gotBytes >= p.cur.wantBytes {
		p.emitLocked()
		return
	}
	p.armTimer(p.bodyIdleDelay)
}

// armTimer schedules emission after d, superseding any pending timer.
// The callback captures the current generation so a stale timer firing
// for a replaced exchange degrades to a no-op.
func (p *Parser) armTimer(d time.Duration) {
	p.cancelTimer()
	gen := p.gen
	p.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen || p.cur == nil || p.cur.emitted || p.cur.ev.ExchangeID == "" {
			return
		}
		p.emitLocked()
	})
}

func (p *Parser) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// flushLocked ends the life of the exchange under construction: emit it
// if it has an id and was not emitted yet, discard it otherwise.
func (p *Parser) flushLocked() {
	p.cancelTimer()
	if p.cur != nil && !p.cur.emitted && p.cur.ev.ExchangeID != "" {
		p.emitLocked()
	}
	p.cur = nil
	p.gen++
}

// emitLocked delivers an immutable snapshot of the current exchange.
func (p *Parser) emitLocked() {
	p.cur.emitted = true
	snap := p.cur.ev
	snap.Headers = make(map[string]string, len(p.cur.ev.Headers))
	for k, v := range p.cur.ev.Headers {
		snap.Headers[k] = v
	}
	p.emit(snap)
}

func hasTerminalStatus(status string) bool {
	return strings.HasPrefix(status, "Completed") || strings.HasPrefix(status, "Processed")
}

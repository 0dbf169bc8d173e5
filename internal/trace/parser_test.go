package trace

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testID     = "C0FFEE1807EB8E2-0000000000000001"
	headerLine = "2024-03-14 09:35:42.312  63818 --- [er[timer://tick]] my-route/log-1 : 3 - Completed (took 1ms)"
)

type collector struct {
	mu     sync.Mutex
	events []ExchangeEvent
}

func (c *collector) emit(ev ExchangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) all() []ExchangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExchangeEvent, len(c.events))
	copy(out, c.events)
	return out
}

func newTestParser(c *collector) *Parser {
	// Short delays keep timer tests fast.
	return New(c.emit, WithEarlyEmitDelay(10*time.Millisecond), WithBodyIdleDelay(15*time.Millisecond))
}

func feedAll(t *testing.T, p *Parser, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := p.Feed(line); err != nil {
			t.Fatalf("Feed(%q) error: %v", line, err)
		}
	}
}

func TestHeaderLineStartsEvent(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Timestamp != "2024-03-14 09:35:42.312" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
	if ev.Step != "my-route/log-1 : 3 - Completed" {
		t.Errorf("Step = %q", ev.Step)
	}
	if ev.Status != "Completed" {
		t.Errorf("Status = %q, want duration annotation stripped", ev.Status)
	}
	if ev.ExchangeID != testID {
		t.Errorf("ExchangeID = %q, want %q", ev.ExchangeID, testID)
	}
	if ev.Headers[HeaderExchangeType] != "DefaultExchange" {
		t.Errorf("ExchangeType = %q", ev.Headers[HeaderExchangeType])
	}
	if ev.Headers[HeaderExchangePattern] != "InOnly" {
		t.Errorf("ExchangePattern = %q", ev.Headers[HeaderExchangePattern])
	}
}

func TestHeaderLineThreadTagVariants(t *testing.T) {
	// Camel truncates thread names into the bracketed tag, so the tag can
	// itself contain brackets or be empty.
	tests := []struct {
		name string
		line string
	}{
		{"nested brackets", "2024-03-14 09:35:42.312  63818 --- [er[timer://tick]] my-route/log-1 : 3 - Completed (took 1ms)"},
		{"plain tag", "2024-03-14 09:35:42.312  63818 --- [main] my-route/log-1 : 3 - Completed"},
		{"empty tag", "2024-03-14 09:35:42.312  63818 --- [] my-route/log-1 : 3 - Completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collector{}
			p := newTestParser(c)
			feedAll(t, p,
				tt.line,
				"    Exchange (DefaultExchange) InOnly "+testID,
			)
			p.Done()

			events := c.all()
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].Step != "my-route/log-1 : 3 - Completed" {
				t.Errorf("Step = %q", events[0].Step)
			}
		})
	}
}

func TestHeaderWithoutExchangeIDEmitsNothing(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	// A header immediately superseded by another header is discarded.
	feedAll(t, p,
		headerLine,
		headerLine,
	)
	p.Done()

	// Both events lack an exchange id: one discarded at the second
	// header, one at Done.
	if got := len(c.all()); got != 0 {
		t.Fatalf("got %d events, want 0", got)
	}
}

func TestExactSizeTriggerEmitsSynchronously(t *testing.T) {
	c := &collector{}
	// Long delays: if emission depends on a timer, the assertion below fails.
	p := New(c.emit, WithEarlyEmitDelay(time.Hour), WithBodyIdleDelay(time.Hour))

	body1 := "hello"
	body2 := "world"
	n := len(body1) + 1 + len(body2)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		fmt.Sprintf("    Body (String) (bytes: %d)", n),
		body1,
	)
	if got := len(c.all()); got != 0 {
		t.Fatalf("emitted before byte count reached: %d events", got)
	}
	feedAll(t, p, body2)

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (synchronous exact-size emit)", len(events))
	}
	if want := body1 + "\n" + body2; events[0].Body != want {
		t.Errorf("Body = %q, want %q", events[0].Body, want)
	}
	if events[0].Headers[HeaderBodyType] != "String" {
		t.Errorf("BodyType = %q", events[0].Headers[HeaderBodyType])
	}
	if events[0].Headers[HeaderBodySize] != fmt.Sprint(n) {
		t.Errorf("BodySize = %q", events[0].Headers[HeaderBodySize])
	}
}

func TestEventEmittedAtMostOnce(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		"    Body (String) (bytes: 5)",
		"hello",
	)
	// Exact-size trigger fired; let the idle timer window pass, then
	// flush via Done. Neither may deliver the event again.
	time.Sleep(60 * time.Millisecond)
	p.Done()

	if got := len(c.all()); got != 1 {
		t.Fatalf("got %d events, want exactly 1", got)
	}
}

func TestBodyIdleTimerEmitsWithoutByteCount(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		"    Body (String)",
		"line one",
		"line two",
	)
	if got := len(c.all()); got != 0 {
		t.Fatalf("emitted before idle window: %d events", got)
	}

	time.Sleep(60 * time.Millisecond)

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 after idle debounce", len(events))
	}
	if want := "line one\nline two"; events[0].Body != want {
		t.Errorf("Body = %q, want %q", events[0].Body, want)
	}
}

func TestEarlyCompletionTimer(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	if got := len(c.all()); got != 0 {
		t.Fatalf("emitted before early-completion delay: %d events", got)
	}

	time.Sleep(60 * time.Millisecond)

	if got := len(c.all()); got != 1 {
		t.Fatalf("got %d events, want 1 after early-completion timer", got)
	}
}

func TestEarlyTimerNotArmedForNonTerminalStatus(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	created := "2024-03-14 09:35:42.310  63818 --- [er[timer://tick]] my-route/from : 0 - Created"
	feedAll(t, p,
		created,
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	time.Sleep(60 * time.Millisecond)
	if got := len(c.all()); got != 0 {
		t.Fatalf("early timer fired for Created status: %d events", got)
	}

	// The event is still emitted at flush.
	p.Done()
	if got := len(c.all()); got != 1 {
		t.Fatalf("got %d events after Done, want 1", got)
	}
}

func TestNewHeaderSupersedesPendingTimer(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		// Flush emits the first event, and its pending timer must not
		// fire again for the replacement.
		headerLine,
	)
	time.Sleep(60 * time.Millisecond)
	p.Done()

	if got := len(c.all()); got != 1 {
		t.Fatalf("got %d events, want 1", got)
	}
}

func TestANSIAndSourcePrefixStripped(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	colored := func(s string) string { return "\x1b[33m" + s + "\x1b[0m" }

	feedAll(t, p,
		"integration-1 | "+colored(headerLine),
		"integration-1 | "+colored("    Exchange (DefaultExchange) InOnly "+testID),
		"integration-1 | \x1b[36m    Header (String)\x1b[0m   CamelMessageTimestamp       1710405342302",
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ExchangeID != testID {
		t.Errorf("ExchangeID = %q", ev.ExchangeID)
	}
	if ev.Headers["CamelMessageTimestamp"] != "1710405342302" {
		t.Errorf("header value = %q", ev.Headers["CamelMessageTimestamp"])
	}
	if strings.Contains(ev.Status, "\x1b") {
		t.Errorf("Status still carries ANSI sequences: %q", ev.Status)
	}
}

func TestBodyPreservesOriginalFormatting(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	raw := "  \x1b[32m{\"name\": \"alice\"}\x1b[0m"
	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		"    Body (String)",
		raw,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Body != raw {
		t.Errorf("Body = %q, want original line %q", events[0].Body, raw)
	}
}

func TestServiceContinuation(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Service netty-http://0.0.0.0:8080",
		"    (protocol=http)",
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := "netty-http://0.0.0.0:8080 (protocol=http)"
	if got := events[0].Headers[HeaderService]; got != want {
		t.Errorf("Service = %q, want %q", got, want)
	}
}

func TestContinuationOnlyAfterService(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Service netty-http://0.0.0.0:8080",
		"    Endpoint timer://tick?period=1000",
		// Endpoint reset the continuation marker; this line is inert.
		"    (protocol=http)",
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if got := events[0].Headers[HeaderService]; got != "netty-http://0.0.0.0:8080" {
		t.Errorf("Service = %q, continuation should not apply", got)
	}
	if got := events[0].Headers[HeaderEndpoint]; got != "timer://tick?period=1000" {
		t.Errorf("Endpoint = %q", got)
	}
}

func TestStructuralExtractors(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Endpoint kafka://orders?brokers=localhost:9092",
		"    Message (DefaultMessage)",
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Headers[HeaderEndpoint] != "kafka://orders?brokers=localhost:9092" {
		t.Errorf("Endpoint = %q", ev.Headers[HeaderEndpoint])
	}
	if ev.Headers[HeaderMessageType] != "DefaultMessage" {
		t.Errorf("MessageType = %q", ev.Headers[HeaderMessageType])
	}
	if ev.Body != "" {
		t.Errorf("structural lines leaked into body: %q", ev.Body)
	}
}

func TestExchangeIDHeuristic(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"plain", "Exchange (DefaultExchange) InOnly " + testID, testID},
		{"no pattern", "Exchange (DefaultExchange) " + testID, testID},
		{"no annotations", "Exchange " + testID, testID},
		{"too short", "Exchange (DefaultExchange) InOnly AB-12", ""},
		{"no hyphen", "Exchange (DefaultExchange) InOnly ABCDEF0123456789ABCD", ""},
		{"trailing annotation", "Exchange (DefaultExchange) " + testID + " (redelivered)", testID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collector{}
			p := newTestParser(c)
			feedAll(t, p, headerLine, "    "+tt.line)
			p.Done()

			events := c.all()
			if tt.want == "" {
				if len(events) != 0 {
					t.Fatalf("got %d events, want discard (id = %q)", len(events), events[0].ExchangeID)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].ExchangeID != tt.want {
				t.Errorf("ExchangeID = %q, want %q", events[0].ExchangeID, tt.want)
			}
		})
	}
}

func TestHeaderKeyValueParsing(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		key   string
		value string
	}{
		{"typed", "Header (String)   userId         42", "userId", "42"},
		{"spaced value", "Header (String)   note      hello  world", "note", "hello  world"},
		{"no type", "Header   plain       value", "plain", "value"},
		{"parens in value untyped", "Header   note   see (appendix)", "note", "see (appendix)"},
		{"parens in value typed", "Header (String)   ref   item (legacy)", "ref", "item (legacy)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &collector{}
			p := newTestParser(c)
			feedAll(t, p,
				headerLine,
				"    "+tt.line,
				"    Exchange (DefaultExchange) InOnly "+testID,
			)
			p.Done()

			events := c.all()
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if got := events[0].Headers[tt.key]; got != tt.value {
				t.Errorf("Headers[%q] = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestLastWritePerHeaderKeyWins(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Header (String)   userId    1",
		"    Header (String)   userId    2",
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if got := events[0].Headers["userId"]; got != "2" {
		t.Errorf("Headers[userId] = %q, want %q", got, "2")
	}
}

func TestLinesBeforeFirstHeaderIgnored(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		"Press ctrl+c to exit",
		"    Exchange (DefaultExchange) InOnly "+testID,
		"random noise",
	)
	p.Done()

	if got := len(c.all()); got != 0 {
		t.Fatalf("got %d events, want 0 for pre-header lines", got)
	}
}

func TestNonBodyNoiseIgnored(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"decorative separator ~~~~~~~~",
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Body != "" {
		t.Errorf("noise outside body mode leaked into Body: %q", events[0].Body)
	}
}

func TestDoneFlushesInProgressEvent(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
	)
	p.Done()

	if got := len(c.all()); got != 1 {
		t.Fatalf("got %d events, want 1 at Done", got)
	}
	// Idempotent.
	p.Done()
	if got := len(c.all()); got != 1 {
		t.Fatalf("second Done re-emitted: %d events", got)
	}
}

func TestFeedAfterDone(t *testing.T) {
	p := newTestParser(&collector{})
	p.Done()
	if err := p.Feed(headerLine); !errors.Is(err, ErrDone) {
		t.Fatalf("Feed after Done = %v, want ErrDone", err)
	}
}

func TestEmissionCountMatchesIdentifiedHeaders(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	id2 := "DEADBEEF00000000-0000000000000002"
	feedAll(t, p,
		headerLine, // acquires an id
		"    Exchange (DefaultExchange) InOnly "+testID,
		headerLine, // superseded without an id
		headerLine, // acquires an id, flushed at Done
		"    Exchange (DefaultExchange) InOnly "+id2,
	)
	p.Done()

	events := c.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ExchangeID != testID || events[1].ExchangeID != id2 {
		t.Errorf("emission order = %q, %q", events[0].ExchangeID, events[1].ExchangeID)
	}
}

func TestEmittedSnapshotIsImmutable(t *testing.T) {
	c := &collector{}
	p := newTestParser(c)

	feedAll(t, p,
		headerLine,
		"    Exchange (DefaultExchange) InOnly "+testID,
		"    Body (String) (bytes: 5)",
		"hello",
		// After emission the live event keeps accumulating, but the
		// delivered snapshot must not change.
		"    Header (String)   late    header",
	)
	p.Done()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if _, ok := events[0].Headers["late"]; ok {
		t.Error("post-emission line mutated the emitted snapshot")
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"\x1b[33mhello\x1b[0m", "hello"},
		{"src | payload", "payload"},
		{"src | \x1b[1;32mok\x1b[0m", "ok"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := preprocess(tt.in); got != tt.want {
			t.Errorf("preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

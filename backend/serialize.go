// Package backend implements the line-oriented ASCII record format
// spec §6.2 specifies for test fixtures, plus the EXPANSION target and
// message records SPEC_FULL §6.6 adds so a fixture can also capture
// what a configuration run would actually produce on disk.
package backend

import (
	"bufio"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/dcbaker/meson/mir"
)

// Version is the serial version spec §6.2 requires every stream to
// declare on its first line.
const Version = 0

type (
	// Test is the record shape spec §6.2 names explicitly: a named
	// test backed by the path to the executable it runs. This
	// repository's DSL has no standalone test() registration builtin
	// (spec §4.9's budget table does not list one), so every resolved
	// Executable is also surfaced as a Test record keyed by its own
	// name, with Exe synthesized as <subdir>/<name>, a path relative
	// to the build root — the Open-Question-style resolution is
	// recorded in DESIGN.md.
	Test struct {
		Name string
		Exe  string
	}

	// Target is the SPEC_FULL §6.6 extension record for a resolved
	// Executable, StaticLibrary, or CustomTarget.
	Target struct {
		Kind    string // "EXECUTABLE", "STATIC_LIBRARY", "CUSTOM_TARGET"
		Name    string
		Sources int
		Machine string
	}

	// MessageRecord is the SPEC_FULL §6.6 extension record for a
	// surviving Message.
	MessageRecord struct {
		Level string
		Text  string
	}

	// Stream is everything Encode collects from one resolved
	// instruction list, in source order within each kind.
	Stream struct {
		Tests    []Test
		Targets  []Target
		Messages []MessageRecord
	}
)

// Build walks instrs and classifies every instruction the format can
// represent. Terminators, Phi, and Opaque instructions carry no
// backend-visible state and are skipped.
func Build(instrs []*mir.Instruction) Stream {
	var s Stream

	for _, inst := range instrs {
		switch v := inst.Obj.(type) {
		case mir.Message:
			s.Messages = append(s.Messages, MessageRecord{Level: v.Level.String(), Text: v.Text})
		case mir.Executable:
			s.Targets = append(s.Targets, Target{Kind: "EXECUTABLE", Name: v.Name, Sources: len(v.Sources), Machine: v.Machine})
			s.Tests = append(s.Tests, Test{Name: v.Name, Exe: exePath(v.Subdir, v.Name)})
		case mir.StaticLibrary:
			s.Targets = append(s.Targets, Target{Kind: "STATIC_LIBRARY", Name: v.Name, Sources: len(v.Sources), Machine: v.Machine})
		case mir.CustomTarget:
			s.Targets = append(s.Targets, Target{Kind: "CUSTOM_TARGET", Name: v.Name, Sources: len(v.Outputs), Machine: ""})
		}
	}

	return s
}

func exePath(subdir, name string) string {
	if subdir == "" || subdir == "." {
		return name
	}

	return subdir + "/" + name
}

// Encode renders a Stream in spec §6.2's line-oriented format:
//
//	SERIAL_VERSION:0
//	BEGIN_TEST
//	  name:<name>
//	  exe:<path>
//	END_TEST
//
// followed by the SPEC_FULL §6.6 BEGIN_TARGET/BEGIN_MESSAGE blocks in
// the same key:value style.
func Encode(s Stream) string {
	var b strings.Builder

	b.WriteString("SERIAL_VERSION:")
	b.WriteString(strconv.Itoa(Version))
	b.WriteByte('\n')

	for _, t := range s.Tests {
		b.WriteString("BEGIN_TEST\n")
		writeField(&b, "name", t.Name)
		writeField(&b, "exe", t.Exe)
		b.WriteString("END_TEST\n")
	}

	for _, t := range s.Targets {
		b.WriteString("BEGIN_TARGET\n")
		writeField(&b, "kind", t.Kind)
		writeField(&b, "name", t.Name)
		writeField(&b, "sources", strconv.Itoa(t.Sources))
		writeField(&b, "machine", t.Machine)
		b.WriteString("END_TARGET\n")
	}

	for _, m := range s.Messages {
		b.WriteString("BEGIN_MESSAGE\n")
		writeField(&b, "level", m.Level)
		writeField(&b, "text", m.Text)
		b.WriteString("END_MESSAGE\n")
	}

	return b.String()
}

// EncodeTests is the convenience entrypoint the CLI and earlier
// fixtures use: build a Stream straight from a resolved instruction
// list and render it.
func EncodeTests(instrs []*mir.Instruction) string {
	return Encode(Build(instrs))
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString("  ")
	b.WriteString(key)
	b.WriteByte(':')
	b.WriteString(escape(value))
	b.WriteByte('\n')
}

// escape backslash-escapes newline, which would otherwise break the
// line-oriented grammar, and backslash itself, so the escaping stays
// reversible; a field value is
// everything after the first ':' up to end of line.
func escape(s string) string {
	if !strings.ContainsAny(s, "\\\n") {
		return s
	}

	var b strings.Builder

	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder

	esc := false

	for _, r := range s {
		if esc {
			switch r {
			case 'n':
				b.WriteByte('\n')
			default:
				b.WriteRune(r)
			}

			esc = false

			continue
		}

		if r == '\\' {
			esc = true
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// recognizedFields lists, per record kind, which field keys are valid
// — spec §6.2's "unknown fields after a known one are a parse error".
var recognizedFields = map[string][]string{
	"TEST":    {"name", "exe"},
	"TARGET":  {"kind", "name", "sources", "machine"},
	"MESSAGE": {"level", "text"},
}

// Decode parses the Encode format back into a Stream. It enforces the
// version header and the per-kind known-field list spec §6.2 mandates.
func Decode(s string) (Stream, error) {
	sc := bufio.NewScanner(strings.NewReader(s))

	if !sc.Scan() {
		return Stream{}, errors.New("empty input: missing SERIAL_VERSION header")
	}

	first := strings.TrimSpace(sc.Text())

	ver, ok := strings.CutPrefix(first, "SERIAL_VERSION:")
	if !ok {
		return Stream{}, errors.New("expected SERIAL_VERSION header, got %q", first)
	}

	n, err := strconv.Atoi(ver)
	if err != nil {
		return Stream{}, errors.Wrap(err, "parse SERIAL_VERSION")
	}

	if n != Version {
		return Stream{}, errors.New("unsupported serial version %d (want %d)", n, Version)
	}

	var out Stream

	lineNo := 1

	for sc.Scan() {
		lineNo++

		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		kind, begun := strings.CutPrefix(strings.TrimSpace(line), "BEGIN_")
		if !begun {
			return Stream{}, errors.New("line %d: expected a BEGIN_ record, got %q", lineNo, line)
		}

		fields, consumed, err := decodeFields(sc, kind, lineNo)
		if err != nil {
			return Stream{}, err
		}

		lineNo += consumed

		switch kind {
		case "TEST":
			out.Tests = append(out.Tests, Test{Name: fields["name"], Exe: fields["exe"]})
		case "TARGET":
			srcN, _ := strconv.Atoi(fields["sources"])
			out.Targets = append(out.Targets, Target{
				Kind:    fields["kind"],
				Name:    fields["name"],
				Sources: srcN,
				Machine: fields["machine"],
			})
		case "MESSAGE":
			out.Messages = append(out.Messages, MessageRecord{Level: fields["level"], Text: fields["text"]})
		default:
			return Stream{}, errors.New("line %d: unknown record kind %q", lineNo, kind)
		}
	}

	if err := sc.Err(); err != nil {
		return Stream{}, errors.Wrap(err, "scan records")
	}

	return out, nil
}

// decodeFields reads key:value lines up to the matching END_<kind>
// line, rejecting any key not in recognizedFields[kind] (spec §6.2:
// "unknown fields after a known one are a parse error").
func decodeFields(sc *bufio.Scanner, kind string, startLine int) (map[string]string, int, error) {
	allowed := map[string]bool{}
	for _, f := range recognizedFields[kind] {
		allowed[f] = true
	}

	fields := map[string]string{}

	consumed := 0
	end := "END_" + kind

	for sc.Scan() {
		consumed++

		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)

		if trimmed == end {
			return fields, consumed, nil
		}

		key, val, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, consumed, errors.New("line %d: expected key:value, got %q", startLine+consumed, raw)
		}

		if !allowed[key] {
			return nil, consumed, errors.New("line %d: unknown field %q for %s record", startLine+consumed, key, kind)
		}

		fields[key] = unescape(val)
	}

	return nil, consumed, errors.New("unterminated %s record (missing %s)", kind, end)
}

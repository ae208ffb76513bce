package roster

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	commentPrefix = "//"
	markerPrefix  = ">> "
	markerSep     = " > "
)

// Header is the metadata block written at the top of a PSC file.
type Header struct {
	// Build is the text after "//VRCWMT - ". It is the only field that
	// is expected to change between otherwise identical writes.
	Build            string `toml:"build"`
	WorldName        string `toml:"world_name"`
	WorldDescription string `toml:"world_description"`
	WorldCreator     string `toml:"world_creator"`
}

// DefaultHeader returns the header the world has always been exported with.
func DefaultHeader() Header {
	return Header{
		Build:            "UTC 10/3/25 12:06 AM - V1.4.0",
		WorldName:        "MURDER DRONES",
		WorldDescription: "Murder Drones Hub",
		WorldCreator:     "MagmaMCNet",
	}
}

// Stamped returns a copy of h whose build line carries t and version in the
// format the world tooling uses, e.g. "UTC 10/3/25 12:06 AM - V1.4.0".
func (h Header) Stamped(t time.Time, version string) Header {
	h.Build = fmt.Sprintf("UTC %s - V%s", t.UTC().Format("1/2/06 3:04 PM"), version)
	return h
}

// DiagnosticKind classifies a line Decode skipped.
type DiagnosticKind string

const (
	DiagUnknownCategory DiagnosticKind = "unknown-category"
	DiagMalformedMarker DiagnosticKind = "malformed-marker"
	DiagOrphanLine      DiagnosticKind = "orphan-line"
	DiagSkippedLine     DiagnosticKind = "skipped-line"
)

// Diagnostic records a skipped line. Decode never fails because of one.
type Diagnostic struct {
	Line int
	Kind DiagnosticKind
	Text string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %q", d.Line, d.Kind, d.Text)
}

// Diagnostics is the list of lines a decode ignored.
type Diagnostics []Diagnostic

// Dropped returns how many data lines were lost to unrecognized sections.
func (ds Diagnostics) Dropped() int {
	n := 0
	for _, d := range ds {
		if d.Kind == DiagSkippedLine {
			n++
		}
	}
	return n
}

// Decode parses PSC text. It is lenient: unknown sections, malformed markers
// and stray lines are reported as diagnostics, never as errors. Lines of any
// length are accepted. The only error is a failure of rd itself.
func Decode(rd io.Reader) (*Roster, Diagnostics, error) {
	r := New()
	var diags Diagnostics

	br := bufio.NewReader(rd)

	current := Category(-1)
	inert := false
	lineNo := 0
	for {
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, diags, fmt.Errorf("reading roster: %w", err)
		}
		if raw == "" && err != nil {
			break
		}
		lineNo++
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, commentPrefix):
			continue
		case strings.HasPrefix(line, markerPrefix):
			token, ok := markerToken(line)
			if !ok {
				diags = append(diags, Diagnostic{Line: lineNo, Kind: DiagMalformedMarker, Text: line})
				current, inert = -1, true
				continue
			}
			c, err := ParseCategory(token)
			if err != nil {
				diags = append(diags, Diagnostic{Line: lineNo, Kind: DiagUnknownCategory, Text: line})
				current, inert = -1, true
				continue
			}
			current, inert = c, false
		case current.Valid():
			r.sets[current][line] = struct{}{}
		case inert:
			diags = append(diags, Diagnostic{Line: lineNo, Kind: DiagSkippedLine, Text: line})
		default:
			diags = append(diags, Diagnostic{Line: lineNo, Kind: DiagOrphanLine, Text: line})
		}
	}

	return r, diags, nil
}

// DecodeString is Decode over a string.
func DecodeString(s string) (*Roster, Diagnostics, error) {
	return Decode(strings.NewReader(s))
}

// markerToken extracts CATEGORY from ">> CATEGORY > expression".
func markerToken(line string) (string, bool) {
	rest := strings.TrimPrefix(line, markerPrefix)
	if i := strings.Index(rest, markerSep); i >= 0 {
		rest = rest[:i]
	}
	token := strings.TrimSpace(rest)
	return token, token != ""
}

// Encode writes r in canonical PSC form: the header, then every category in
// fixed order with its members sorted. Output depends only on r and h.
func Encode(w io.Writer, r *Roster, h Header) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "//AUTO GENERATED DO NOT EDIT!")
	fmt.Fprintf(bw, "//VRCWMT - %s\n", h.Build)
	fmt.Fprintf(bw, "//WorldName: %s\n", h.WorldName)
	fmt.Fprintf(bw, "//WorldDescription: %s\n", h.WorldDescription)
	fmt.Fprintf(bw, "//WorldCreator: %s\n", h.WorldCreator)
	fmt.Fprintln(bw)

	cats := Categories()
	for i, c := range cats {
		fmt.Fprintf(bw, "%s%s%s%s\n", markerPrefix, c, markerSep, c.Expression())
		for _, p := range r.Members(c) {
			fmt.Fprintln(bw, p)
		}
		if i < len(cats)-1 {
			fmt.Fprintln(bw)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing roster: %w", err)
	}
	return nil
}

// EncodeString is Encode into a string.
func EncodeString(r *Roster, h Header) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, h); err != nil {
		return "", err
	}
	return buf.String(), nil
}

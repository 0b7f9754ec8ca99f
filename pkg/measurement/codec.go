package measurement

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kaihowl/gitperf/internal/warnonce"
)

// Serialize encodes one Measurement as a single line (no trailing newline):
//
//	<epoch:decimal><name> <timestamp> <value>( <key>=<value>)*
//
// Epoch is written as a base-10 integer with no leading zeroes, immediately
// followed by the name with no separator — the parser finds the boundary by
// scanning for the first non-digit rune, which is why a valid name never
// starts with a digit (§4.1, §9 Open Question 1).
func Serialize(m Measurement) string {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(uint64(m.Epoch), 10))
	b.WriteString(m.Name)
	b.WriteByte(' ')
	b.WriteString(formatFloat(m.Timestamp))
	b.WriteByte(' ')
	b.WriteString(formatFloat(m.Value))

	for k, v := range m.KeyValues {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}

	return b.String()
}

// formatFloat renders a float with at least one digit on each side of the
// decimal point, as required by §4.1, while still round-tripping exactly
// through strconv.ParseFloat.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") { // nN catches Inf/NaN, left untouched
		s += ".0"
	}

	return s
}

// Deserialize parses one line produced by Serialize (or a compatible line
// from an existing note) back into a Measurement. Malformed lines return an
// error; the caller (DeserializeNote) is responsible for dropping only the
// offending line and continuing, per the partial-failure tolerance property.
func Deserialize(line string) (Measurement, error) {
	boundary := epochBoundary(line)
	if boundary == 0 {
		return Measurement{}, fmt.Errorf("%w: line does not start with an epoch digit", ErrMalformedLine)
	}

	epoch, err := strconv.ParseUint(line[:boundary], 10, 32)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: invalid epoch: %v", ErrMalformedLine, err)
	}

	fields := strings.Fields(line[boundary:])
	if len(fields) < 3 {
		return Measurement{}, fmt.Errorf("%w: expected name, timestamp, value", ErrMalformedLine)
	}

	name := fields[0]
	if err := ValidateName(name); err != nil {
		return Measurement{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	timestamp, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: invalid timestamp: %v", ErrMalformedLine, err)
	}

	value, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: invalid value: %v", ErrMalformedLine, err)
	}

	kv := make(map[string]string, len(fields)-3)

	for _, tok := range fields[3:] {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return Measurement{}, fmt.Errorf("%w: trailing token %q is not key=value", ErrMalformedLine, tok)
		}

		if _, dup := kv[key]; dup {
			warnonce.Do("codec:dup-key:"+key, func() {
				slog.Warn("duplicate measurement key, keeping first occurrence", "key", key, "name", name)
			})

			continue
		}

		kv[key] = val
	}

	return Measurement{
		Epoch:     uint32(epoch),
		Name:      name,
		Timestamp: timestamp,
		Value:     value,
		KeyValues: kv,
	}, nil
}

// epochBoundary returns the length of the leading run of ASCII digits in s.
func epochBoundary(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	return i
}

// DeserializeNote parses a whole note body (one measurement per line,
// newline-terminated, empty lines ignored) into an ordered slice of
// Measurements. Malformed lines are dropped with a warning; they never
// poison the rest of the note.
func DeserializeNote(body string) []Measurement {
	lines := strings.Split(body, "\n")
	out := make([]Measurement, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		m, err := Deserialize(line)
		if err != nil {
			warnonce.Do("codec:malformed-line", func() {
				slog.Warn("dropping malformed measurement line", "error", err)
			})

			continue
		}

		out = append(out, m)
	}

	return out
}

// SerializeNote appends one encoded line per Measurement, each terminated by
// '\n'. Concatenating two valid note bodies with a newline between them
// yields a valid note body (append-safety), since this format never
// requires a header or footer.
func SerializeNote(ms []Measurement) string {
	var b strings.Builder

	for _, m := range ms {
		b.WriteString(Serialize(m))
		b.WriteByte('\n')
	}

	return b.String()
}

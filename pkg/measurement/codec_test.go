package measurement_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaihowl/gitperf/pkg/measurement"
)

func TestRoundTrip_S7(t *testing.T) {
	t.Parallel()

	m, err := measurement.New(0, "build_time", 1234567890.0, 42.5, map[string]string{
		"os":   "linux",
		"arch": "x64",
	})
	require.NoError(t, err)

	line := measurement.Serialize(m)

	assert.Equal(t, 1, strings.Count(line+"\n", "\n"))
	assert.NotContains(t, line, "\t")
	assert.Equal(t, 1, strings.Count(line, "os=linux"))
	assert.Equal(t, 1, strings.Count(line, "arch=x64"))

	got, err := measurement.Deserialize(line)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRoundTripProperty(t *testing.T) {
	t.Parallel()

	cases := []measurement.Measurement{
		{Epoch: 0, Name: "a", Timestamp: 0, Value: 0, KeyValues: map[string]string{}},
		{Epoch: 42, Name: "throughput", Timestamp: -1.5, Value: -99.25, KeyValues: map[string]string{"host": "ci-1"}},
		{Epoch: 4294967295, Name: "mem_rss", Timestamp: 1.0, Value: 1e10, KeyValues: nil},
	}

	for _, m := range cases {
		line := measurement.Serialize(m)

		got, err := measurement.Deserialize(line)
		require.NoError(t, err)

		if m.KeyValues == nil {
			m.KeyValues = map[string]string{}
		}

		assert.Equal(t, m, got)
	}
}

func TestDeserialize_MalformedLineDoesNotPoisonNote(t *testing.T) {
	t.Parallel()

	good1, _ := measurement.New(1, "ok1", 1.0, 2.0, nil)
	good2, _ := measurement.New(1, "ok2", 1.0, 3.0, nil)

	body := measurement.Serialize(good1) + "\n" +
		"not a valid line at all\n" +
		"\n" + // empty line ignored
		measurement.Serialize(good2) + "\n"

	ms := measurement.DeserializeNote(body)
	require.Len(t, ms, 2)
	assert.Equal(t, "ok1", ms[0].Name)
	assert.Equal(t, "ok2", ms[1].Name)
}

func TestDeserialize_DuplicateKeyKeepsFirst(t *testing.T) {
	t.Parallel()

	line := "0dup 1.0 2.0 a=first a=second"

	m, err := measurement.Deserialize(line)
	require.NoError(t, err)
	assert.Equal(t, "first", m.KeyValues["a"])
}

func TestSerializeNote_AppendSafety(t *testing.T) {
	t.Parallel()

	m1, _ := measurement.New(0, "one", 1, 1, nil)
	m2, _ := measurement.New(0, "two", 2, 2, nil)

	bodyA := measurement.SerializeNote([]measurement.Measurement{m1})
	bodyB := measurement.SerializeNote([]measurement.Measurement{m2})

	combined := bodyA + bodyB

	ms := measurement.DeserializeNote(combined)
	require.Len(t, ms, 2)
	assert.Equal(t, "one", ms[0].Name)
	assert.Equal(t, "two", ms[1].Name)
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	require.Error(t, measurement.ValidateName(""))
	require.Error(t, measurement.ValidateName("has space"))
	require.Error(t, measurement.ValidateName("has=equals"))
	require.ErrorIs(t, measurement.ValidateName("2foo"), measurement.ErrNameStartsWithDigit)
	require.NoError(t, measurement.ValidateName("build_time"))
}

func TestNew_RejectsDigitLeadingName(t *testing.T) {
	t.Parallel()

	_, err := measurement.New(3, "2foo", 1, 1, nil)
	require.ErrorIs(t, err, measurement.ErrNameStartsWithDigit)
}

package record_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/record"
	"github.com/thechriswalker/egverify/record/recordtest"
)

func fixture() *recordtest.Fixture {
	return recordtest.Build(elgamal.EightBit(), recordtest.Options{
		Trustees:  3,
		Threshold: 2,
		Missing:   []int{3},
		Limits:    []int{1},
		Cast:      []recordtest.Ballot{{{1, 0}}, {{0, 1}}},
		Spoiled:   []recordtest.Ballot{{{0, 1}}},
		Manifest:  true,
	})
}

func encode(t *testing.T, e *record.Election) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, record.Encode(buf, e))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	f := fixture()
	raw := encode(t, f.Election)

	e, err := record.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(encode(t, e)))

	assert.Equal(t, 3, e.Parameters.NumTrustees)
	assert.Equal(t, 2, e.Parameters.Threshold)
	assert.Zero(t, e.Parameters.Prime.Cmp(f.System.P))
	assert.Zero(t, e.ExtendedBaseHash.Cmp(f.Qbar))
	require.Len(t, e.Manifest, 1)
	assert.Equal(t, record.ContestDescription{ID: "contest-1", NumSelections: 2, MaxSelections: 1}, e.Manifest[0])

	want := f.Election.CastBallots[1].Contests[0].Messages()
	got := e.CastBallots[1].Contests[0].Messages()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equals(got[i]), "message %d", i)
	}

	shares := e.ContestTallies[0][1].Shares
	require.Len(t, shares, 3)
	assert.False(t, shares[0].Recovered())
	assert.True(t, shares[2].Recovered())
	assert.Len(t, shares[2].Fragments, 2)
	assert.Equal(t, 2, shares[2].Fragments[1].TrusteeIndex)
}

func TestOptionalManifest(t *testing.T) {
	f := fixture()
	f.Election.Manifest = nil
	raw := encode(t, f.Election)
	assert.NotContains(t, string(raw), `"manifest"`)
	e, err := record.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Empty(t, e.Manifest)
}

func TestLoad(t *testing.T) {
	f := fixture()
	raw := encode(t, f.Election)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	e, err := record.Load(path)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(encode(t, e)))

	_, err = record.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, record.ErrMalformed))
}

// mutate decodes raw generically, applies fn and re-encodes it.
func mutate(t *testing.T, raw []byte, fn func(m map[string]interface{})) []byte {
	t.Helper()
	m := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &m))
	fn(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}

func object(v interface{}, keys ...interface{}) map[string]interface{} {
	for _, k := range keys {
		switch k := k.(type) {
		case string:
			v = v.(map[string]interface{})[k]
		case int:
			v = v.([]interface{})[k]
		}
	}
	return v.(map[string]interface{})
}

func TestMalformed(t *testing.T) {
	raw := encode(t, fixture().Election)

	cases := []struct {
		name  string
		input []byte
		path  string
	}{
		{"not json", []byte("{"), ""},
		{"no parameters", []byte("{}"), "parameters"},
		{
			"bad count",
			bytes.Replace(raw, []byte(`"num_trustees": "3"`), []byte(`"num_trustees": "three"`), 1),
			"parameters.num_trustees",
		},
		{
			"negative threshold",
			bytes.Replace(raw, []byte(`"threshold": "2"`), []byte(`"threshold": "-2"`), 1),
			"parameters.threshold",
		},
		{
			"share without proof or fragments",
			mutate(t, raw, func(m map[string]interface{}) {
				delete(object(m, "contest_tallies", 0, 0, "shares", 1), "proof")
			}),
			"contest_tallies[0][0].shares[1]",
		},
		{
			"missing selection message",
			mutate(t, raw, func(m map[string]interface{}) {
				delete(object(m, "cast_ballots", 0, "contests", 0, "selections", 1), "message")
			}),
			"cast_ballots[0].contests[0].selections[1].message",
		},
		{
			"bad fragment index",
			mutate(t, raw, func(m map[string]interface{}) {
				object(m, "spoiled_ballots", 0, "contests", 0, 0, "shares", 2, "fragments", 0)["trustee_index"] = "x"
			}),
			"spoiled_ballots[0].contests[0][0].shares[2].fragments[0].trustee_index",
		},
		{
			"missing schnorr proof",
			mutate(t, raw, func(m map[string]interface{}) {
				delete(object(m, "trustee_public_keys", 1, 0), "proof")
			}),
			"trustee_public_keys[1][0].proof",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := record.Decode(bytes.NewReader(tc.input))
			assert.Nil(t, e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, record.ErrMalformed), "error: %v", err)
			if tc.path != "" {
				assert.True(t, strings.Contains(err.Error(), tc.path+":"), "error %q should name %s", err, tc.path)
			}
		})
	}
}

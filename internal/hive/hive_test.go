package hive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestParse_SingleKeyWithValues(t *testing.T) {
	input := strings.Join([]string{
		`isolation writecopy HKEY_LOCAL_MACHINE\SOFTWARE\X`,
		`  REG_SZ "Name" "v"`,
		`  REG_DWORD @ "1" expand-data`,
	}, "\n")

	root, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	hklm := root.Subkeys["HKEY_LOCAL_MACHINE"]
	require.NotNil(t, hklm)
	require.True(t, hklm.Intermediate, "synthesized ancestor must be intermediate")
	require.Equal(t, `HKEY_LOCAL_MACHINE`, hklm.Path)

	software := hklm.Subkeys["SOFTWARE"]
	require.NotNil(t, software)

	x := software.Subkeys["X"]
	require.NotNil(t, x)
	require.False(t, x.Intermediate)
	require.Equal(t, "writecopy", x.Isolation)
	require.Equal(t, `HKEY_LOCAL_MACHINE\SOFTWARE\X`, x.Path)
	require.Len(t, x.Values, 2)

	require.Equal(t, strptr("Name"), x.Values[0].Name)
	require.Equal(t, "REG_SZ", x.Values[0].Kind)
	require.Equal(t, "v", x.Values[0].Data)

	require.Nil(t, x.Values[1].Name, "@ means the default value")
	require.True(t, x.Values[1].DataExpand)
	require.False(t, x.Values[1].NameExpand)
}

func TestParse_ExplicitAncestorNotIntermediate(t *testing.T) {
	input := strings.Join([]string{
		`isolation full HKEY_USERS`,
		`isolation merged HKEY_USERS\S-1-5-18`,
	}, "\n")

	root, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	hku := root.Subkeys["HKEY_USERS"]
	require.False(t, hku.Intermediate)
	require.Equal(t, "full", hku.Isolation)
	require.Equal(t, "merged", hku.Subkeys["S-1-5-18"].Isolation)
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		`  REG_SZ "orphan" "value"`,
		`isolation full`,
		`garbage line`,
		"isolation full HKEY_USERS\n  REG_SZ unquoted x",
	}
	for _, input := range cases {
		_, err := Parse(strings.NewReader(input))
		require.Error(t, err, "input %q", input)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	root := NewKey("", "", false)
	hklm := NewKey(`HKEY_LOCAL_MACHINE`, "full", false)
	software := NewKey(`HKEY_LOCAL_MACHINE\SOFTWARE`, "", true)
	x := NewKey(`HKEY_LOCAL_MACHINE\SOFTWARE\X`, "writecopy", false)
	x.Values = []*Value{
		{Name: strptr("Path"), Kind: "REG_EXPAND_SZ", Data: `%ProgramFiles%\X`, DataExpand: true},
		{Name: nil, Kind: "REG_SZ", Data: "default"},
		{Name: strptr("Count"), Kind: "REG_DWORD", Data: "42"},
	}
	software.Subkeys["X"] = x
	hklm.Subkeys["SOFTWARE"] = software
	root.Subkeys["HKEY_LOCAL_MACHINE"] = hklm

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, root))

	parsed, err := Parse(&buf)
	require.NoError(t, err)

	got := parsed.Subkeys["HKEY_LOCAL_MACHINE"].Subkeys["SOFTWARE"].Subkeys["X"]
	require.NotNil(t, got)
	require.Equal(t, "writecopy", got.Isolation)
	require.Len(t, got.Values, 3)

	// Values come back ordered: default first, then by name.
	require.Nil(t, got.Values[0].Name)
	require.Equal(t, strptr("Count"), got.Values[1].Name)
	require.Equal(t, strptr("Path"), got.Values[2].Name)
	require.Equal(t, `%ProgramFiles%\X`, got.Values[2].Data)
	require.True(t, got.Values[2].DataExpand)

	// A second write of the parsed tree is byte-identical.
	var second bytes.Buffer
	require.NoError(t, Write(&second, parsed))
	var first bytes.Buffer
	require.NoError(t, Write(&first, root))
	require.Equal(t, first.String(), second.String())
}

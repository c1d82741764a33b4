package parser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

type golden struct {
	Prose        []string                `json:"prose"`
	Instructions []model.EditInstruction `json:"instructions"`
	Dropped      []int                   `json:"dropped"`
}

func TestScanGolden(t *testing.T) {
	inputs, err := filepath.Glob(filepath.Join("testdata", "*.txt"))
	require.NoError(t, err)
	require.NotEmpty(t, inputs)

	for _, input := range inputs {
		name := strings.TrimSuffix(filepath.Base(input), ".txt")
		t.Run(name, func(t *testing.T) {
			text, err := os.ReadFile(input)
			require.NoError(t, err)
			data, err := os.ReadFile(filepath.Join("testdata", name+".golden.json"))
			require.NoError(t, err)

			var want golden
			require.NoError(t, json.Unmarshal(data, &want))

			resp := Scan(string(text), false)
			got := golden{
				Prose:        resp.ProseChunks,
				Instructions: resp.Instructions,
			}
			for _, d := range resp.Diagnostics {
				got.Dropped = append(got.Dropped, d.Index)
				assert.ErrorIs(t, d.Err, model.ErrMalformedBlock)
			}

			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanPartialHidesOpenBlock(t *testing.T) {
	text := "Let's fix it.\n<change_code path=\"a.txt\"><search>old</search><replace>new</replace>"

	resp := Scan(text, true)

	assert.Equal(t, []string{"Let's fix it."}, resp.ProseChunks)
	assert.Empty(t, resp.Instructions)
	assert.Empty(t, resp.Diagnostics)
}

func TestScanPartialHidesHalfWrittenMarker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lone angle bracket", "Here we go <", []string{"Here we go"}},
		{"half marker", "Here we go\n<change_co", []string{"Here we go"}},
		{"full marker", "Here we go\n<change_code", []string{"Here we go"}},
		{"not a marker", "a <b> c", []string{"a <b> c"}},
		{"diverged from marker", "Here we go <chance", []string{"Here we go <chance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.text, true).ProseChunks)
		})
	}
}

func TestScanFinalKeepsHalfWrittenMarkerAsProse(t *testing.T) {
	resp := Scan("Compare a <chan", false)
	assert.Equal(t, []string{"Compare a <chan"}, resp.ProseChunks)
}

func TestScanSkipsLookAlikeTags(t *testing.T) {
	text := "See <change_codes> for details."
	resp := Scan(text, false)
	assert.Equal(t, []string{text}, resp.ProseChunks)
	assert.Empty(t, resp.Diagnostics)
}

func TestScanFinalRecoversTruncatedBlock(t *testing.T) {
	text := "Fix.\n<change_code path=\"a.txt\"><search>old</search><replace>new</replace>"

	resp := Scan(text, false)

	require.Len(t, resp.Instructions, 1)
	assert.Equal(t, model.EditInstruction{FilePath: "a.txt", SearchText: "old", ReplaceText: "new"}, resp.Instructions[0])
	assert.Empty(t, resp.Diagnostics)
}

func TestScanFinalReportsUnrecoverableBlock(t *testing.T) {
	text := "<change_code path=\"a.txt\"><search>a</search><replace>b</replace></change_code>" +
		"<change_code path=\"b.txt\"><search>half"

	resp := Scan(text, false)

	require.Len(t, resp.Instructions, 1)
	assert.Equal(t, "a.txt", resp.Instructions[0].FilePath)
	require.Len(t, resp.Diagnostics, 1)
	assert.Equal(t, 1, resp.Diagnostics[0].Index)
	assert.ErrorIs(t, resp.Diagnostics[0].Err, model.ErrMalformedBlock)
}

func TestScanPrefixConsistency(t *testing.T) {
	text := "Intro text, a < b.\n" +
		"<change_code path=\"a.txt\"><search>b</search><replace>B</replace></change_code>\n" +
		"Middle text.\n" +
		"<change_code path=\"a.txt\">\n<<<<<<< SEARCH\nB\n=======\nBB\n>>>>>>> REPLACE\n</change_code>\n" +
		"Outro."

	final := Scan(text, false)
	require.Len(t, final.Instructions, 2)

	var prevProse []string
	var prevInstr []model.EditInstruction
	for i := 0; i <= len(text); i++ {
		got := Scan(text[:i], true)

		require.LessOrEqual(t, len(got.Instructions), len(final.Instructions), "prefix %d", i)
		for j, instr := range got.Instructions {
			require.Equal(t, final.Instructions[j], instr, "prefix %d instruction %d", i, j)
		}
		require.GreaterOrEqual(t, len(got.Instructions), len(prevInstr), "prefix %d", i)

		require.LessOrEqual(t, len(got.ProseChunks), len(final.ProseChunks), "prefix %d", i)
		for j, chunk := range got.ProseChunks {
			require.True(t, strings.HasPrefix(final.ProseChunks[j], chunk), "prefix %d chunk %d: %q", i, j, chunk)
		}
		for j := 0; j+1 < len(prevProse); j++ {
			require.Equal(t, prevProse[j], got.ProseChunks[j], "prefix %d chunk %d", i, j)
		}

		prevProse, prevInstr = got.ProseChunks, got.Instructions
	}
}

func TestScanIsStateless(t *testing.T) {
	text := "x\n<change_code path=\"a\"><search>1</search><replace>2</replace></change_code>"
	first := Scan(text, false)
	second := Scan(text, false)
	assert.Equal(t, first, second)
}

func TestParsedResponseMessage(t *testing.T) {
	resp := Scan("one\n<change_code path=\"a\"><search>1</search><replace>2</replace></change_code>\ntwo", false)
	assert.Equal(t, "one\ntwo", resp.Message())
}

package params

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Args(t *testing.T) {
	tests := []struct {
		name     string
		req      *Request
		wantArgs []string
	}{
		{
			name: "unset distance field gets the service default",
			req: &Request{
				Preset:   "ascii",
				FontName: "Arial",
				Padding:  Int(20),
			},
			wantArgs: []string{
				"--df", "edt",
				"--preset", "ascii",
				"--fontname", "Arial",
				"--padding", "20",
			},
		},
		{
			name: "explicit none suppresses the distance field argument",
			req: &Request{
				DistanceField: DistanceFieldNone,
				Preset:        "ascii",
				FontName:      "Arial",
			},
			wantArgs: []string{
				"--preset", "ascii",
				"--fontname", "Arial",
			},
		},
		{
			name: "explicit algorithm is passed through",
			req: &Request{
				DistanceField: DistanceField8SSEDT,
				Glyphs:        "abc",
				FontFile:      "/fonts/Inter.ttf",
			},
			wantArgs: []string{
				"--df", "8ssedt",
				"--glyphs", "abc",
				"--fontfile", "/fonts/Inter.ttf",
			},
		},
		{
			name: "char codes are flattened into one token",
			req: &Request{
				CharCodes: []int{65, 66, 67},
				FontName:  "Arial",
			},
			wantArgs: []string{
				"--df", "edt",
				"--charcodes", "65,66,67",
				"--fontname", "Arial",
			},
		},
		{
			name: "all options in fixed order",
			req: &Request{
				DistanceField:       DistanceFieldSweep,
				Packing:             "maxrects",
				Preset:              "latin1",
				FontSize:            Int(48),
				FontName:            "Noto Sans",
				Padding:             Int(0),
				Downsample:          Int(2),
				DownsampleAlgorithm: "lanczos",
				DynamicRange:        &[2]int{-4, 4},
			},
			wantArgs: []string{
				"--df", "sweep",
				"--packing", "maxrects",
				"--preset", "latin1",
				"--fontsize", "48",
				"--fontname", "Noto Sans",
				"--padding", "0",
				"--downsample", "2",
				"--downsample-algorithm", "lanczos",
				"--dynamic-range", "-4,4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(tt.req)
			assert.Equal(t, tt.wantArgs, n.Args)
			assert.Equal(t, Key(tt.wantArgs), n.Key)
		})
	}
}

func TestNormalize_UnsetAndNoneDiffer(t *testing.T) {
	unset := Normalize(&Request{Preset: "ascii", FontName: "Arial"})
	none := Normalize(&Request{Preset: "ascii", FontName: "Arial", DistanceField: DistanceFieldNone})
	explicitDefault := Normalize(&Request{Preset: "ascii", FontName: "Arial", DistanceField: DefaultDistanceField})

	assert.NotEqual(t, unset.Key, none.Key, "none must not be treated as unset")
	assert.Equal(t, unset.Key, explicitDefault.Key, "unset is the same as asking for the default")
}

func TestNormalize_OrchestrationFlagsExcludedFromKey(t *testing.T) {
	base := &Request{Preset: "ascii", FontName: "Arial"}
	flagged := &Request{Preset: "ascii", FontName: "Arial", NoCache: true, IgnoreLock: true, Metrics: true}

	assert.Equal(t, Normalize(base).Key, Normalize(flagged).Key)
}

func TestNormalize_FieldChangesKey(t *testing.T) {
	base := Normalize(&Request{Preset: "ascii", FontName: "Arial", Padding: Int(20)})

	variants := []*Request{
		{Preset: "ascii", FontName: "Arial", Padding: Int(21)},
		{Preset: "ascii", FontName: "Arial"},
		{Preset: "latin1", FontName: "Arial", Padding: Int(20)},
		{Preset: "ascii", FontName: "Arial Bold", Padding: Int(20)},
		{Preset: "ascii", FontName: "Arial", Padding: Int(20), Packing: "shelf"},
		{Preset: "ascii", FontName: "Arial", Padding: Int(20), FontSize: Int(20)},
	}

	for _, v := range variants {
		assert.NotEqual(t, base.Key, Normalize(v).Key, "args %v", Normalize(v).Args)
	}
}

func TestKey_ArgumentBoundariesMatter(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
	}{
		{
			name: "separator smuggled into a value",
			a:    []string{"--preset", "ascii", "--fontname", "Arial", "--padding", "20"},
			b:    []string{"--preset", "ascii", "--fontname", "Arial\x00--padding\x0020"},
		},
		{
			name: "value split across arguments",
			a:    []string{"--glyphs", "ab", "c"},
			b:    []string{"--glyphs", "a", "bc"},
		},
		{
			name: "empty argument",
			a:    []string{"--glyphs", ""},
			b:    []string{"--glyphs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Key(tt.a), Key(tt.b))
		})
	}
}

func TestKey_ControlCharactersNeverReachKey(t *testing.T) {
	values := url.Values{"preset": {"ascii"}, "fontname": {"Arial\x00--padding\x0020"}}

	_, err := ParseQuery(values)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestKey_FilesystemSafe(t *testing.T) {
	for _, req := range []*Request{
		{Preset: "ascii", FontName: "Arial"},
		{Glyphs: "/+=", FontFile: "/a/b/c.ttf"},
		{CharCodes: []int{0, 1114111}, FontName: "x", DynamicRange: &[2]int{-100, 100}},
	} {
		key := Normalize(req).Key
		assert.Len(t, key, 26)
		assert.NotContains(t, key, "/")
		assert.NotContains(t, key, "+")
		assert.NotContains(t, key, "=")
		assert.False(t, strings.HasPrefix(key, "-"))
		assert.Equal(t, strings.ToLower(key), key)
	}
}

func TestKey_QueryOrderingIrrelevant(t *testing.T) {
	a, err := url.ParseQuery("preset=ascii&fontname=Arial&padding=20")
	require.NoError(t, err)
	b, err := url.ParseQuery("padding=20&fontname=Arial&preset=ascii")
	require.NoError(t, err)
	c, err := url.ParseQuery("fontname=Arial&nocache=1&padding=20&preset=ascii&fnt")
	require.NoError(t, err)

	reqA, err := ParseQuery(a)
	require.NoError(t, err)
	reqB, err := ParseQuery(b)
	require.NoError(t, err)
	reqC, err := ParseQuery(c)
	require.NoError(t, err)

	assert.Equal(t, Normalize(reqA).Key, Normalize(reqB).Key)
	assert.Equal(t, Normalize(reqA).Key, Normalize(reqC).Key)
}

func TestKey_CharCodeSpellingsAgree(t *testing.T) {
	a, err := ParseQuery(url.Values{"charcodes": {"65,66,0x43"}, "fontname": {"Arial"}})
	require.NoError(t, err)
	b, err := ParseQuery(url.Values{"charcodes": {"65 66 U+0043"}, "fontname": {"Arial"}})
	require.NoError(t, err)

	assert.Equal(t, Normalize(a).Args, Normalize(b).Args)
	assert.Equal(t, Normalize(a).Key, Normalize(b).Key)
}

package format

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
)

func TestSplitFile(t *testing.T) {
	cases := []struct {
		size, ceiling, chunks int
	}{
		{0, 4, 1},
		{3, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{8, 4, 2},
		{9, 4, 3},
		{100, 7, 15},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d/%d", c.size, c.ceiling), func(t *testing.T) {
			data := make([]byte, c.size)
			for i := range data {
				data[i] = byte(i)
			}

			chunks := SplitFile("print.gcode", data, c.ceiling)
			require.Len(t, chunks, c.chunks)

			var joined []byte
			for i, ch := range chunks {
				assert.LessOrEqual(t, len(ch.Data), c.ceiling)
				if c.chunks == 1 {
					assert.Equal(t, "print.gcode", ch.Label)
				} else {
					assert.Equal(t, fmt.Sprintf("print.gcode (part %d/%d)", i+1, c.chunks), ch.Label)
				}
				joined = append(joined, ch.Data...)
			}
			assert.True(t, bytes.Equal(data, joined))
		})
	}
}

func TestSplitFileDefaultCeiling(t *testing.T) {
	chunks := SplitFile("big.bin", make([]byte, DefaultAttachmentCeiling+1), 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Data, DefaultAttachmentCeiling)
	assert.Len(t, chunks[1].Data, 1)
}

func TestExtractMentions(t *testing.T) {
	const both = "<@12345678910> <@Everyone>"

	assert.Equal(t, "", ExtractMentions("", ""))
	assert.Equal(t, "", ExtractMentions("no mentions here", "<@ spaced> @user"))
	assert.Equal(t, "<@12345678910> <@Everyone> ", ExtractMentions(both, ""))
	assert.Equal(t, "<@12345678910> <@Everyone> ", ExtractMentions("", both))
	assert.Equal(t, "<@1> <@2> <@1> ", ExtractMentions("hi <@1>", "<@2> and <@1> again"))
	assert.Equal(t, "<@> ", ExtractMentions("<@>", ""))
}

func TestBuildContentUnitsSimple(t *testing.T) {
	c := &protocol.Content{
		Title:       "Print done <@42>",
		Description: "benchy",
		Author:      "octoprint",
		Color:       0x00FF00,
		Fields: []protocol.TextField{
			{Title: "Time", Text: "1h", Inline: true},
			{Title: "Layer", Text: "200"},
		},
	}

	units := BuildContentUnits(c)
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, "<@42> ", u.Text)
	assert.Equal(t, Embed{
		Title:       "Print done <@42>",
		Description: "benchy",
		Author:      "octoprint",
		Color:       0x00FF00,
		Fields: []EmbedField{
			{Name: "Time", Value: "1h", Inline: true},
			{Name: "Layer", Value: "200"},
		},
	}, u.Embed)
	assert.Nil(t, u.Image)
}

func TestBuildContentUnitsSnapshot(t *testing.T) {
	snap := &protocol.File{Filename: "snapshot.png", Data: []byte{1}}
	units := BuildContentUnits(&protocol.Content{
		Title:       "t",
		Description: strings.Repeat("d", MaxDescriptionLength+1),
		Snapshot:    snap,
	})

	require.Len(t, units, 2)
	assert.Same(t, snap, units[0].Image)
	assert.Equal(t, "attachment://snapshot.png", units[0].Embed.ImageURL)
	assert.Nil(t, units[1].Image)
	assert.Empty(t, units[1].Embed.ImageURL)
}

func TestBuildContentUnitsLongDescription(t *testing.T) {
	desc := strings.Repeat("é", MaxDescriptionLength*2+10)
	units := BuildContentUnits(&protocol.Content{Title: "long", Description: desc, Author: "a"})

	require.Len(t, units, 3)
	assert.Equal(t, "long", units[0].Embed.Title)
	assert.Empty(t, units[1].Embed.Title)

	var joined strings.Builder
	for _, u := range units {
		assert.LessOrEqual(t, utf8.RuneCountInString(u.Embed.Description), MaxDescriptionLength)
		assert.Equal(t, "a", u.Embed.Author)
		joined.WriteString(u.Embed.Description)
	}
	assert.Equal(t, desc, joined.String())
}

func TestBuildContentUnitsTruncates(t *testing.T) {
	units := BuildContentUnits(&protocol.Content{
		Title:  strings.Repeat("t", MaxTitleLength+5),
		Author: strings.Repeat("a", MaxAuthorLength+5),
		Fields: []protocol.TextField{{Title: strings.Repeat("n", MaxFieldNameLength+5), Text: "v"}},
	})

	require.Len(t, units, 1)
	e := units[0].Embed
	assert.Len(t, e.Title, MaxTitleLength)
	assert.Len(t, e.Author, MaxAuthorLength)
	assert.Len(t, e.Fields[0].Name, MaxFieldNameLength)
}

func TestBuildContentUnitsLongFieldValue(t *testing.T) {
	value := strings.Repeat("v", MaxFieldValueLength*2+1)
	units := BuildContentUnits(&protocol.Content{
		Fields: []protocol.TextField{{Title: "log", Text: value, Inline: true}},
	})

	require.Len(t, units, 1)
	fields := units[0].Embed.Fields
	require.Len(t, fields, 3)
	var joined string
	for _, f := range fields {
		assert.Equal(t, "log", f.Name)
		assert.True(t, f.Inline)
		joined += f.Value
	}
	assert.Equal(t, value, joined)
}

func TestBuildContentUnitsFieldLimits(t *testing.T) {
	fields := make([]protocol.TextField, 60)
	for i := range fields {
		fields[i] = protocol.TextField{Title: fmt.Sprintf("f%d", i), Text: "x"}
	}
	units := BuildContentUnits(&protocol.Content{Title: "many", Fields: fields})

	require.Len(t, units, 3)
	assert.Len(t, units[0].Embed.Fields, MaxFieldsPerEmbed)
	assert.Len(t, units[1].Embed.Fields, MaxFieldsPerEmbed)
	assert.Len(t, units[2].Embed.Fields, 10)
	assert.Equal(t, "f0", units[0].Embed.Fields[0].Name)
	assert.Equal(t, "f25", units[1].Embed.Fields[0].Name)
	assert.Equal(t, "f59", units[2].Embed.Fields[9].Name)

	// 总字符数限制：每个字段约 1000 字符，第 6 个字段放不下。
	big := make([]protocol.TextField, 7)
	for i := range big {
		big[i] = protocol.TextField{Title: "n", Text: strings.Repeat("x", 999)}
	}
	units = BuildContentUnits(&protocol.Content{Fields: big})
	require.Len(t, units, 2)
	assert.Len(t, units[0].Embed.Fields, 6)
	for _, u := range units {
		assert.LessOrEqual(t, embedLength(&u.Embed), MaxEmbedLength)
	}
}

func TestBuildContentUnitsNil(t *testing.T) {
	assert.Nil(t, BuildContentUnits(nil))

	units := BuildContentUnits(&protocol.Content{})
	require.Len(t, units, 1)
	assert.Equal(t, ContentUnit{}, units[0])
}

func TestBuildContentUnitsMentionLimit(t *testing.T) {
	const mention = "<@123456789012345678>"
	desc := strings.Repeat(mention, 190)
	units := BuildContentUnits(&protocol.Content{Description: desc})

	require.NotEmpty(t, units)
	for _, u := range units {
		assert.LessOrEqual(t, utf8.RuneCountInString(u.Text), MaxContentLength)
	}
	// 只保留完整的标记。
	text := units[0].Text
	assert.Equal(t, strings.Repeat(mention+" ", len(text)/(len(mention)+1)), text)
	assert.Equal(t, desc, units[0].Embed.Description)
}

func TestExtractMentionsLimit(t *testing.T) {
	text := strings.Repeat("<@1>", MaxContentLength)
	got := ExtractMentions(text, text)
	assert.LessOrEqual(t, len(got), MaxContentLength)
	assert.Equal(t, strings.Repeat("<@1> ", MaxContentLength/5), got)
}

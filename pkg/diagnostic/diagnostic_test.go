package diagnostic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/msbuildls/pkg/diagnostic"
	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/position"
)

func rng(sl, sc, el, ec int) position.Range {
	return position.MustNewRange(position.NewPosition(sl, sc), position.NewPosition(el, ec))
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []diagnostic.Diagnostic
	}{
		{
			name: "valid project",
			text: "<Project>\n  <PropertyGroup Condition=\"'$(A)' == 'b'\" />\n</Project>",
			want: []diagnostic.Diagnostic{},
		},
		{
			name: "dangling operator",
			text: "<Project>\n  <A Condition=\"$(X) And\" />\n</Project>",
			want: []diagnostic.Diagnostic{
				{
					Message:  `invalid condition "$(X) And": expected '!', '(', quote, '$(', '@(', '%(', symbol`,
					Range:    rng(2, 17, 2, 25),
					Severity: diagnostic.Error,
					Source:   diagnostic.SourceExpression,
				},
			},
		},
		{
			name: "unclosed start tag",
			text: "<Project>\n  <PropertyGroup\n</Project>",
			want: []diagnostic.Diagnostic{
				{
					Message:  "start tag of <PropertyGroup> is not closed",
					Range:    rng(2, 4, 2, 17),
					Severity: diagnostic.Error,
					Source:   diagnostic.SourceXML,
				},
			},
		},
		{
			name: "missing root",
			text: "<!-- nothing here -->",
			want: []diagnostic.Diagnostic{
				{
					Message:  "document has no <Project> element",
					Range:    position.EmptyRange(position.Origin),
					Severity: diagnostic.Warning,
					Source:   diagnostic.SourceProject,
				},
			},
		},
		{
			name: "wrong root",
			text: "<Projekt></Projekt>",
			want: []diagnostic.Diagnostic{
				{
					Message:  "root element is <Projekt>, expected <Project>",
					Range:    rng(1, 2, 1, 9),
					Severity: diagnostic.Warning,
					Source:   diagnostic.SourceProject,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := document.Build("/p.csproj", 1, tt.text)
			require.NoError(t, err)

			got, err := diagnostic.Generate(context.Background(), snap)
			require.NoError(t, err)
			assert.Equal(t, "/p.csproj", got.URI)
			assert.Equal(t, tt.want, got.All())
		})
	}
}

func TestGenerateOrdersByRange(t *testing.T) {
	text := "<Project>\n  <A Condition=\"(\" />\n  <B\n</Project>"
	snap, err := document.Build("/p.csproj", 1, text)
	require.NoError(t, err)

	got, err := diagnostic.Generate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, got.Errors, 2)
	assert.Empty(t, got.Warnings)

	all := got.All()
	require.Len(t, all, 2)
	assert.Equal(t, diagnostic.SourceExpression, all[0].Source)
	assert.Equal(t, diagnostic.SourceXML, all[1].Source)
}

func TestGenerateNilSnapshot(t *testing.T) {
	_, err := diagnostic.Generate(context.Background(), nil)
	assert.Error(t, err)
}

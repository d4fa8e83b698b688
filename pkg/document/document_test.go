package document_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/expression"
	"github.com/walteh/msbuildls/pkg/position"
)

const project = `<Project>
  <PropertyGroup Condition="'$(Configuration)' == 'Debug'">
    <DefineConstants>DEBUG</DefineConstants>
  </PropertyGroup>
  <ItemGroup>
    <Compile Include="a.cs;b.cs" Exclude="c.cs" />
  </ItemGroup>
  <Target Name="X" Condition="And" />
</Project>
`

func TestBuildSnapshotExpressions(t *testing.T) {
	snap, err := document.Build("/p.csproj", 1, project)
	require.NoError(t, err)
	assert.Equal(t, int32(1), snap.Version)
	assert.NotEmpty(t, snap.ID.String())

	require.Len(t, snap.Expressions, 4)
	kinds := []document.ExpressionKind{}
	names := []string{}
	for _, e := range snap.Expressions {
		kinds = append(kinds, e.Kind)
		names = append(names, e.Attribute.Name())
	}
	assert.Equal(t, []document.ExpressionKind{
		document.ConditionExpression,
		document.ListExpression,
		document.ListExpression,
		document.ConditionExpression,
	}, kinds)
	assert.Equal(t, []string{"Condition", "Include", "Exclude", "Condition"}, names)

	broken := snap.Expressions[3]
	assert.False(t, broken.Result.Success())
	assert.Nil(t, broken.Root())
	assert.Equal(t, position.NewPosition(8, 31), broken.Result.Failure.Position)
	assert.Same(t, broken, snap.ExpressionFor(broken.Attribute))
}

func TestSnapshotExpressionAt(t *testing.T) {
	snap, err := document.Build("/p.csproj", 1, project)
	require.NoError(t, err)

	t.Run("property reference in condition", func(t *testing.T) {
		expr, node, ok := snap.ExpressionAt(position.NewPosition(2, 33))
		require.True(t, ok)
		assert.Equal(t, document.ConditionExpression, expr.Kind)
		assert.Equal(t, expression.KindSymbol, node.Kind())
		assert.Equal(t, "Configuration", node.String())
		assert.Equal(t, expression.KindEvaluate, node.Parent().Kind())
	})

	t.Run("list item", func(t *testing.T) {
		expr, node, ok := snap.ExpressionAt(position.NewZeroBasedPosition(5, 28))
		require.True(t, ok)
		assert.Equal(t, document.ListExpression, expr.Kind)
		item, isItem := node.(*expression.SimpleListItem)
		require.True(t, isItem, "got %s", node.Kind())
		assert.Equal(t, "b.cs", item.Value)
	})

	t.Run("outside attributes", func(t *testing.T) {
		_, _, ok := snap.ExpressionAt(position.NewPosition(3, 24))
		assert.False(t, ok)
	})

	t.Run("failed expression", func(t *testing.T) {
		_, _, ok := snap.ExpressionAt(position.NewPosition(8, 32))
		assert.False(t, ok)
	})
}

func TestDocumentUpdateKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	builder := func(uri string, version int32, text string) (*document.Snapshot, error) {
		switch text {
		case "boom":
			panic("builder exploded")
		case "fail":
			return nil, fmt.Errorf("cannot build")
		}
		return document.Build(uri, version, text)
	}
	m := document.NewManager(document.WithBuilder(builder), document.WithMaxSize(64))

	first, err := m.Open(ctx, "file:///p.csproj", 1, "<Project />")
	require.NoError(t, err)

	tests := []struct {
		name    string
		version int32
		text    string
		wantErr error
	}{
		{name: "stale version", version: 1, text: "<Project></Project>", wantErr: document.ErrStaleVersion},
		{name: "too large", version: 2, text: strings.Repeat("x", 65), wantErr: document.ErrDocumentTooLarge},
		{name: "builder panic", version: 3, text: "boom", wantErr: document.ErrBuildFailed},
		{name: "builder error", version: 4, text: "fail", wantErr: document.ErrBuildFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Update(ctx, "file:///p.csproj", tt.version, tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			snap, err := m.Snapshot(ctx, "/p.csproj")
			require.NoError(t, err)
			assert.Same(t, first, snap)
		})
	}

	next, err := m.Update(ctx, "/p.csproj", 5, "<Project><A/></Project>")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
	snap, err := m.Snapshot(ctx, "/p.csproj")
	require.NoError(t, err)
	assert.Same(t, next, snap)
}

func TestDocumentUpdateHonorsCancellation(t *testing.T) {
	m := document.NewManager()
	first, err := m.Open(context.Background(), "/p.csproj", 1, "<Project />")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Update(ctx, "/p.csproj", 2, "<Project></Project>")
	assert.ErrorIs(t, err, context.Canceled)

	doc, ok := m.Get("/p.csproj")
	require.True(t, ok)
	assert.Same(t, first, doc.Snapshot())
}

func TestReadersDoNotWaitForWriters(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	builder := func(uri string, version int32, text string) (*document.Snapshot, error) {
		if text == "slow" {
			once.Do(func() { close(started) })
			<-release
		}
		return document.Build(uri, version, text)
	}

	ctx := context.Background()
	m := document.NewManager(document.WithBuilder(builder))
	first, err := m.Open(ctx, "/p.csproj", 1, "<Project />")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Update(ctx, "/p.csproj", 2, "slow")
		done <- err
	}()
	<-started

	// The slow writer holds the guard: readers still see the old snapshot and a second
	// writer gives up when its context expires.
	snap, err := m.Snapshot(ctx, "/p.csproj")
	require.NoError(t, err)
	assert.Same(t, first, snap)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Update(waitCtx, "/p.csproj", 3, "<Project/>")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	snap, err = m.Snapshot(ctx, "/p.csproj")
	require.NoError(t, err)
	assert.Equal(t, int32(2), snap.Version)
	assert.Equal(t, "slow", snap.Text)
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	ctx := context.Background()
	m := document.NewManager()
	textFor := func(v int32) string {
		return fmt.Sprintf("<Project><V%d Condition=\"'$(V)' == '%d'\" /></Project>", v, v)
	}
	_, err := m.Open(ctx, "/p.csproj", 1, textFor(1))
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		for v := int32(2); v <= 200; v++ {
			if _, err := m.Update(ctx, "/p.csproj", v, textFor(v)); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 200; j++ {
				snap, err := m.Snapshot(ctx, "/p.csproj")
				if err != nil {
					return err
				}
				if snap.Text != textFor(snap.Version) {
					return fmt.Errorf("snapshot %d has text %q", snap.Version, snap.Text)
				}
				if len(snap.Expressions) != 1 || !snap.Expressions[0].Result.Success() {
					return fmt.Errorf("snapshot %d has incomplete expressions", snap.Version)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	snap, err := m.Snapshot(ctx, "/p.csproj")
	require.NoError(t, err)
	assert.Equal(t, int32(200), snap.Version)
}

func TestConcurrentWritersAreSerialised(t *testing.T) {
	ctx := context.Background()
	m := document.NewManager()
	_, err := m.Open(ctx, "/p.csproj", 0, "<Project />")
	require.NoError(t, err)

	var g errgroup.Group
	var mu sync.Mutex
	accepted := []int32{}
	for v := int32(1); v <= 32; v++ {
		g.Go(func() error {
			_, err := m.Update(ctx, "/p.csproj", v, fmt.Sprintf("<Project>%d</Project>", v))
			if err == nil {
				mu.Lock()
				accepted = append(accepted, v)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NotEmpty(t, accepted)
	newest := accepted[0]
	for _, v := range accepted {
		newest = max(newest, v)
	}
	snap, err := m.Snapshot(ctx, "/p.csproj")
	require.NoError(t, err)
	assert.Equal(t, newest, snap.Version)
	assert.Equal(t, fmt.Sprintf("<Project>%d</Project>", newest), snap.Text)
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := document.NewManager()

	_, err := m.Open(ctx, "file:///b.csproj", 1, "<Project />")
	require.NoError(t, err)
	_, err = m.Open(ctx, "file:///a%20dir/a.csproj", 1, "<Project />")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a dir/a.csproj", "/b.csproj"}, m.URIs())

	_, err = m.Update(ctx, "/missing.csproj", 2, "")
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)

	_, err = m.Snapshot(ctx, "/missing.csproj")
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)

	_, err = m.Open(ctx, "", 1, "")
	assert.ErrorIs(t, err, document.ErrInvalidURI)

	m.Close("file:///b.csproj")
	assert.Equal(t, []string{"/a dir/a.csproj"}, m.URIs())
	_, ok := m.Get("/b.csproj")
	assert.False(t, ok)
}

func TestManagerDiskFallback(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/app/app.csproj", []byte(`<Project Sdk="Microsoft.NET.Sdk" />`), 0o644))

	m := document.NewManager(document.WithFs(fs))
	snap, err := m.Snapshot(ctx, "file:///src/app/app.csproj")
	require.NoError(t, err)
	assert.Equal(t, "/src/app/app.csproj", snap.URI)
	assert.Equal(t, "file:///src/app/app.csproj", snap.DocumentURI)
	assert.Equal(t, "Project", snap.XML.ProjectElement().Name())

	_, ok := m.Get("/src/app/app.csproj")
	assert.True(t, ok, "disk documents are cached")

	_, err = m.Snapshot(ctx, "/src/other.csproj")
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)
}

func TestNormalizeURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr error
	}{
		{name: "file scheme", uri: "file:///home/me/a.csproj", want: "/home/me/a.csproj"},
		{name: "short file scheme", uri: "file:/private/a.csproj", want: "/private/a.csproj"},
		{name: "plain path", uri: "/a.csproj", want: "/a.csproj"},
		{name: "escaped", uri: "file:///My%20Projects/a.csproj", want: "/My Projects/a.csproj"},
		{name: "empty", uri: " ", wantErr: document.ErrInvalidURI},
		{name: "bad escape", uri: "file:///a%zz", wantErr: document.ErrInvalidURI},
		{name: "plain path keeps percent", uri: "./100%.csproj", want: "./100%.csproj"},
		{name: "plain path keeps escape sequence", uri: "/My%20Projects/a.csproj", want: "/My%20Projects/a.csproj"},
		{name: "escaped percent", uri: "file:///repo/100%25.csproj", want: "/repo/100%.csproj"},
		{name: "localhost host", uri: "file://localhost/repo/a.csproj", want: "/repo/a.csproj"},
		{name: "unc host", uri: "file://server/share/a.csproj", want: "//server/share/a.csproj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := document.NormalizeURI(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{name: "client uri kept as sent", uri: "file:///c%3A/src/a.csproj", want: "file:///c%3A/src/a.csproj"},
		{name: "absolute path", uri: "/repo/App.csproj", want: "file:///repo/App.csproj"},
		{name: "absolute path with space", uri: "/My Projects/a.csproj", want: "file:///My%20Projects/a.csproj"},
		{name: "absolute path with percent", uri: "/repo/100%.csproj", want: "file:///repo/100%25.csproj"},
		{name: "relative path", uri: "lib/a.csproj", want: "lib/a.csproj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, document.DocumentURI(tt.uri))
		})
	}
}

func TestSnapshotKeepsClientURI(t *testing.T) {
	ctx := context.Background()
	m := document.NewManager()

	snap, err := m.Open(ctx, "file:///My%20Projects/a.csproj", 1, "<Project />")
	require.NoError(t, err)
	assert.Equal(t, "/My Projects/a.csproj", snap.URI)
	assert.Equal(t, "file:///My%20Projects/a.csproj", snap.DocumentURI)

	snap, err = m.Update(ctx, "/My Projects/a.csproj", 2, "<Project></Project>")
	require.NoError(t, err)
	assert.Equal(t, "file:///My%20Projects/a.csproj", snap.DocumentURI, "updates keep the uri the document was opened with")

	doc, ok := m.Get("file:///My%20Projects/a.csproj")
	require.True(t, ok)
	assert.Equal(t, "file:///My%20Projects/a.csproj", doc.DocumentURI())
}

package reconcile

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	rb "github.com/roach88/lightmode/internal/renderbatch"
)

func TestApplyBatch_ElementWithText(t *testing.T) {
	r, _ := newAttached(t)

	b := &rb.Batch{}
	start := b.AppendFrames(rb.Element("div", 2), rb.Text("hi"))
	b.AddDiff(0, rb.PrependFrame(0, start))
	apply(t, r, b)

	assert.Equal(t, `<div id="app"><div>hi</div></div>`, renderString(t, r))
}

func TestApplyBatch_Golden(t *testing.T) {
	r, _ := newAttached(t)

	b := &rb.Batch{}
	list := b.AppendFrames(
		rb.Element("ul", 6),
		rb.Attribute("class", "todos"),
		rb.Element("li", 2),
		rb.Text("write codec"),
		rb.Element("li", 2),
		rb.Text("ship it"),
	)
	summary := b.AppendFrames(rb.Markup("<em>2 items</em>"))
	b.AddDiff(0, rb.PrependFrame(0, list), rb.PrependFrame(1, summary))
	apply(t, r, b)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "todo_list", []byte(renderString(t, r)+"\n"))
}

func TestApplyBatch_UpdatesInPlace(t *testing.T) {
	r, _ := newAttached(t)

	first := &rb.Batch{}
	p := first.AppendFrames(rb.Element("p", 3), rb.Attribute("class", "a"), rb.Text("one"))
	first.AddDiff(0, rb.PrependFrame(0, p))
	apply(t, r, first)

	second := &rb.Batch{}
	class := second.AppendFrames(rb.Attribute("class", "b"))
	two := second.AppendFrames(rb.Text("two"))
	second.AddDiff(0,
		rb.SetAttribute(0, class),
		rb.StepIn(0),
		rb.UpdateText(0, two),
		rb.StepOut(),
	)
	apply(t, r, second)
	assert.Equal(t, `<div id="app"><p class="b">two</p></div>`, renderString(t, r))

	third := &rb.Batch{}
	third.AddDiff(0, rb.RemoveAttribute(0, "class"))
	apply(t, r, third)
	assert.Equal(t, `<div id="app"><p>two</p></div>`, renderString(t, r))
}

func TestApplyBatch_PermutationSwap(t *testing.T) {
	r, _ := newAttached(t)

	first := &rb.Batch{}
	a := first.AppendFrames(rb.Text("A"))
	bb := first.AppendFrames(rb.Text("B"))
	c := first.AppendFrames(rb.Text("C"))
	first.AddDiff(0, rb.PrependFrame(0, a), rb.PrependFrame(1, bb), rb.PrependFrame(2, c))
	apply(t, r, first)

	second := &rb.Batch{}
	second.AddDiff(0,
		rb.PermutationEntry(0, 2),
		rb.PermutationEntry(2, 0),
		rb.PermutationEnd(),
	)
	apply(t, r, second)

	assert.Equal(t, `<div id="app">CBA</div>`, renderString(t, r))
}

func TestApplyBatch_ChildComponentLifecycle(t *testing.T) {
	r, _ := newAttached(t)

	first := &rb.Batch{}
	parent := first.AppendFrames(rb.Element("div", 3), rb.Text("parent"), rb.Component(2, 1))
	child := first.AppendFrames(rb.Text("child"))
	first.AddDiff(0, rb.PrependFrame(0, parent))
	first.AddDiff(2, rb.PrependFrame(0, child))
	apply(t, r, first)
	assert.Equal(t, `<div id="app"><div>parent<!--!-->child</div></div>`, renderString(t, r))

	second := &rb.Batch{}
	second.AddDiff(0, rb.StepIn(0), rb.RemoveFrame(1), rb.StepOut())
	second.DisposedComponentIDs = []int32{2}
	apply(t, r, second)
	assert.Equal(t, `<div id="app"><div>parent</div></div>`, renderString(t, r))

	third := &rb.Batch{}
	text := third.AppendFrames(rb.Text("late"))
	third.AddDiff(2, rb.PrependFrame(0, text))
	err := r.ApplyBatch(decode(t, third))
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestApplyBatch_RegionFlattens(t *testing.T) {
	r, _ := newAttached(t)

	b := &rb.Batch{}
	region := b.AppendFrames(rb.Region(3), rb.Text("a"), rb.Text("b"))
	c := b.AppendFrames(rb.Text("c"))
	b.AddDiff(0, rb.PrependFrame(0, region), rb.PrependFrame(2, c))
	apply(t, r, b)

	assert.Equal(t, `<div id="app">abc</div>`, renderString(t, r))
}

func TestApplyBatch_Markup(t *testing.T) {
	r, _ := newAttached(t)

	first := &rb.Batch{}
	m := first.AppendFrames(rb.Markup("<b>bold</b> text"))
	tail := first.AppendFrames(rb.Text("!"))
	first.AddDiff(0, rb.PrependFrame(0, m), rb.PrependFrame(1, tail))
	apply(t, r, first)
	assert.Equal(t, `<div id="app"><!--!--><b>bold</b> text!</div>`, renderString(t, r))

	second := &rb.Batch{}
	m2 := second.AppendFrames(rb.Markup("<i>new</i>"))
	second.AddDiff(0, rb.UpdateMarkup(0, m2))
	apply(t, r, second)
	assert.Equal(t, `<div id="app"><!--!--><i>new</i>!</div>`, renderString(t, r))
}

func TestApplyBatch_ElementReferenceCapture(t *testing.T) {
	r, _ := newAttached(t)

	b := &rb.Batch{}
	input := b.AppendFrames(rb.Element("input", 2), rb.ElementReferenceCapture("ref1"))
	b.AddDiff(0, rb.PrependFrame(0, input))
	apply(t, r, b)

	assert.Equal(t, `<div id="app"><input _bl_ref1=""/></div>`, renderString(t, r))
}

func TestApplyBatch_PaddingFramesProduceNothing(t *testing.T) {
	r, _ := newAttached(t)

	b := &rb.Batch{}
	div := b.AppendFrames(rb.Element("div", 4), rb.NamedEvent(), rb.ComponentRenderMode(), rb.Text("x"))
	b.AddDiff(0, rb.PrependFrame(0, div))
	apply(t, r, b)

	assert.Equal(t, `<div id="app"><div>x</div></div>`, renderString(t, r))
}

func TestApplyBatch_ScriptTextIsEncoded(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	script := b.AppendFrames(rb.Element("script", 2), rb.Text(`alert("</script>")`))
	b.AddDiff(0, rb.PrependFrame(0, script))
	apply(t, r, b)

	body := find(root, "script").FirstChild.Data
	assert.NotContains(t, body, "</script>")
	assert.Contains(t, body, `\u003C/script\u003E`)
}

func TestApplyBatch_SVGNamespace(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	svg := b.AppendFrames(rb.Element("svg", 3), rb.Element("circle", 2), rb.Attribute("r", "4"))
	b.AddDiff(0, rb.PrependFrame(0, svg))
	apply(t, r, b)

	assert.Equal(t, "svg", find(root, "svg").Namespace)
	assert.Equal(t, "svg", find(root, "circle").Namespace)
}

func TestAttachRoot_ClearsPrerenderedOnFirstBatchOnly(t *testing.T) {
	root := appDiv(prerendered())
	r := New()
	require.NoError(t, r.AttachRoot(root, 0, false))
	assert.Equal(t, `<div id="app"><p>pre</p></div>`, renderString(t, r))

	first := &rb.Batch{}
	x := first.AppendFrames(rb.Text("x"))
	first.AddDiff(0, rb.PrependFrame(0, x))
	apply(t, r, first)
	assert.Equal(t, `<div id="app">x</div>`, renderString(t, r))

	second := &rb.Batch{}
	y := second.AppendFrames(rb.Text("y"))
	second.AddDiff(0, rb.PrependFrame(0, y))
	apply(t, r, second)
	assert.Equal(t, `<div id="app">yx</div>`, renderString(t, r))
}

func TestAttachRoot_AppendModeKeepsContent(t *testing.T) {
	root := appDiv(prerendered())
	r := New()
	require.NoError(t, r.AttachRoot(root, 0, true))

	b := &rb.Batch{}
	x := b.AppendFrames(rb.Text("new"))
	b.AddDiff(0, rb.PrependFrame(0, x))
	apply(t, r, b)

	assert.Equal(t, `<div id="app"><p>pre</p><!--!-->new</div>`, renderString(t, r))
}

func TestAttachRoot_RejectsDuplicate(t *testing.T) {
	r, root := newAttached(t)
	assert.Error(t, r.AttachRoot(root, 0, false))
}

func TestDisposeComponent_EmptiesUnrenderedRoot(t *testing.T) {
	root := appDiv(prerendered())
	r := New()
	require.NoError(t, r.AttachRoot(root, 0, false))

	r.DisposeComponent(0)

	inner, err := InnerHTML(root)
	require.NoError(t, err)
	assert.Equal(t, "", inner)
}

func TestApplyBatch_RejectsEditsThatDoNotFit(t *testing.T) {
	r, _ := newAttached(t)

	first := &rb.Batch{}
	text := first.AppendFrames(rb.Text("t"))
	first.AddDiff(0, rb.PrependFrame(0, text))
	apply(t, r, first)

	tests := []struct {
		name  string
		edits func(b *rb.Batch) []rb.Edit
	}{
		{"set attribute on text", func(b *rb.Batch) []rb.Edit {
			return []rb.Edit{rb.SetAttribute(0, b.AppendFrames(rb.Attribute("a", "b")))}
		}},
		{"update text on missing child", func(b *rb.Batch) []rb.Edit {
			return []rb.Edit{rb.UpdateText(3, b.AppendFrames(rb.Text("x")))}
		}},
		{"remove missing child", func(*rb.Batch) []rb.Edit {
			return []rb.Edit{rb.RemoveFrame(5)}
		}},
		{"step into missing child", func(*rb.Batch) []rb.Edit {
			return []rb.Edit{rb.StepIn(4), rb.StepOut()}
		}},
		{"unknown internal attribute", func(b *rb.Batch) []rb.Edit {
			el := b.AppendFrames(rb.Element("div", 2), rb.Attribute("__internal_bogus", ""))
			return []rb.Edit{rb.PrependFrame(0, el)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &rb.Batch{}
			b.AddDiff(0, tt.edits(b)...)
			err := r.ApplyBatch(decode(t, b))
			assert.ErrorIs(t, err, ErrInvalidEdit)
		})
	}
}

func TestInnerHTML(t *testing.T) {
	root := appDiv(prerendered(), &html.Node{Type: html.TextNode, Data: "&"})
	s, err := InnerHTML(root)
	require.NoError(t, err)
	assert.Equal(t, "<p>pre</p>&amp;", s)
}

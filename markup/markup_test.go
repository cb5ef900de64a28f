package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text is escaped",
			in:   "a < b & c",
			want: "a &lt; b &amp; c",
		},
		{
			name: "bold sentinel",
			in:   "this is **important**",
			want: "this is <strong>important</strong>",
		},
		{
			name: "link shows host only",
			in:   "see https://www.example.com/path?a=1&b=2 now",
			want: `see <a href="https://www.example.com/path?a=1&amp;b=2" target="_blank" rel="noopener noreferrer">example.com</a> now`,
		},
		{
			name: "www link gets a scheme",
			in:   "www.example.org/x",
			want: `<a href="http://www.example.org/x" target="_blank" rel="noopener noreferrer">example.org</a>`,
		},
		{
			name: "image link becomes image",
			in:   "https://cdn.example.com/pic.PNG",
			want: `<img src="https://cdn.example.com/pic.PNG" alt="">`,
		},
		{
			name: "newlines become breaks",
			in:   "one\ntwo",
			want: "one<br>two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in))
		})
	}
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "a bold word", Plain("a **bold** word"))
	assert.Equal(t, "no markup", Plain("no markup"))
}

func TestHost(t *testing.T) {
	assert.Equal(t, "github.com", Host("https://github.com/pevans/folio"))
	assert.Equal(t, "not a url", Host("not a url"))
}

func TestIsImageURL(t *testing.T) {
	assert.True(t, IsImageURL("https://example.com/a/b.jpeg"))
	assert.False(t, IsImageURL("https://example.com/a/b.html"))
	assert.False(t, IsImageURL("https://example.com/"))
}

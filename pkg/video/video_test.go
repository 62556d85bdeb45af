package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOk bool
	}{
		{name: "watch", in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "watch extra params", in: "https://youtube.com/watch?list=x&v=dQw4w9WgXcQ&t=42s", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "short link", in: "https://youtu.be/dQw4w9WgXcQ?t=10", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "embed", in: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "shorts", in: "https://youtube.com/shorts/dQw4w9WgXcQ/", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "mobile no scheme", in: "m.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "bare id", in: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOk: true},
		{name: "empty", in: ""},
		{name: "other host", in: "https://vimeo.com/123456"},
		{name: "watch without id", in: "https://www.youtube.com/watch"},
		{name: "id too short", in: "https://youtu.be/abc"},
		{name: "garbage", in: "::::not a url"},
		{name: "control chars", in: "https://youtu.be/\x7f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractID(tt.in)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected string
	}{
		{KindWatchSetup, "watch setup"},
		{KindTransientRead, "transient read"},
		{KindRender, "render"},
		{KindChannel, "channel"},
		{KindConfig, "config"},
		{KindUnknown, "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.kind.String())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := WithPath(KindTransientRead, "read document", "/tmp/doc.md", fs.ErrNotExist)
	assert.Equal(t, "read document: transient read error (/tmp/doc.md): file does not exist", err.Error())

	err = Newf(KindConfig, "", "port %d out of range", 70000)
	assert.Equal(t, "config error: port 70000 out of range", err.Error())
}

func TestKindOfWrapped(t *testing.T) {
	base := New(KindChannel, "write update", fmt.Errorf("broken pipe"))
	wrapped := fmt.Errorf("client abc: %w", base)

	assert.Equal(t, KindChannel, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindChannel))
	assert.False(t, Is(wrapped, KindRender))
	assert.False(t, Is(nil, KindChannel))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
}

func TestUnwrap(t *testing.T) {
	err := WithPath(KindTransientRead, "read document", "doc.md", fs.ErrNotExist)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(New(KindWatchSetup, "watch", fs.ErrPermission)))
	assert.True(t, Fatal(New(KindConfig, "validate", nil)))
	assert.False(t, Fatal(New(KindRender, "render", nil)))
	assert.False(t, Fatal(New(KindTransientRead, "read", nil)))
	assert.False(t, Fatal(New(KindChannel, "write", nil)))
	assert.False(t, Fatal(fmt.Errorf("plain")))
}

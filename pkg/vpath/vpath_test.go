package vpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"///", "/"},
		{"/home", "/home"},
		{"/home/", "/home"},
		{"home/user", "/home/user"},
		{"//home//user///docs", "/home/user/docs"},
		{"/home/./user", "/home/user"},
		{"/home/user/..", "/home"},
		{"/../../etc", "/etc"},
		{"/a/b/../../c", "/c"},
		{"/a/..b", "/a/..b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"", "/", "a/b/c", "//x//y/", "/a/./b/../c", "../..", "/..a/b.", "~/notes"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestResolve(t *testing.T) {
	const home = "/home/user"
	tests := []struct {
		name   string
		cwd    string
		target string
		want   string
	}{
		{"home shorthand", "/tmp", "~", "/home/user"},
		{"home prefix", "/tmp", "~/docs/a.txt", "/home/user/docs/a.txt"},
		{"absolute ignores cwd", "/tmp", "/etc/hosts", "/etc/hosts"},
		{"relative", "/home/user", "docs", "/home/user/docs"},
		{"relative parent", "/home/user/docs", "../music", "/home/user/music"},
		{"dot", "/var", ".", "/var"},
		{"empty is cwd", "/var/log", "", "/var/log"},
		{"tilde not prefix", "/tmp", "~other", "/tmp/~other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.cwd, tt.target, home))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"/",
		"/home",
		"/home/",
		"/home/user/notes.txt",
		"/a/..b/c",
		"/with space/file name.md",
	}
	for _, p := range valid {
		assert.NoError(t, Validate(p), "expected %q to be valid", p)
	}

	invalid := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"relative", "home/user"},
		{"doubled separator", "/home//user"},
		{"parent traversal", "/home/../etc"},
		{"trailing traversal", "/home/.."},
		{"dot segment", "/home/./user"},
		{"forbidden char", "/home/a|b"},
		{"backslash", `/home\user`},
		{"control char", "/home/a\x01"},
		{"trailing dot", "/home/file."},
		{"trailing space", "/home/file "},
		{"reserved name", "/home/con"},
		{"reserved name with extension", "/home/Lpt1.txt"},
		{"too long", "/" + strings.Repeat("a", MaxPathLength)},
		{"too deep", strings.Repeat("/d", MaxDepth+1)},
		{"segment too long", "/" + strings.Repeat("x", MaxFilenameLength+1)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsPathInvalid(err), "got %v", err)
		})
	}
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("report.final.pdf"))
	assert.NoError(t, ValidateFilename(".bashrc"))
	assert.NoError(t, ValidateFilename("console"))
	assert.Error(t, ValidateFilename(""))
	assert.Error(t, ValidateFilename("."))
	assert.Error(t, ValidateFilename(".."))
	assert.Error(t, ValidateFilename("NUL"))
	assert.Error(t, ValidateFilename("a*b"))
}

func TestClean(t *testing.T) {
	p, err := Clean("/home/user/")
	require.NoError(t, err)
	assert.Equal(t, "/home/user", p)

	_, err = Clean("/home/../etc")
	assert.True(t, errors.IsPathInvalid(err))
}

func TestTreeHelpers(t *testing.T) {
	assert.Equal(t, "", Dir("/"))
	assert.Equal(t, "/", Dir("/home"))
	assert.Equal(t, "/home", Dir("/home/user"))

	assert.Equal(t, "/", Base("/"))
	assert.Equal(t, "user", Base("/home/user"))

	assert.Equal(t, "/home", Join("/", "home"))
	assert.Equal(t, "/home/user", Join("/home", "user"))

	assert.Nil(t, Split("/"))
	assert.Equal(t, []string{"a", "b"}, Split("/a/b"))
	assert.Equal(t, 3, Depth("/a/b/c"))

	assert.Nil(t, Ancestors("/"))
	assert.Equal(t, []string{"/"}, Ancestors("/a"))
	assert.Equal(t, []string{"/", "/a", "/a/b"}, Ancestors("/a/b/c"))

	assert.True(t, IsAncestor("/", "/a"))
	assert.True(t, IsAncestor("/a", "/a/b/c"))
	assert.False(t, IsAncestor("/a", "/a"))
	assert.False(t, IsAncestor("/a", "/ab"))

	assert.Equal(t, "/b", Rebase("/a", "/a", "/b"))
	assert.Equal(t, "/x/y/c/d", Rebase("/a/c/d", "/a", "/x/y"))
}

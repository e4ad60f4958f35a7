package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/normalize"
	"github.com/agentstation/propsync/pkg/rules"
)

func TestCompile(t *testing.T) {
	n := normalize.New(normalize.Default)

	t.Run("literals and expressions are split", func(t *testing.T) {
		rs := rules.Compile([]string{"test", "autre", "/regex.*/i"}, n)
		assert.Equal(t, []string{"autre", "test"}, rs.Keys())
		assert.Equal(t, []string{"/regex.*/i"}, rs.Patterns())
		assert.False(t, rs.Empty())
	})

	t.Run("empty list", func(t *testing.T) {
		rs := rules.Compile(nil, n)
		assert.True(t, rs.Empty())
		assert.Empty(t, rs.Keys())
		assert.Empty(t, rs.Patterns())
	})

	t.Run("literal keys are normalized", func(t *testing.T) {
		rs := rules.Compile([]string{"éTé"}, n)
		assert.Equal(t, []string{"ete"}, rs.Keys())
	})

	t.Run("invalid expression fails open", func(t *testing.T) {
		captured := logging.NewTestLogger(t)
		rs := rules.Compile([]string{"/(unclosed/", "kept"}, n, rules.WithGroup("ignore"), rules.WithLogger(captured.Logger))

		assert.Equal(t, []string{"kept"}, rs.Keys())
		assert.Empty(t, rs.Patterns())
		assert.False(t, rs.Matches("(unclosed"))
		assert.False(t, rs.Matches("/(unclosed/"))
		captured.AssertContains(t, "Ignoring invalid pattern")
		captured.AssertContains(t, `"group":"ignore"`)
	})
}

func TestMatches(t *testing.T) {
	rs := rules.Compile([]string{"test", "éTé", "/^prefix.*/i"}, normalize.New(normalize.Default))

	tests := []struct {
		candidate string
		want      bool
	}{
		{"TEST", true},
		{"test", true},
		{"ete", true},
		{"été", true},
		{"prefixSomething", true},
		{"PREFIX123", true},
		{"notprefix", false},
		{"valid", false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.Matches(tt.candidate))
		})
	}

	t.Run("empty set never matches", func(t *testing.T) {
		assert.False(t, rules.Compile(nil, nil).Matches("anything"))
		var nilSet *rules.RuleSet
		assert.False(t, nilSet.Matches("anything"))
	})
}

func TestMatchesProfiles(t *testing.T) {
	t.Run("case folding", func(t *testing.T) {
		rs := rules.Compile([]string{"Test"}, normalize.New(normalize.Profile{LowerCase: true}))
		assert.True(t, rs.Matches("TEST"))
	})

	t.Run("accent folding", func(t *testing.T) {
		rs := rules.Compile([]string{"été"}, normalize.New(normalize.Profile{IgnoreAccents: true}))
		assert.True(t, rs.Matches("ete"))
		assert.False(t, rs.Matches("ETE"))
	})

	t.Run("exact profile", func(t *testing.T) {
		rs := rules.Compile([]string{"Test"}, normalize.New(normalize.Profile{}))
		assert.True(t, rs.Matches("Test"))
		assert.False(t, rs.Matches("test"))
	})
}

func TestMatchesIsRepeatable(t *testing.T) {
	rs := rules.Compile([]string{"/a/g"}, normalize.New(normalize.Default))
	for i := 0; i < 3; i++ {
		assert.True(t, rs.Matches("banana"))
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		input string
		body  string
		flags string
		ok    bool
	}{
		{"/abc/", "abc", "", true},
		{"/abc/gi", "abc", "gi", true},
		{"/abc/iigi", "abc", "ig", true},
		{"/a/b/m", "a/b", "m", true},
		{"/abc/x", "", "", false},
		{"//", "", "", false},
		{"abc", "", "", false},
		{"path/to/file", "", "", false},
		{"/test\\d+test/g", "test\\d+test", "g", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			body, flags, ok := rules.ParsePattern(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.flags, flags)
		})
	}
}

func TestCompileRegex(t *testing.T) {
	t.Run("literal returns nil", func(t *testing.T) {
		re, err := rules.CompileRegex("plain")
		assert.NoError(t, err)
		assert.Nil(t, re)
	})

	t.Run("flags", func(t *testing.T) {
		re, err := rules.CompileRegex("/^a.b$/is")
		require.NoError(t, err)
		assert.True(t, re.MatchString("A\nB"))

		multi, err := rules.CompileRegex("/^b$/m")
		require.NoError(t, err)
		assert.True(t, multi.MatchString("a\nb"))
	})

	t.Run("sticky anchors at start", func(t *testing.T) {
		re, err := rules.CompileRegex("/foo/y")
		require.NoError(t, err)
		assert.True(t, re.MatchString("foobar"))
		assert.False(t, re.MatchString("barfoo"))
	})

	t.Run("invalid body", func(t *testing.T) {
		re, err := rules.CompileRegex("/(?<=x)y/")
		assert.Nil(t, re)
		require.Error(t, err)
		assert.True(t, errors.IsPatternError(err))
	})

	t.Run("cached", func(t *testing.T) {
		a, _ := rules.CompileRegex("/cache-me/i")
		b, _ := rules.CompileRegex("/cache-me/i")
		assert.Same(t, a, b)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, rules.Validate("ignore", []string{"a", "/b/i"}))
	assert.NoError(t, rules.Validate("ignore", nil))

	err := rules.Validate("cleanup", []string{"ok", "/[/", "/(/"})
	require.Error(t, err)
	assert.True(t, errors.IsPatternError(err))
	assert.Contains(t, err.Error(), "cleanup")
	assert.Contains(t, err.Error(), "/[/")
	assert.Contains(t, err.Error(), "/(/")
}

func TestKeysMatch(t *testing.T) {
	n := normalize.New(normalize.Default)

	tests := []struct {
		name   string
		header string
		inline string
		want   bool
	}{
		{"identical", "status", "status", true},
		{"case", "KEY", "key", true},
		{"accents", "ete", "été", true},
		{"different", "status", "state", false},
		{"header expression", "/^tag/", "tags", true},
		{"header expression miss", "/^tag$/", "tags", false},
		{"invalid header expression", "/(/", "(", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.KeysMatch(tt.header, tt.inline, n))
		})
	}
}

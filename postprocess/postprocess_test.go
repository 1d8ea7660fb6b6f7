package postprocess

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_RegistrationOrderPreserved(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{FuncName: "trim", Fn: func(_ context.Context, s string) (string, error) {
		return strings.TrimSpace(s), nil
	}})
	r.Register(Func{FuncName: "suffix", Fn: func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	}})
	r.Register(Func{FuncName: "upper", Fn: func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	}})

	out, err := r.Apply(context.Background(), "  done ")
	require.NoError(t, err)
	// trim -> suffix -> upper; any other order yields a different string.
	assert.Equal(t, "DONE!", out)
	assert.Equal(t, 3, r.Len())
}

func TestApply_ErrorAbortsChain(t *testing.T) {
	r := NewRegistry()
	var secondRan bool
	r.Register(Func{FuncName: "fails", Fn: func(context.Context, string) (string, error) {
		return "", errors.New("broken")
	}})
	r.Register(Func{FuncName: "never", Fn: func(_ context.Context, s string) (string, error) {
		secondRan = true
		return s, nil
	}})

	_, err := r.Apply(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fails")
	assert.False(t, secondRan)
}

func TestApply_EmptyRegistryIsIdentity(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply(context.Background(), "unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}

package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"echoes its input",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		func(tc *tool.Context, args map[string]any) (*tool.Output, error) {
			text, _ := args["text"].(string)
			return &tool.Output{Content: text}, nil
		},
	)
}

func TestRunTurn(t *testing.T) {
	llm := model.NewMockModel("m")
	llm.EnqueueResponse(model.Response{Text: "hello"})

	r, err := New(llm, []tool.Tool{echoTool()}, config.New())
	require.NoError(t, err)

	outcome, err := r.RunTurn(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, "hello", outcome.Text)
}

func TestRunTurnRejectsConcurrentSession(t *testing.T) {
	llm := model.NewMockModel("m")
	started := make(chan struct{})
	release := make(chan struct{})
	llm.RespondFunc = func(call int, req model.Request) (model.Response, error) {
		close(started)
		<-release
		return model.Response{Text: "slow"}, nil
	}

	r, err := New(llm, nil, config.New())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = r.RunTurn(context.Background(), "s1", "first")
	}()
	<-started

	_, err = r.RunTurn(context.Background(), "s1", "second")
	require.ErrorIs(t, err, ErrTurnInFlight)

	close(release)
	wg.Wait()
}

func TestRunTurnAllowsDistinctSessions(t *testing.T) {
	llm := model.NewMockModel("m")
	llm.RespondFunc = func(call int, req model.Request) (model.Response, error) {
		return model.Response{Text: "ok"}, nil
	}

	r, err := New(llm, nil, config.New())
	require.NoError(t, err)

	_, err = r.RunTurn(context.Background(), "s1", "a")
	require.NoError(t, err)
	_, err = r.RunTurn(context.Background(), "s2", "b")
	require.NoError(t, err)
}

func TestRunTurnUnknownForcedTool(t *testing.T) {
	cfg := config.New()
	cfg.ForcedTools = []string{"missing"}

	r, err := New(model.NewMockModel("m"), []tool.Tool{echoTool()}, cfg)
	require.NoError(t, err)

	_, err = r.RunTurn(context.Background(), "s1", "hi")
	require.ErrorIs(t, err, flow.ErrToolNotFound)
}

func TestCancel(t *testing.T) {
	llm := model.NewMockModel("m")
	started := make(chan struct{})
	llm.RespondFunc = func(call int, req model.Request) (model.Response, error) {
		close(started)
		time.Sleep(5 * time.Second)
		return model.Response{Text: "never"}, nil
	}

	r, err := New(llm, nil, config.New())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunTurn(context.Background(), "s1", "hi")
		done <- err
	}()
	<-started

	assert.True(t, r.Cancel("s1"))
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled turn did not terminate")
	}

	assert.False(t, r.Cancel("s1"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.New()
	cfg.MaxLoopIterations = 0

	_, err := New(model.NewMockModel("m"), nil, cfg)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTurnInFlight))
}

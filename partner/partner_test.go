package partner

import (
	"context"
	"strings"
	"testing"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingModel captures the request it was given and returns a fixed text.
type recordingModel struct {
	lastReq model.Request
	text    string
}

func (r *recordingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	r.lastReq = req
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	respCh <- model.Response{Text: r.text, FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (r *recordingModel) Info() model.Info { return model.Info{Name: "recording", Provider: "test"} }

func TestPartner_InvokeBuildsConversation(t *testing.T) {
	rec := &recordingModel{text: "PARTNER: onwards"}
	p, err := New(rec, core.PhaseWarmup, false)
	require.NoError(t, err)

	history := []core.Turn{
		{Index: 0, UserInput: "we found a door", Reply: core.Reply{Partner: "Open it!", Room: "creaking"}},
	}
	raw, err := p.Invoke(context.Background(), "abandoned lighthouse", history, "I push it open")
	require.NoError(t, err)
	assert.Equal(t, "PARTNER: onwards", raw)

	require.Len(t, rec.lastReq.Messages, 3)
	assert.Equal(t, "user", rec.lastReq.Messages[0].Role)
	assert.Equal(t, "we found a door", rec.lastReq.Messages[0].Text)
	assert.Equal(t, "assistant", rec.lastReq.Messages[1].Role)
	assert.Contains(t, rec.lastReq.Messages[1].Text, "PARTNER: Open it!")
	assert.Contains(t, rec.lastReq.Messages[1].Text, "ROOM: creaking")
	assert.Equal(t, "I push it open", rec.lastReq.Messages[2].Text)
	assert.Contains(t, rec.lastReq.Instructions, "abandoned lighthouse")
}

func TestPartner_InstructionsPerPhase(t *testing.T) {
	rec := &recordingModel{text: "x"}

	warm, err := New(rec, core.PhaseWarmup, false)
	require.NoError(t, err)
	_, err = warm.Invoke(context.Background(), "", nil, "hello")
	require.NoError(t, err)
	assert.Contains(t, rec.lastReq.Instructions, "yes, and")

	chal, err := New(rec, core.PhaseChallenge, false)
	require.NoError(t, err)
	_, err = chal.Invoke(context.Background(), "", nil, "hello")
	require.NoError(t, err)
	assert.Contains(t, rec.lastReq.Instructions, "complications")
	assert.NotContains(t, rec.lastReq.Instructions, "COACH:")
}

func TestPartner_CoachingAddendum(t *testing.T) {
	rec := &recordingModel{text: "x"}
	p, err := New(rec, core.PhaseChallenge, true)
	require.NoError(t, err)
	_, err = p.Invoke(context.Background(), "", nil, "final line")
	require.NoError(t, err)
	assert.Contains(t, rec.lastReq.Instructions, "COACH:")
}

func TestPartner_HistoryBounded(t *testing.T) {
	rec := &recordingModel{text: "x"}
	p, err := New(rec, core.PhaseChallenge, false, func(o *Options) { o.MaxHistoryTurns = 2 })
	require.NoError(t, err)

	var history []core.Turn
	for i := 0; i < 5; i++ {
		history = append(history, core.Turn{Index: i, UserInput: "offer", Reply: core.Reply{Partner: "line"}})
	}
	_, err = p.Invoke(context.Background(), "", history, "latest")
	require.NoError(t, err)
	// 2 retained turns * 2 messages + the new user input.
	assert.Len(t, rec.lastReq.Messages, 5)
}

func TestPartner_InvokeHonorsContext(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.SetDelay(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	p, err := New(m, core.PhaseWarmup, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Invoke(ctx, "", nil, "hello")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), context.Canceled.Error()))
}

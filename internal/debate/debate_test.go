package debate_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/debate"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// recordingJudge запоминает промпты каждой реплики.
type recordingJudge struct {
	prompts []string
	errs    map[int]error
}

func (j *recordingJudge) Judge(_ context.Context, _, user string) (string, error) {
	i := len(j.prompts)
	j.prompts = append(j.prompts, user)
	if err := j.errs[i]; err != nil {
		return "", err
	}
	return fmt.Sprintf("argument #%d", i+1), nil
}

func debateState() *domain.WorkflowState {
	return &domain.WorkflowState{
		Transaction: domain.Transaction{
			ID: "tx-1", CustomerID: "C-1", Amount: 900, Currency: "PEN",
			Country: "PE", Channel: "web",
			Timestamp: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		Anomalies: &domain.AnomalySet{
			Amount: domain.AnomalySignal{IsAnomaly: true, Score: 0.95, Reason: "unusual amount"},
		},
		Behavioral: &domain.BehavioralAnalysis{DeviationScore: 0.4, Notes: "mild deviation"},
	}
}

func TestDebate_TranscriptOrderAndLength(t *testing.T) {
	j := &recordingJudge{}
	stage := debate.NewStage(j, time.Second, zap.NewNop())

	upd, err := stage.Run(context.Background(), debateState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(upd.Debate) != debate.Rounds*2 {
		t.Fatalf("transcript length = %d, want %d", len(upd.Debate), debate.Rounds*2)
	}

	want := []struct {
		round  int
		stance string
	}{
		{1, domain.StanceProApproval},
		{1, domain.StanceProFraud},
		{2, domain.StanceProApproval},
		{2, domain.StanceProFraud},
	}
	for i, turn := range upd.Debate {
		if turn.Round != want[i].round || turn.Stance != want[i].stance {
			t.Errorf("turn %d = round %d/%s, want round %d/%s",
				i, turn.Round, turn.Stance, want[i].round, want[i].stance)
		}
		if turn.Argument == "" {
			t.Errorf("turn %d has empty argument", i)
		}
	}
	if upd.StageStatus != domain.StageCompleted {
		t.Errorf("status = %s", upd.StageStatus)
	}
}

// Обвинитель того же раунда обязан видеть аргумент защитника.
func TestDebate_ProFraudSeesSameRoundApprovalArgument(t *testing.T) {
	j := &recordingJudge{}
	stage := debate.NewStage(j, time.Second, zap.NewNop())

	upd, err := stage.Run(context.Background(), debateState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// prompts[1] — pro-fraud раунда 1, должен содержать upd.Debate[0].Argument
	// prompts[3] — pro-fraud раунда 2, должен содержать upd.Debate[2].Argument
	for _, pair := range []struct{ fraudPrompt, approvalTurn int }{{1, 0}, {3, 2}} {
		arg := upd.Debate[pair.approvalTurn].Argument
		if !strings.Contains(j.prompts[pair.fraudPrompt], arg) {
			t.Errorf("pro-fraud prompt %d does not quote pro-approval argument %q", pair.fraudPrompt, arg)
		}
	}
}

func TestDebate_SecondRoundSeesFirstRoundTranscript(t *testing.T) {
	j := &recordingJudge{}
	stage := debate.NewStage(j, time.Second, zap.NewNop())

	upd, err := stage.Run(context.Background(), debateState())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	secondApproval := j.prompts[2]
	for _, prior := range []string{upd.Debate[0].Argument, upd.Debate[1].Argument} {
		if !strings.Contains(secondApproval, prior) {
			t.Errorf("round 2 pro-approval prompt lacks prior argument %q", prior)
		}
	}
}

// Сбой одной реплики не прерывает протокол и не ломает порядок.
func TestDebate_TurnFailureDegradesNotFails(t *testing.T) {
	j := &recordingJudge{errs: map[int]error{1: errors.New("timeout")}}
	stage := debate.NewStage(j, time.Second, zap.NewNop())

	upd, err := stage.Run(context.Background(), debateState())
	if err != nil {
		t.Fatalf("debate must not fail the pipeline: %v", err)
	}
	if len(upd.Debate) != 4 {
		t.Fatalf("transcript length = %d, want 4", len(upd.Debate))
	}
	if !strings.Contains(upd.Debate[1].Argument, "argument unavailable") {
		t.Errorf("failed turn should carry a placeholder, got %q", upd.Debate[1].Argument)
	}
	if upd.StageStatus != domain.StageDegraded {
		t.Errorf("status = %s, want degraded", upd.StageStatus)
	}
}

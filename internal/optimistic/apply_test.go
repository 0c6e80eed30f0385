package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type board struct {
	Flags []bool
	Score int
}

func cloneBoard(b board) board {
	return board{Flags: append([]bool(nil), b.Flags...), Score: b.Score}
}

// TestApply_CommitSuccess は永続化成功時に仮適用後の状態が返ることを検証する。
func TestApply_CommitSuccess(t *testing.T) {
	current := board{Flags: []bool{false, false}, Score: 0}
	var committed board

	got, err := Apply(context.Background(), current, Transaction[board]{
		Clone: cloneBoard,
		Mutate: func(b board) board {
			b.Flags[0] = true
			b.Score++
			return b
		},
		Commit: func(_ context.Context, next board) error {
			committed = next
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := board{Flags: []bool{true, false}, Score: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, committed); diff != "" {
		t.Errorf("committed mismatch (-want +got):\n%s", diff)
	}
	// 呼び出し元の値は変更されない
	if current.Flags[0] {
		t.Error("current state must not be mutated")
	}
}

// TestApply_CommitFailure_ReturnsSnapshot は永続化失敗時に更新前のスナップショットが返ることを検証する。
func TestApply_CommitFailure_ReturnsSnapshot(t *testing.T) {
	current := board{Flags: []bool{true, false}, Score: 4}
	commitErr := errors.New("write rejected")

	got, err := Apply(context.Background(), current, Transaction[board]{
		Clone: cloneBoard,
		Mutate: func(b board) board {
			b.Flags[1] = true
			b.Score = 99
			return b
		},
		Commit: func(context.Context, board) error { return commitErr },
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("err = %v, want %v", err, commitErr)
	}
	if diff := cmp.Diff(current, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

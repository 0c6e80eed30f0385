// Package optimistic は楽観的更新（スナップショット取得→仮適用→永続化→失敗時復元）を提供する。
package optimistic

import "context"

// Transaction は型Tの状態に対する楽観的更新を表す。
// Clone はスナップショット取得に使い、Mutate の変更がスナップショットへ波及しないよう
// スライスやポインタを深くコピーしなければならない。
type Transaction[T any] struct {
	Clone  func(T) T
	Mutate func(T) T
	Commit func(ctx context.Context, next T) error
}

// Apply はcurrentのスナップショットを取得してからMutateで仮の状態を作り、Commitで永続化する。
// 成功時は仮の状態を、失敗時は取得済みのスナップショットとCommitのエラーを返す。
func Apply[T any](ctx context.Context, current T, tx Transaction[T]) (T, error) {
	snapshot := tx.Clone(current)
	next := tx.Mutate(tx.Clone(current))

	if err := tx.Commit(ctx, next); err != nil {
		return snapshot, err
	}
	return next, nil
}

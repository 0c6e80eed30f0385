package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// statusClass はHTTPステータスコードの分類。
type statusClass int

const (
	statusOK statusClass = iota
	// statusRetry は時間をおいて再試行できるステータス（429/5xx）。
	statusRetry
	// statusFail は再試行しても結果が変わらないステータス。
	statusFail
)

const (
	// defaultMaxAttempts はアップロードの最大試行回数。
	defaultMaxAttempts = 3
	// defaultRetryBase は指数バックオフの初回遅延。
	defaultRetryBase = 200 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 2 * time.Second
)

// StatusError はストレージAPIが成功以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// classifyStatus はHTTPステータスコードを分類する。
func classifyStatus(code int) statusClass {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return statusOK
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return statusRetry
	default:
		return statusFail
	}
}

// retryable はエラーが再試行の対象かどうかを返す。
// ネットワークエラーと429/5xxを再試行し、コンテキストのキャンセルは再試行しない。
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode) == statusRetry
	}
	return true
}

// backoffDelay は試行回数（0始まり）に対する待ち時間を返す。baseから2倍ずつ増え、maxRetryDelayで頭打ち。
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for range attempt {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// withRetry はfnを最大maxAttempts回（最低1回）実行する。
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	maxAttempts = max(maxAttempts, 1)
	var err error
	for attempt := range maxAttempts {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		timer := time.NewTimer(backoffDelay(base, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

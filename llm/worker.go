package llm

import (
	"context"
	"fmt"
)

// request pairs a prompt with the channel its answer goes back on.
type request struct {
	prompt string
	reply  chan result
}

type result struct {
	text string
	err  error
}

// Worker serializes prompt requests onto one background goroutine so callers
// from any goroutine can ask without sharing the client.
type Worker struct {
	requests chan request
}

const workerSystemPrompt = "You are kingfisher, a chat bot assistant. Answer the operator's question briefly."

// StartWorker launches the worker goroutine. It drains until ctx is
// cancelled.
func StartWorker(ctx context.Context, client *Client, queueSize int) *Worker {
	w := &Worker{requests: make(chan request, queueSize)}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-w.requests:
				text, err := client.Chat(ctx, workerSystemPrompt, req.prompt)
				req.reply <- result{text: text, err: err}
			}
		}
	}()

	return w
}

// Ask submits a prompt and waits for the answer or context cancellation.
func (w *Worker) Ask(ctx context.Context, prompt string) (string, error) {
	req := request{prompt: prompt, reply: make(chan result, 1)}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return "", fmt.Errorf("llm queue full: %w", ctx.Err())
	}

	select {
	case res := <-req.reply:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

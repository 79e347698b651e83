package service

import (
	"context"
	"errors"
	"testing"

	"github.com/legalsandbox/research-backend/internal/llm"
)

type scriptedLLM struct {
	reply    string
	err      error
	requests [][]llm.Message
}

func (c *scriptedLLM) Chat(_ context.Context, messages []llm.Message) (string, error) {
	c.requests = append(c.requests, messages)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func TestChatServiceSendStartsConversation(t *testing.T) {
	client := &scriptedLLM{reply: "Adverse possession is..."}
	svc := NewChatService(newRepoForTest(t), client)

	reply, err := svc.Send(context.Background(), "sess-1", "", "What is adverse possession?", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.ConversationID == "" {
		t.Fatal("expected a new conversation id")
	}
	if reply.Response != "Adverse possession is..." {
		t.Fatalf("unexpected response %q", reply.Response)
	}
	if len(client.requests) != 1 || len(client.requests[0]) != 1 {
		t.Fatalf("expected single-message prompt, got %+v", client.requests)
	}
}

func TestChatServiceSendThreadsHistory(t *testing.T) {
	client := &scriptedLLM{reply: "first answer"}
	svc := NewChatService(newRepoForTest(t), client)
	ctx := context.Background()

	first, err := svc.Send(ctx, "sess-1", "", "first question", nil)
	if err != nil {
		t.Fatalf("first send: %v", err)
	}

	client.reply = "second answer"
	second, err := svc.Send(ctx, "sess-1", first.ConversationID, "second question", nil)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("expected same conversation, got %q and %q", first.ConversationID, second.ConversationID)
	}

	// The second prompt must include the full prior exchange.
	prompt := client.requests[1]
	if len(prompt) != 3 {
		t.Fatalf("expected 3 messages in second prompt, got %d", len(prompt))
	}
	if prompt[0].Content != "first question" || prompt[1].Content != "first answer" || prompt[2].Content != "second question" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
}

func TestChatServiceForeignConversationIDStartsFresh(t *testing.T) {
	client := &scriptedLLM{reply: "answer"}
	repo := newRepoForTest(t)
	svc := NewChatService(repo, client)
	ctx := context.Background()

	other, err := svc.Send(ctx, "sess-other", "", "secret question", nil)
	if err != nil {
		t.Fatalf("seed other session: %v", err)
	}

	reply, err := svc.Send(ctx, "sess-1", other.ConversationID, "my question", nil)
	if err != nil {
		t.Fatalf("send with guessed id: %v", err)
	}
	if reply.ConversationID == other.ConversationID {
		t.Fatal("a guessed conversation id must not attach to another session")
	}
	// The prompt must not contain the other session's history.
	prompt := client.requests[len(client.requests)-1]
	if len(prompt) != 1 || prompt[0].Content != "my question" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
}

func TestChatServiceLLMFailureLeavesUserMessage(t *testing.T) {
	client := &scriptedLLM{err: llm.ErrUnavailable}
	repo := newRepoForTest(t)
	svc := NewChatService(repo, client)
	ctx := context.Background()

	_, err := svc.Send(ctx, "sess-1", "", "question", nil)
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected llm.ErrUnavailable, got %v", err)
	}

	convs, err := svc.History(ctx, "sess-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(convs) != 1 || len(convs[0].Messages) != 1 {
		t.Fatalf("expected the user message persisted without a reply, got %+v", convs)
	}
	if convs[0].Messages[0].Role != RoleUser {
		t.Fatalf("unexpected role %q", convs[0].Messages[0].Role)
	}
}

func TestChatServiceDeleteConversation(t *testing.T) {
	client := &scriptedLLM{reply: "answer"}
	svc := NewChatService(newRepoForTest(t), client)
	ctx := context.Background()

	reply, err := svc.Send(ctx, "sess-1", "", "question", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.DeleteConversation(ctx, reply.ConversationID, "sess-other"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("foreign session must not delete, got %v", err)
	}
	if err := svc.DeleteConversation(ctx, reply.ConversationID, "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteConversation(ctx, reply.ConversationID, "sess-1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}

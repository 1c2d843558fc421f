package bot

import (
	"context"

	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Platform limits for the chat channel's structured messages.
const (
	maxButtons        = 3
	maxListSections   = 10
	maxListRows       = 10
	maxTitleLength    = 24
	maxDescLength     = 72
	maxListBodyLength = 1024
)

// Button is one tappable choice.
type Button struct {
	ID    string
	Title string
}

// ListRow is one row inside a sectioned list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups list rows under a title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// ReplyKind tags an outbound message shape.
type ReplyKind string

const (
	ReplyText         ReplyKind = "text"
	ReplyButtons      ReplyKind = "buttons"
	ReplyList         ReplyKind = "list"
	ReplyConfirmation ReplyKind = "confirmation"
)

// Reply is one outbound message produced by a state handler. The engine
// translates replies into messenger calls; send failures never roll back the
// session transition.
type Reply struct {
	Kind       ReplyKind
	Text       string
	Buttons    []Button
	ListButton string
	Sections   []ListSection
	Order      *repo.Order
}

// Messenger abstracts the chat channel's outbound API.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to, body, buttonText string, sections []ListSection) error
	SendOrderConfirmation(ctx context.Context, to string, order *repo.Order) error
	MarkRead(ctx context.Context, to string, messageIDs []string) error
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

// Package wa wraps the WhatsMeow client used for the chat-commerce channel.
package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/Z1Code/gastrocloud-sub000/internal/bot"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
}

// InboundHandler receives decoded customer turns. businessPhone is the
// number that received the message and keys tenant resolution.
type InboundHandler interface {
	HandleInbound(ctx context.Context, businessPhone, customerPhone string, in bot.Input)
}

// Client wraps the WhatsMeow client and associated dependencies. It
// implements bot.Messenger for outbound sends.
type Client struct {
	client  *whatsmeow.Client
	logger  *slog.Logger
	handler InboundHandler
}

var _ bot.Messenger = (*Client)(nil)

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client: client,
		logger: logger.With("component", "wa"),
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// SetInboundHandler registers the handler for decoded customer messages.
func (c *Client) SetInboundHandler(handler InboundHandler) {
	c.handler = handler
}

// Start connects the client and handles login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// BusinessPhone returns the connected device's number, used for tenant
// resolution. Empty until pairing completes.
func (c *Client) BusinessPhone() string {
	if c.client.Store.ID == nil {
		return ""
	}
	return c.client.Store.ID.User
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	in := bot.Input{MessageID: string(evt.Info.ID)}
	switch {
	case msg.GetConversation() != "":
		in.Text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		in.Text = msg.GetExtendedTextMessage().GetText()
	case msg.ButtonsResponseMessage != nil:
		in.ButtonID = msg.GetButtonsResponseMessage().GetSelectedButtonID()
		in.Text = msg.GetButtonsResponseMessage().GetSelectedDisplayText()
	case msg.ListResponseMessage != nil:
		in.ListRowID = msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
		in.Text = msg.GetListResponseMessage().GetTitle()
	default:
		c.logger.Debug("unsupported message type ignored", "from", evt.Info.Sender.String())
		return
	}

	if c.handler == nil {
		return
	}
	go c.handler.HandleInbound(context.Background(), c.BusinessPhone(), evt.Info.Sender.User, in)
}

func userJID(phone string) types.JID {
	return types.NewJID(phone, types.DefaultUserServer)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	message := &waProto.Message{Conversation: proto.String(text)}
	if _, err := c.client.SendMessage(ctx, userJID(to), message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendButtons sends a quick-reply choice with up to three buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []bot.Button) error {
	if len(buttons) == 0 {
		return c.SendText(ctx, to, body)
	}
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}

	protoButtons := make([]*waProto.ButtonsMessage_Button, 0, len(buttons))
	for _, button := range buttons {
		protoButtons = append(protoButtons, &waProto.ButtonsMessage_Button{
			ButtonID:   proto.String(button.ID),
			ButtonText: &waProto.ButtonsMessage_Button_ButtonText{DisplayText: proto.String(button.Title)},
			Type:       waProto.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}

	message := &waProto.Message{
		ButtonsMessage: &waProto.ButtonsMessage{
			ContentText: proto.String(body),
			HeaderType:  waProto.ButtonsMessage_EMPTY.Enum(),
			Buttons:     protoButtons,
		},
	}
	if _, err := c.client.SendMessage(ctx, userJID(to), message); err != nil {
		return fmt.Errorf("send buttons: %w", err)
	}
	return nil
}

// SendList sends a sectioned single-select list.
func (c *Client) SendList(ctx context.Context, to, body, buttonText string, sections []bot.ListSection) error {
	if len(sections) == 0 {
		return c.SendText(ctx, to, body)
	}

	protoSections := make([]*waProto.ListMessage_Section, 0, len(sections))
	for _, section := range sections {
		rows := make([]*waProto.ListMessage_Row, 0, len(section.Rows))
		for _, row := range section.Rows {
			rows = append(rows, &waProto.ListMessage_Row{
				RowID:       proto.String(row.ID),
				Title:       proto.String(row.Title),
				Description: proto.String(row.Description),
			})
		}
		protoSections = append(protoSections, &waProto.ListMessage_Section{
			Title: proto.String(section.Title),
			Rows:  rows,
		})
	}

	message := &waProto.Message{
		ListMessage: &waProto.ListMessage{
			Description: proto.String(body),
			ButtonText:  proto.String(buttonText),
			ListType:    waProto.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    protoSections,
		},
	}
	if _, err := c.client.SendMessage(ctx, userJID(to), message); err != nil {
		return fmt.Errorf("send list: %w", err)
	}
	return nil
}

// SendOrderConfirmation sends the itemized order summary.
func (c *Client) SendOrderConfirmation(ctx context.Context, to string, order *repo.Order) error {
	if order == nil {
		return errors.New("send order confirmation: nil order")
	}
	return c.SendText(ctx, to, bot.RenderConfirmation(order))
}

// MarkRead acknowledges inbound messages with read receipts.
func (c *Client) MarkRead(ctx context.Context, to string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	ids := make([]types.MessageID, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, types.MessageID(id))
	}
	jid := userJID(to)
	if err := c.client.MarkRead(ids, time.Now(), jid, jid); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

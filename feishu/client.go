// Package feishu is a thin client for the Lark/Feishu open platform: it
// receives message events over the WebSocket long connection and sends text
// and image replies. Everything platform-specific stays behind this package.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// Message is one inbound text message, reduced to the fields the responder
// cares about.
type Message struct {
	ChatID      string
	MsgID       string
	Content     string
	SenderID    string
	SenderIsBot bool
	CreateTime  time.Time
}

// Ref identifies the message in logs.
func (m *Message) Ref() string {
	return m.ChatID + "/" + m.MsgID
}

// Client wraps the Lark API and WebSocket clients.
type Client struct {
	appID     string
	appSecret string
	logger    *zap.Logger
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage func(*Message)
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a client for the given app credentials. The API client
// is usable immediately; the event stream starts with Start.
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		logger:    logger,
		larkCli:   lark.NewClient(appID, appSecret),
	}
}

// OnMessage registers the inbound message handler. Must be called before
// Start. The handler runs on the event dispatcher goroutine.
func (c *Client) OnMessage(handler func(*Message)) {
	c.onMessage = handler
}

// Start connects the WebSocket event stream and blocks until Stop or a
// connection-level error.
func (c *Client) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(c.ctx)
}

// Stop closes the WebSocket connection.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	msg := event.Event.Message
	if msg == nil || msg.MessageType == nil || *msg.MessageType != "text" {
		return
	}

	var textContent struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(*msg.Content), &textContent); err != nil {
		c.logger.Warn("failed to parse message content", zap.Error(err))
		return
	}

	m := &Message{
		ChatID:     *msg.ChatId,
		MsgID:      *msg.MessageId,
		Content:    textContent.Text,
		CreateTime: time.Now(),
	}

	// Feishu timestamps are millisecond strings.
	if msg.CreateTime != nil {
		if ms, err := strconv.ParseInt(*msg.CreateTime, 10, 64); err == nil {
			m.CreateTime = time.UnixMilli(ms)
		}
	}

	if sender := event.Event.Sender; sender != nil {
		if sender.SenderId != nil && sender.SenderId.OpenId != nil {
			m.SenderID = *sender.SenderId.OpenId
		}
		if sender.SenderType != nil {
			m.SenderIsBot = *sender.SenderType == "bot"
		}
	}

	c.logger.Debug("received message",
		zap.String("ref", m.Ref()),
		zap.Int("len", len(m.Content)))

	if c.onMessage != nil {
		c.onMessage(m)
	}
}

// Reply sends a text reply to the given message.
func (c *Client) Reply(ctx context.Context, msgID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})

	req := larkim.NewReplyMessageReqBuilder().
		MessageId(msgID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply error: %s", resp.Msg)
	}
	return nil
}

// ReplyImage uploads the image at path and sends it as a reply to the given
// message.
func (c *Client) ReplyImage(ctx context.Context, msgID, path string) error {
	imageKey, err := c.uploadImage(ctx, path)
	if err != nil {
		return err
	}

	contentJSON, _ := json.Marshal(map[string]string{"image_key": imageKey})

	req := larkim.NewReplyMessageReqBuilder().
		MessageId(msgID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeImage).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("image reply failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("image reply error: %s", resp.Msg)
	}
	return nil
}

// SendText sends a standalone text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}
	return nil
}

func (c *Client) uploadImage(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image %s: %w", path, err)
	}
	defer file.Close()

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(file).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("image upload error: %s", resp.Msg)
	}
	return *resp.Data.ImageKey, nil
}

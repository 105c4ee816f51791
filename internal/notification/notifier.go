package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"text/template"
	"time"

	"backend/internal/config"
)

// Notifier 通知器接口，deliver(notification) 契约的实现方
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
}

// MultiNotifier 多通道通知器，按渠道路由
type MultiNotifier struct {
	email     *EmailNotifier
	webhook   *WebhookNotifier
	websocket *WebSocketNotifier
}

// NewMultiNotifier 创建多通道通知器
// 未配置的渠道保持 nil，投递时返回错误并由调用方记账
func NewMultiNotifier(emailCfg *config.EmailConfig, webhookCfg *config.WebhookConfig, hub *WebSocketHub) *MultiNotifier {
	m := &MultiNotifier{
		websocket: NewWebSocketNotifier(hub),
	}
	if emailCfg != nil && emailCfg.Enabled {
		m.email = NewEmailNotifier(emailCfg)
	}
	if webhookCfg != nil && webhookCfg.Enabled {
		m.webhook = NewWebhookNotifier(webhookCfg)
	}
	return m
}

// Send 按渠道分发通知
func (m *MultiNotifier) Send(ctx context.Context, n *Notification) error {
	var notifier Notifier

	switch n.Channel {
	case ChannelEmail:
		if m.email != nil {
			notifier = m.email
		}
	case ChannelWebhook:
		if m.webhook != nil {
			notifier = m.webhook
		}
	case ChannelWebSocket:
		if m.websocket != nil {
			notifier = m.websocket
		}
	default:
		return fmt.Errorf("不支持的通知渠道: %s", n.Channel)
	}

	if notifier == nil {
		return fmt.Errorf("渠道未配置: %s", n.Channel)
	}
	return notifier.Send(ctx, n)
}

// EmailNotifier 邮件通知器
type EmailNotifier struct {
	config    *config.EmailConfig
	templates *template.Template
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(cfg *config.EmailConfig) *EmailNotifier {
	if cfg == nil {
		return nil
	}
	var templates *template.Template
	if cfg.TemplatePath != "" {
		templates, _ = template.ParseGlob(cfg.TemplatePath)
	}
	return &EmailNotifier{
		config:    cfg,
		templates: templates,
	}
}

// Send 发送邮件
func (e *EmailNotifier) Send(ctx context.Context, n *Notification) error {
	if e == nil || e.config == nil {
		return fmt.Errorf("邮件未配置")
	}
	if n.Recipient == "" {
		return fmt.Errorf("邮件通知缺少收件人")
	}

	var body bytes.Buffer
	if e.templates != nil && n.Data != nil {
		if tmpl := e.templates.Lookup(n.Kind + ".html"); tmpl != nil {
			if err := tmpl.Execute(&body, n.Data); err != nil {
				return fmt.Errorf("渲染邮件模板失败: %w", err)
			}
		} else {
			body.WriteString(n.Body)
		}
	} else {
		body.WriteString(n.Body)
	}

	message := fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		e.config.FromName,
		e.config.From,
		n.Recipient,
		n.Subject,
		body.String(),
	)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)

	if err := smtp.SendMail(addr, auth, e.config.From, []string{n.Recipient}, []byte(message)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// WebhookNotifier Webhook 通知器
type WebhookNotifier struct {
	config *config.WebhookConfig
	client *http.Client
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	timeout := 10 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Send 发送 Webhook
func (w *WebhookNotifier) Send(ctx context.Context, n *Notification) error {
	url := n.Recipient
	if url == "" && w.config != nil {
		url = w.config.DefaultURL
	}
	if url == "" {
		return fmt.Errorf("Webhook URL 未配置")
	}

	payload := map[string]any{
		"kind":        n.Kind,
		"workflow_id": n.WorkflowID,
		"subject":     n.Subject,
		"body":        n.Body,
		"data":        n.Data,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 Webhook 负载失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建 Webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RemediationApproval-Notifier/1.0")
	if w.config != nil {
		for key, value := range w.config.Headers {
			req.Header.Set(key, value)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Webhook 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回错误状态: %d", resp.StatusCode)
	}
	return nil
}

// WebSocketNotifier WebSocket 通知器，经 Hub 推送给在线审批人
type WebSocketNotifier struct {
	hub *WebSocketHub
}

// NewWebSocketNotifier 创建 WebSocket 通知器
func NewWebSocketNotifier(hub *WebSocketHub) *WebSocketNotifier {
	if hub == nil {
		return nil
	}
	return &WebSocketNotifier{hub: hub}
}

// Send 推送 WebSocket 消息，离线时转入离线缓存
func (ws *WebSocketNotifier) Send(ctx context.Context, n *Notification) error {
	if ws == nil || ws.hub == nil {
		return fmt.Errorf("WebSocket hub 未配置")
	}
	if n.ApproverID == "" {
		return fmt.Errorf("WebSocket 通知缺少接收方")
	}
	payload := map[string]any{
		"type":        "notification",
		"kind":        n.Kind,
		"workflow_id": n.WorkflowID,
		"subject":     n.Subject,
		"body":        n.Body,
		"data":        n.Data,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	return ws.hub.SendToApprover(ctx, n.ApproverID, payload)
}

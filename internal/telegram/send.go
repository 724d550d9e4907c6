package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/medconn/medconnect/internal/backoff"
)

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
}

func (c *Client) SendMessageWithButtons(ctx context.Context, chatID int64, text string, buttons [][]InlineButton) error {
	if len(buttons) == 0 {
		return c.SendMessage(ctx, chatID, text)
	}
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           &replyMarkup{InlineKeyboard: buttons},
	})
}

func (c *Client) sendMessage(ctx context.Context, body sendMessageRequest) error {
	if body.ChatID == 0 {
		return fmt.Errorf("chat_id is required")
	}
	if strings.TrimSpace(body.Text) == "" {
		return fmt.Errorf("text is required")
	}
	return c.retry.Do(ctx, "telegram_send_message", func(ctx context.Context) error {
		var out okResponse
		if err := c.postJSON(ctx, c.methodURL("sendMessage"), body, &out); err != nil {
			return err
		}
		if !out.OK {
			return backoff.Permanent(fmt.Errorf("telegram sendMessage: ok=false"))
		}
		return nil
	})
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	callbackQueryID = strings.TrimSpace(callbackQueryID)
	if callbackQueryID == "" {
		return fmt.Errorf("callback_query_id is required")
	}
	body := answerCallbackRequest{CallbackQueryID: callbackQueryID, Text: strings.TrimSpace(text)}
	return c.retry.Do(ctx, "telegram_answer_callback", func(ctx context.Context) error {
		var out okResponse
		if err := c.postJSON(ctx, c.methodURL("answerCallbackQuery"), body, &out); err != nil {
			return err
		}
		if !out.OK {
			return backoff.Permanent(fmt.Errorf("telegram answerCallbackQuery: ok=false"))
		}
		return nil
	})
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, filePath string, filename string, caption string) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id is required")
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(filePath)
	}

	return c.retry.Do(ctx, "telegram_send_document", func(ctx context.Context) error {
		f, err := os.Open(filePath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("open document: %w", err))
		}
		defer f.Close()

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
			return backoff.Permanent(err)
		}
		if caption = strings.TrimSpace(caption); caption != "" {
			if err := mw.WriteField("caption", caption); err != nil {
				return backoff.Permanent(err)
			}
			if err := mw.WriteField("parse_mode", "HTML"); err != nil {
				return backoff.Permanent(err)
			}
		}
		part, err := mw.CreateFormFile("document", filename)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return backoff.Permanent(err)
		}
		if err := mw.Close(); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), &buf)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := c.http.Do(req)
		if err != nil {
			return backoff.ClassifyNetwork(err)
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return classifyStatus(resp, raw)
	})
}

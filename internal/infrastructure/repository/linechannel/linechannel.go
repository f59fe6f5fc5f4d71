package linechannel

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/mailgram/mailgram/internal/domain/channel"
)

// Channel pushes text messages through the LINE messaging API.
type Channel struct {
	bot *messaging_api.MessagingApiAPI
}

var _ channel.Channel = (*Channel)(nil)

func New(channelToken string) (*Channel, error) {
	if channelToken == "" {
		return nil, fmt.Errorf("line channel token is empty")
	}

	bot, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging API: %w", err)
	}

	return &Channel{bot: bot}, nil
}

func (c *Channel) PushText(ctx context.Context, userID, text string) error {
	if userID == "" {
		return fmt.Errorf("user ID is empty")
	}

	_, err := c.bot.PushMessage(
		&messaging_api.PushMessageRequest{
			To: userID,
			Messages: []messaging_api.MessageInterface{
				messaging_api.TextMessage{
					Text: text,
				},
			},
		},
		"",
	)
	if err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}

	return nil
}

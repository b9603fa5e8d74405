package notify

import (
	"fmt"
	"log"

	slackapi "github.com/slack-go/slack"

	"carevoice-backend/internal/session"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts call outcomes to a Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	s := &Slack{client: opts.Client, channelID: opts.ChannelID}
	if s.client == nil {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

func (s *Slack) CallCompleted(sess session.Session) {
	s.post(completedText(sess))
}

func (s *Slack) CallFailed(sess session.Session, reason string) {
	s.post(failedText(sess, reason))
}

func (s *Slack) post(text string) {
	if _, _, err := s.client.PostMessage(s.channelID, slackapi.MsgOptionText(text, false)); err != nil {
		log.Printf("notify: slack post failed: %v", err)
	}
}

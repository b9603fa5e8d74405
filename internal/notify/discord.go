package notify

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"carevoice-backend/internal/session"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts call outcomes to a Discord channel.
type Discord struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	d := &Discord{sess: opts.Session, channelID: opts.ChannelID}
	if d.sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		d.sess = s
	}
	return d, nil
}

func (d *Discord) CallCompleted(sess session.Session) {
	d.post(completedText(sess))
}

func (d *Discord) CallFailed(sess session.Session, reason string) {
	d.post(failedText(sess, reason))
}

func (d *Discord) post(text string) {
	if _, err := d.sess.ChannelMessageSend(d.channelID, text); err != nil {
		log.Printf("notify: discord post failed: %v", err)
	}
}

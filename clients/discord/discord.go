package discord

import (
	"fmt"
	"predictor/clients/notifier"
	"predictor/config"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Discord caps embeds at 25 fields.
const maxEmbedFields = 25

// DiscordClient sends digests to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord digests disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendDigest sends a rich embedded picks digest.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendDigest(digest notifier.PicksDigest) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping digest")
		return
	}

	embed := dc.buildDigestEmbed(digest)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord digest",
		zap.String("title", digest.Title),
		zap.Int("picks", len(digest.Picks)),
	)
}

func (dc *DiscordClient) buildDigestEmbed(digest notifier.PicksDigest) *discordgo.MessageEmbed {
	title := digest.Title
	if title == "" {
		title = "🔥 Trending Picks"
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(digest.Picks))
	for i, p := range digest.Picks {
		if i == maxEmbedFields {
			break
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s %s (%s)", sideEmoji(p), p.PlayerName, strings.ToUpper(p.Sport)),
			Value:  formatPick(p),
			Inline: false,
		})
	}

	description := fmt.Sprintf("%d high confidence picks for the next 3 days", len(digest.Picks))
	if len(digest.Picks) > maxEmbedFields {
		description += fmt.Sprintf(" (showing %d)", maxEmbedFields)
	}

	// Format timestamp for footer (PST)
	pst, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		pst = time.UTC
	}
	ts := digest.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	footerText := fmt.Sprintf("predictor * %s", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       title,
		URL:         digest.DashboardURL, // Makes title clickable
		Description: description,
		Color:       0x3498DB,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func formatPick(p notifier.Pick) string {
	matchup := p.Team
	if p.Opponent != "" {
		matchup = fmt.Sprintf("%s vs %s", p.Team, p.Opponent)
	}
	return fmt.Sprintf("**%s %.1f %s** @ %.0f%%\nProjected %.1f | %s | %s",
		p.Side(), p.Line, formatStat(p.StatType), p.SideProbability()*100,
		p.PredictedValue, matchup, p.GameDate)
}

func sideEmoji(p notifier.Pick) string {
	if p.Side() == "OVER" {
		return "🟢"
	}
	return "🔴"
}

func formatStat(stat string) string {
	return strings.ReplaceAll(stat, "_", " ")
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}

package clients

import (
	"predictor/clients/discord"
	"predictor/clients/notifier"
	"predictor/clients/predictorapi"
	"predictor/clients/telegram"
	"predictor/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Predictor *predictorapi.PredictorApiClient
	Discord   *discord.DiscordClient
	Telegram  *telegram.TelegramClient
	Notifier  notifier.Notifier // Combined notifier for all channels
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)
	telegramClient := telegram.NewTelegramClient(logger, cfg)

	// Create combined notifier for all channels
	multiNotifier := notifier.NewMultiNotifier(discordClient, telegramClient)

	return &Clients{
		Logger:    logger,
		Predictor: predictorapi.NewPredictorApiClient(logger, cfg),
		Discord:   discordClient,
		Telegram:  telegramClient,
		Notifier:  multiNotifier,
	}
}

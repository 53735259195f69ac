package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Command defines a bot command with its handler key and Telegram menu description.
type Command struct {
	Name        string // Command name without slash (e.g., "start")
	Description string // Description shown in Telegram command menu
}

// botCommands defines all available bot commands.
// This is the single source of truth for command definitions.
var botCommands = []Command{
	{Name: "camera", Description: "Cadrer la carte avec le guide"},
	{Name: "send", Description: "Envoyer l'image pour analyse"},
	{Name: "result", Description: "Afficher le dernier résultat"},
	{Name: "clear", Description: "Supprimer l'image en cours"},
	{Name: "history", Description: "Dernières extractions"},
	{Name: "preview", Description: "Taille de l'aperçu caméra"},
	{Name: "revoke", Description: "Réinitialiser une permission"},
	{Name: "login", Description: "Se connecter"},
	{Name: "register", Description: "Créer un compte"},
	{Name: "forgot_password", Description: "Mot de passe oublié"},
	{Name: "logout", Description: "Se déconnecter"},
	{Name: "cancel", Description: "Annuler l'opération en cours"},
	{Name: "version", Description: "Version du bot"},
}

// RegisterCommands sets the bot's command menu in Telegram.
// This should be called once at startup.
func RegisterCommands(tg BotAPI) {
	commands := make([]tgbotapi.BotCommand, len(botCommands))
	for i, cmd := range botCommands {
		commands[i] = tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		}
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	if _, err := tg.Request(config); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	} else {
		log.Info().Int("count", len(commands)).Msg("registered bot commands")
	}
}

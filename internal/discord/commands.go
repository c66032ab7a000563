package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ArchonCollection/StreamPing/internal/domain"
	"github.com/ArchonCollection/StreamPing/internal/metrics"
	"github.com/ArchonCollection/StreamPing/internal/subscriptions"
	"github.com/ArchonCollection/StreamPing/internal/twitch"
)

const commandTimeout = 15 * time.Second

// Handler processes one interaction.
type Handler func(s *discordgo.Session, i *discordgo.InteractionCreate)

// Command pairs a slash-command definition with its typed handlers. The
// registry is built once at startup; there is no dynamic discovery.
type Command struct {
	Definition   *discordgo.ApplicationCommand
	Handle       Handler
	Autocomplete Handler // nil when the command has no autocomplete options
}

// throttle gates command invocations per guild.
type throttle interface {
	Allow(guildID string) bool
}

// Registry maps command names to their handlers and routes interactions.
type Registry struct {
	commands map[string]Command
	throttle throttle
}

func NewRegistry(svc *subscriptions.Service, throttle throttle) *Registry {
	r := &Registry{
		commands: make(map[string]Command),
		throttle: throttle,
	}
	for _, cmd := range []Command{
		subscribeCommand(svc),
		unsubscribeCommand(svc),
		listCommand(svc),
	} {
		r.commands[cmd.Definition.Name] = cmd
	}
	return r
}

// Definitions returns every command definition for bulk registration.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		defs = append(defs, cmd.Definition)
	}
	return defs
}

// HandleInteraction is the gateway handler for all interaction events.
func (r *Registry) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		cmd, ok := r.commands[data.Name]
		if !ok {
			return
		}
		if i.GuildID == "" {
			replyEphemeral(s, i, "This command can only be used in servers.")
			return
		}
		if !r.throttle.Allow(i.GuildID) {
			replyEphemeral(s, i, "You're sending commands too quickly. Try again in a few seconds.")
			return
		}
		cmd.Handle(s, i)

	case discordgo.InteractionApplicationCommandAutocomplete:
		data := i.ApplicationCommandData()
		cmd, ok := r.commands[data.Name]
		if ok && cmd.Autocomplete != nil {
			cmd.Autocomplete(s, i)
		}
	}
}

func subscribeCommand(svc *subscriptions.Service) Command {
	return Command{
		Definition: &discordgo.ApplicationCommand{
			Name:        "subscribe",
			Description: "Subscribe to live notifications for a channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "platform",
					Description: "The platform to subscribe to",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Twitch", Value: "twitch"},
						{Name: "Youtube", Value: "youtube"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "The name of the channel",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "destination",
					Description: "Channel to post notifications in (defaults to this one)",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "mention",
					Description: "Role to mention in notifications",
					Required:    false,
				},
			},
		},
		Handle: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			deferReply(s, i)

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			opts := optionMap(i)
			platform, _ := domain.ParsePlatform(opts["platform"].StringValue())
			name := opts["name"].StringValue()

			destinationID := i.ChannelID
			if opt, ok := opts["destination"]; ok {
				destinationID = opt.ChannelValue(nil).ID
			}
			roleID := ""
			if opt, ok := opts["mention"]; ok {
				roleID = opt.RoleValue(nil, "").ID
			}

			info, err := svc.Subscribe(ctx, i.GuildID, platform, name, destinationID, roleID)
			if err != nil {
				metrics.CommandsTotal.WithLabelValues("subscribe", "error").Inc()
				editReply(s, i, subscribeErrorMessage(err, name))
				return
			}

			metrics.CommandsTotal.WithLabelValues("subscribe", "ok").Inc()
			embed := &discordgo.MessageEmbed{
				Title:       fmt.Sprintf("Subscribed to %s", info.DisplayName),
				URL:         fmt.Sprintf("https://www.twitch.tv/%s", info.Login),
				Description: orDefault(info.Description, "No description"),
				Color:       0x0099ff,
				Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: info.ProfileImageURL},
				Footer:      &discordgo.MessageEmbedFooter{Text: platform.Label()},
			}
			editReplyEmbed(s, i, embed)
		},
	}
}

func unsubscribeCommand(svc *subscriptions.Service) Command {
	return Command{
		Definition: &discordgo.ApplicationCommand{
			Name:        "unsubscribe",
			Description: "Unsubscribe from a channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "channel",
					Description:  "The channel you want to unsubscribe from",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		Handle: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			deferReply(s, i)

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			externalChannelID := optionMap(i)["channel"].StringValue()

			sub, err := svc.Unsubscribe(ctx, i.GuildID, domain.PlatformTwitch, externalChannelID)
			if errors.Is(err, domain.ErrSubscriptionNotFound) {
				metrics.CommandsTotal.WithLabelValues("unsubscribe", "error").Inc()
				editReply(s, i, "The channel you are trying to unsubscribe from does not exist.")
				return
			}
			if err != nil {
				metrics.CommandsTotal.WithLabelValues("unsubscribe", "error").Inc()
				editReply(s, i, "Something went wrong while unsubscribing. Please try again.")
				return
			}

			metrics.CommandsTotal.WithLabelValues("unsubscribe", "ok").Inc()
			editReply(s, i, fmt.Sprintf("You have successfully unsubscribed from %s.", sub.ExternalChannelName))
		},
		Autocomplete: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			subs, err := svc.List(ctx, i.GuildID)
			if err != nil {
				slog.Error("Failed to fetch subscriptions for autocomplete",
					"guild_id", i.GuildID, "error", err)
				respondChoices(s, i, nil)
				return
			}

			query := ""
			for _, opt := range i.ApplicationCommandData().Options {
				if opt.Focused {
					query = opt.StringValue()
				}
			}
			respondChoices(s, i, filterSubscriptionChoices(subs, query))
		},
	}
}

func listCommand(svc *subscriptions.Service) Command {
	return Command{
		Definition: &discordgo.ApplicationCommand{
			Name:        "list",
			Description: "List this server's live notification subscriptions",
		},
		Handle: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			deferReply(s, i)

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			subs, err := svc.List(ctx, i.GuildID)
			if err != nil {
				metrics.CommandsTotal.WithLabelValues("list", "error").Inc()
				editReply(s, i, "Something went wrong while fetching subscriptions.")
				return
			}

			metrics.CommandsTotal.WithLabelValues("list", "ok").Inc()
			if len(subs) == 0 {
				editReply(s, i, "This server has no subscriptions yet. Use /subscribe to add one.")
				return
			}

			var b strings.Builder
			for _, sub := range subs {
				fmt.Fprintf(&b, "• **%s** (%s) → <#%s>\n",
					sub.ExternalChannelName, sub.Platform.Label(), sub.DestinationChannelID)
			}
			editReply(s, i, b.String())
		},
	}
}

// filterSubscriptionChoices builds autocomplete choices from the guild's
// subscriptions, filtered by a case-insensitive display-name substring.
func filterSubscriptionChoices(subs []domain.Subscription, query string) []*discordgo.ApplicationCommandOptionChoice {
	query = strings.ToLower(query)
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, sub := range subs {
		if query != "" && !strings.Contains(strings.ToLower(sub.ExternalChannelName), query) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s (%s)", sub.ExternalChannelName, sub.Platform.Label()),
			Value: sub.ExternalChannelID,
		})
	}
	return choices
}

// subscribeErrorMessage maps subscription errors to user-facing replies.
func subscribeErrorMessage(err error, channelName string) string {
	var capErr *subscriptions.CapacityError
	var dupErr *subscriptions.DuplicateError

	switch {
	case errors.Is(err, domain.ErrPlatformUnsupported):
		return "YouTube subscriptions are not supported yet."
	case errors.Is(err, domain.ErrExternalChannelNotFound):
		return fmt.Sprintf("Channel %q not found.", channelName)
	case errors.As(err, &capErr):
		return fmt.Sprintf("You have reached the maximum of %d subscriptions for this server.", capErr.Limit)
	case errors.As(err, &dupErr):
		return fmt.Sprintf("This server is already subscribed to %s.", dupErr.ChannelName)
	default:
		var regErr *twitch.RegisterError
		if errors.As(err, &regErr) {
			return fmt.Sprintf("Failed to subscribe to live events: %s.", regErr.Message)
		}
		return "Something went wrong while subscribing. Please try again."
	}
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("Failed to defer interaction response", "error", err)
	}
}

func replyEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

func editReplyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

func respondChoices(s *discordgo.Session, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Error("Failed to respond to autocomplete", "error", err)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

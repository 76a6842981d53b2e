// Package discordbot posts application events to the review channel.
package discordbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"pclub/main_backend/database_service"
	"pclub/main_backend/metrics"
)

const (
	colorPending  = 0xF1C40F
	colorApproved = 0x2ECC71
	colorRejected = 0xE74C3C
	colorNeutral  = 0x95A5A6
)

// sender is the part of *discordgo.Session the notifier uses.
type sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier relays application events to one Discord channel.
type Notifier struct {
	session   sender
	closer    func() error
	channelID string
	adminURL  string
	log       *logrus.Logger
}

// New opens a bot session. adminURL, when set, links each embed to the dashboard.
func New(token, channelID, adminURL string, log *logrus.Logger) (*Notifier, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	n := newNotifier(session, channelID, adminURL, log)
	n.closer = session.Close
	return n, nil
}

func newNotifier(s sender, channelID, adminURL string, log *logrus.Logger) *Notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{session: s, channelID: channelID, adminURL: adminURL, log: log}
}

// Close ends the bot session.
func (n *Notifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

// Notify posts one event. Events that carry nothing worth a message are skipped.
func (n *Notifier) Notify(ctx context.Context, ev database_service.AppEvent) error {
	embed := FormatEvent(ev, n.adminURL)
	if embed == nil {
		return nil
	}
	_, err := n.session.ChannelMessageSendEmbed(n.channelID, embed, discordgo.WithContext(ctx))
	return err
}

// Relay forwards events until ctx is cancelled or the event stream ends.
// Send failures are logged and do not stop the relay.
func (n *Notifier) Relay(ctx context.Context, events <-chan database_service.AppEvent, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			n.log.WithError(err).Warn("application event stream error")
		case ev, ok := <-events:
			if !ok {
				n.log.Info("application event stream closed")
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := n.Notify(sendCtx, ev)
			cancel()
			metrics.RecordRelay(ev.Action, err)
			if err != nil {
				n.log.WithError(err).WithField("application_id", ev.RowID).Error("discord notify failed")
			}
		}
	}
}

// FormatEvent renders an event as an embed, or nil when it should not be posted:
// updates that leave the status unchanged (notes edits) stay quiet.
func FormatEvent(ev database_service.AppEvent, adminURL string) *discordgo.MessageEmbed {
	var embed *discordgo.MessageEmbed
	switch ev.Action {
	case "insert":
		embed = &discordgo.MessageEmbed{
			Title:       "New application",
			Description: fmt.Sprintf("**%s** applied for **%s**", orDash(ev.Name), orDash(ev.Role)),
			Color:       colorPending,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Email", Value: orDash(ev.Email), Inline: true},
				{Name: "Role", Value: orDash(ev.Role), Inline: true},
			},
		}
	case "update":
		if !ev.StatusChanged() {
			return nil
		}
		status := string(*ev.Status)
		embed = &discordgo.MessageEmbed{
			Title:       "Application " + status,
			Description: fmt.Sprintf("**%s** (%s): %s → %s", orDash(ev.Name), orDash(ev.Role), *ev.PreviousStatus, status),
			Color:       statusColor(status),
		}
		if ev.Actor != nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Reviewer", Value: *ev.Actor, Inline: true})
		}
	default:
		return nil
	}

	if adminURL = strings.TrimRight(adminURL, "/"); adminURL != "" {
		embed.URL = adminURL + "/admin"
	}
	if !ev.At.IsZero() {
		embed.Timestamp = ev.At.UTC().Format(time.RFC3339)
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "application " + ev.RowID}
	return embed
}

func statusColor(status string) int {
	switch status {
	case "approved":
		return colorApproved
	case "rejected":
		return colorRejected
	case "pending":
		return colorPending
	default:
		return colorNeutral
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

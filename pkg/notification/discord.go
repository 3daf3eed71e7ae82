package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/errors"
	"github.com/dustin/go-humanize"
	"github.com/lucperkins/rek"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"github.com/seedgate/seedgate/pkg/config"
	"github.com/seedgate/seedgate/pkg/httputils"
	"github.com/seedgate/seedgate/pkg/manager"
	"github.com/seedgate/seedgate/pkg/policy"
)

const (
	maxEmbedsPerMessage = 10
	maxCharactersPerMsg = 6000

	// hardcoded limit of fields to avoid hammering the api
	maxTotalFields = 250

	// webhooks allow 5 requests per 2 seconds
	webhookRequests = 5
	webhookWindow   = 2 * time.Second
)

type DiscordMessage struct {
	Content   interface{}    `json:"content"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Color       int                  `json:"color"`
	Fields      []DiscordEmbedsField `json:"fields,omitempty"`
	Footer      DiscordEmbedsFooter  `json:"footer,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

type DiscordEmbedsFooter struct {
	Text string `json:"text"`
}

type DiscordEmbedsField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedColors int

const (
	LIGHT_BLUE EmbedColors = 0x58b9ff
	RED        EmbedColors = 0xed4245
	GREEN      EmbedColors = 0x57f287
	GRAY       EmbedColors = 0x99aab5
)

// Discord markdown characters that need escaping
var discordMarkdownChars = regexp.MustCompile(`([\\*_~` + "`" + `|>])`)

func escapeDiscordMarkdown(text string) string {
	if text == "" {
		return text
	}
	return discordMarkdownChars.ReplaceAllString(text, `\$1`)
}

type discordSender struct {
	log    *logrus.Entry
	config config.NotificationsConfig

	httpClient *http.Client
}

func NewDiscordSender(log *logrus.Entry, config config.NotificationsConfig) Sender {
	return newDiscordSender(log, config, ratelimit.New(webhookRequests, ratelimit.Per(webhookWindow)))
}

func newDiscordSender(log *logrus.Entry, config config.NotificationsConfig, rl ratelimit.Limiter) *discordSender {
	return &discordSender{
		log:        log.WithField("sender", "discord"),
		config:     config,
		httpClient: httputils.NewRetryableHttpClient(30*time.Second, rl),
	}
}

func (d *discordSender) Name() string {
	return "discord"
}

func (d *discordSender) CanSend() bool {
	return d.config.Service.Discord.Enabled()
}

func (d *discordSender) Notify(ctx context.Context, report manager.Report) error {
	candidates := report.Candidates()

	// skip_empty_run drops reports without candidates or unreachable clients
	if candidates == 0 && len(report.Unavailable()) == 0 && d.config.SkipEmptyRun {
		d.log.Debug("Nothing to report, skipping notification")
		return nil
	}

	title := "Seedgate sweep"
	if !report.Delete {
		title += " [Dry Run]"
	}

	embeds := d.buildEmbeds(title, report)

	batches, err := batchEmbeds(embeds)
	if err != nil {
		return err
	}

	totalMsgs := len(batches)
	for i, batch := range batches {
		if batch[0].Title == "" {
			batch[0].Title = escapeDiscordMarkdown(title)
		}

		// If more than one message, append the counter to the first embed title
		if totalMsgs > 1 {
			batch[0].Title = fmt.Sprintf("%s (%d/%d)", batch[0].Title, i+1, totalMsgs)
		}

		msg := DiscordMessage{
			Content:   nil,
			Username:  d.config.Service.Discord.Username,
			AvatarURL: d.config.Service.Discord.AvatarURL,
			Embeds:    batch,
		}

		if err := d.sendRequest(ctx, msg); err != nil {
			return errors.Wrap(err, "failed to send a message chunk to Discord")
		}

		d.log.Debugf("Sent Discord message %d/%d (%d embeds).", i+1, totalMsgs, len(batch))
	}

	return nil
}

func (d *discordSender) buildEmbeds(title string, report manager.Report) []DiscordEmbed {
	var (
		embeds    []DiscordEmbed
		timestamp = report.StartedAt
		rt        = report.Duration.Truncate(time.Millisecond).String()
	)

	fields := d.buildFields(report)
	detailed := d.config.Detailed && len(fields) > 0 && len(fields) <= maxTotalFields

	if detailed {
		for i, field := range fields {
			embeds = append(embeds, DiscordEmbed{
				Description: fmt.Sprintf("**%s**", escapeDiscordMarkdown(field.Name)),
				Color:       int(field.Color),
				Fields:      d.parseFieldValueToInlineFields(field.Value),
				Footer: DiscordEmbedsFooter{
					Text: fmt.Sprintf("Progress: %d/%d | Finished in %s", i+1, len(fields), rt),
				},
				Timestamp: timestamp,
			})
		}
	}

	summary := DiscordEmbed{
		Title:       title,
		Description: summarize(report),
		Color:       int(LIGHT_BLUE),
		Footer:      DiscordEmbedsFooter{Text: fmt.Sprintf("Finished in %s", rt)},
		Timestamp:   timestamp,
	}

	if len(report.Unavailable()) > 0 {
		summary.Color = int(RED)
	}

	if detailed {
		summary.Title = fmt.Sprintf("%s - Summary", title)
	}

	return append(embeds, summary)
}

// buildFields returns one field per candidate, the value holds the inline fields as json.
func (d *discordSender) buildFields(report manager.Report) []Field {
	var fields []Field

	for _, c := range report.Clients {
		for _, t := range c.Trackers {
			for _, cand := range t.Candidates {
				inline := []DiscordEmbedsField{
					{Name: "Client", Value: escapeDiscordMarkdown(c.Name), Inline: true},
					{Name: "Tracker", Value: escapeDiscordMarkdown(t.Name), Inline: true},
					{Name: "Reason", Value: cand.Decision.String(), Inline: true},
					{Name: "Ratio", Value: fmt.Sprintf("%.2f", cand.Torrent.Ratio()), Inline: true},
				}

				if cand.Torrent.TrackerError != "" {
					inline = append(inline, DiscordEmbedsField{
						Name:  "Tracker Error",
						Value: escapeDiscordMarkdown(cand.Torrent.TrackerError),
					})
				}

				if cand.Error != "" {
					inline = append(inline, DiscordEmbedsField{
						Name:  "Removal Error",
						Value: escapeDiscordMarkdown(cand.Error),
					})
				}

				color := GREEN
				switch {
				case cand.Error != "":
					color = RED
				case cand.Decision == policy.RemoveFaulted:
					color = GRAY
				}

				jsonData, _ := json.Marshal(inline)
				fields = append(fields, Field{
					Name:  fmt.Sprintf("%s (%s)", cand.Torrent.Name, humanize.IBytes(uint64(cand.Torrent.SizeBytes))),
					Value: string(jsonData),
					Color: color,
				})
			}
		}
	}

	return fields
}

func (d *discordSender) parseFieldValueToInlineFields(value string) []DiscordEmbedsField {
	var fields []DiscordEmbedsField
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		d.log.WithError(err).Error("Failed to parse field value as JSON")
		return []DiscordEmbedsField{}
	}
	return fields
}

func (d *discordSender) sendRequest(ctx context.Context, msg DiscordMessage) error {
	res, err := rek.Post(d.config.Service.Discord.WebhookURL,
		rek.Client(d.httpClient),
		rek.Json(msg),
		rek.Context(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "client request error")
	}
	defer res.Body().Close()

	d.log.Tracef("Discord response status: %d", res.StatusCode())

	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusNoContent {
		body, readErr := io.ReadAll(res.Body())
		if readErr != nil {
			return errors.Wrap(readErr, "could not read body")
		}

		return errors.New("unexpected status: %v body: %v", res.StatusCode(), string(body))
	}

	d.log.Debug("Notification successfully sent to discord")
	return nil
}

func batchEmbeds(embeds []DiscordEmbed) ([][]DiscordEmbed, error) {
	var (
		batches      [][]DiscordEmbed
		currentBatch []DiscordEmbed
		currentChars int
	)

	flush := func() {
		if len(currentBatch) == 0 {
			return
		}
		batches = append(batches, currentBatch)
		currentBatch = nil
		currentChars = 0
	}

	for _, e := range embeds {
		jsonData, err := json.Marshal(e)
		if err != nil {
			return nil, errors.Wrap(err, "failed to calculate embed size for batching")
		}

		// If adding this embed breaks either the embed-count or char limit, flush first
		if len(currentBatch) >= maxEmbedsPerMessage || currentChars+len(jsonData) > maxCharactersPerMsg {
			flush()
		}

		currentBatch = append(currentBatch, e)
		currentChars += len(jsonData)
	}
	flush()

	return batches, nil
}

func summarize(report manager.Report) string {
	var sb strings.Builder

	for _, c := range report.Clients {
		if c.Error != "" {
			fmt.Fprintf(&sb, "**%s**: unavailable\n", escapeDiscordMarkdown(c.Name))
			continue
		}

		fmt.Fprintf(&sb, "**%s**: %d torrents, %s\n", escapeDiscordMarkdown(c.Name),
			c.Stats.Count, humanize.IBytes(uint64(c.Stats.SizeBytes)))

		for _, t := range c.Trackers {
			var sat, faulted int
			for _, cand := range t.Candidates {
				if cand.Decision == policy.RemoveFaulted {
					faulted++
				} else {
					sat++
				}
			}
			fmt.Fprintf(&sb, "- %s: %d satisfied, %d faulted of %d\n", escapeDiscordMarkdown(t.Name), sat, faulted, t.Stats.Count)
		}
	}

	fmt.Fprintf(&sb, "\nRemoved %d/%d, %d failed", report.Removed(), report.Candidates(), report.Failed())
	return sb.String()
}

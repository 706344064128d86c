package publisher

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"reddit_relay/internal/domain"
)

const (
	MaxTitleLength   = 256
	MaxBodyLength    = 500
	MaxContentLength = 2000
	MaxFields        = 25
	Ellipsis         = "..."

	DefaultThreadNameMaxLength = 80

	DefaultColor = 0xFF4500

	FormatEmbed = "embed"
	FormatText  = "text"
)

// WebhookMessage is the JSON body accepted by a Discord webhook.
type WebhookMessage struct {
	Username   string  `json:"username,omitempty"`
	AvatarURL  string  `json:"avatar_url,omitempty"`
	Content    string  `json:"content,omitempty"`
	Embeds     []Embed `json:"embeds,omitempty"`
	ThreadName string  `json:"thread_name,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type flairColor struct {
	keyword string
	color   int
}

// Checked in order; the first keyword found in the flair wins.
var flairColors = []flairColor{
	{keyword: "news", color: 0x3498DB},
	{keyword: "discussion", color: 0x2ECC71},
	{keyword: "question", color: 0xF1C40F},
	{keyword: "meme", color: 0x9B59B6},
	{keyword: "announcement", color: 0xE74C3C},
}

var thumbnailSentinels = map[string]struct{}{
	"":        {},
	"self":    {},
	"default": {},
	"nsfw":    {},
	"spoiler": {},
	"image":   {},
}

// Formatter turns items into webhook messages.
type Formatter struct {
	Format              string
	Username            string
	AvatarURL           string
	ThreadNames         bool
	ThreadPrefix        string
	ThreadNameMaxLength int
}

// Message builds the webhook payload for item.
func (f Formatter) Message(item *domain.Item) WebhookMessage {
	msg := WebhookMessage{
		Username:  f.Username,
		AvatarURL: f.AvatarURL,
	}

	if f.Format == FormatText {
		msg.Content = textContent(item)
	} else {
		msg.Embeds = []Embed{buildEmbed(item)}
	}

	if f.ThreadNames {
		msg.ThreadName = f.ThreadName(item)
	}
	return msg
}

// ThreadName builds a forum thread title: prefix, bracketed flair and the post
// title on one line, truncated to the configured length.
func (f Formatter) ThreadName(item *domain.Item) string {
	maxLen := f.ThreadNameMaxLength
	if maxLen <= 0 {
		maxLen = DefaultThreadNameMaxLength
	}

	var b strings.Builder
	if f.ThreadPrefix != "" {
		b.WriteString(f.ThreadPrefix)
		b.WriteString(" ")
	}
	if flair := item.FlairText(); flair != "" {
		b.WriteString("[")
		b.WriteString(flair)
		b.WriteString("] ")
	}
	b.WriteString(item.Title)

	name := strings.Join(strings.Fields(b.String()), " ")
	return Truncate(name, maxLen)
}

func buildEmbed(item *domain.Item) Embed {
	embed := Embed{
		Title:       Truncate(item.Title, MaxTitleLength),
		Description: Truncate(item.Body, MaxBodyLength),
		URL:         item.Permalink,
		Color:       ColorFor(item.FlairText()),
		Timestamp:   item.CreatedAt().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText(item)},
	}

	if item.Author != "" {
		embed.Author = &EmbedAuthor{Name: "u/" + item.Author}
		if item.Author != "[deleted]" {
			embed.Author.URL = "https://www.reddit.com/user/" + url.PathEscape(item.Author)
		}
	}

	if ValidThumbnail(item.Thumbnail) {
		embed.Thumbnail = &EmbedImage{URL: item.Thumbnail}
	}

	if item.URL != "" && item.URL != item.Permalink && !strings.Contains(item.URL, "/comments/"+item.ID) {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Link", Value: Truncate(item.URL, 1024)})
	}
	if flair := item.FlairText(); flair != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Flair", Value: Truncate(flair, 1024), Inline: true})
	}
	if len(embed.Fields) > MaxFields {
		embed.Fields = embed.Fields[:MaxFields]
	}

	return embed
}

func textContent(item *domain.Item) string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(Truncate(item.Title, MaxTitleLength))
	b.WriteString("**\n")
	if item.Body != "" {
		b.WriteString(Truncate(item.Body, MaxBodyLength))
		b.WriteString("\n")
	}
	b.WriteString("<")
	b.WriteString(item.Permalink)
	b.WriteString(">\n")
	b.WriteString(footerText(item))
	return Truncate(b.String(), MaxContentLength)
}

func footerText(item *domain.Item) string {
	return fmt.Sprintf("r/%s • %d points • %d comments", item.Subreddit, item.Score, item.NumComments)
}

// ColorFor picks the embed color for a flair label by case-insensitive keyword match.
func ColorFor(flair string) int {
	lower := strings.ToLower(flair)
	if lower == "" {
		return DefaultColor
	}
	for _, fc := range flairColors {
		if strings.Contains(lower, fc.keyword) {
			return fc.color
		}
	}
	return DefaultColor
}

// ValidThumbnail reports whether thumb is an https URL rather than one of
// Reddit's placeholder values.
func ValidThumbnail(thumb string) bool {
	if _, ok := thumbnailSentinels[thumb]; ok {
		return false
	}
	u, err := url.Parse(thumb)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

// Truncate shortens s to at most maxLen characters, ending with an ellipsis
// when anything was cut.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= len(Ellipsis) {
		return string([]rune(s)[:maxLen])
	}
	runes := []rune(s)
	return string(runes[:maxLen-len(Ellipsis)]) + Ellipsis
}

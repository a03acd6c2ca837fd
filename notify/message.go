package notify

import (
	"strings"

	"github.com/onnwee/live-notifier/twitchapi"
)

// ChannelURLPrefix is prepended to a login to build its public channel link.
const ChannelURLPrefix = "https://www.twitch.tv/"

// ChannelURL returns the deep link to login's channel.
func ChannelURL(login string) string {
	return ChannelURLPrefix + login
}

// FormatMessage renders the go-live announcement for login. The title is
// passed through verbatim. A display name that differs from the login
// (beyond case) is shown with the login in parentheses.
func FormatMessage(login string, s twitchapi.Stream) string {
	name := strings.TrimSpace(s.UserName)
	if name == "" {
		name = login
	}
	var b strings.Builder
	b.WriteString("🚨 **")
	b.WriteString(name)
	b.WriteString("**")
	if !strings.EqualFold(name, login) {
		b.WriteString(" (")
		b.WriteString(login)
		b.WriteString(")")
	}
	b.WriteString(" is live! Title: *")
	b.WriteString(s.Title)
	b.WriteString("*\n")
	if s.GameName != "" {
		b.WriteString("Playing: ")
		b.WriteString(s.GameName)
		b.WriteString("\n")
	}
	b.WriteString("Watch here: ")
	b.WriteString(ChannelURL(login))
	return b.String()
}

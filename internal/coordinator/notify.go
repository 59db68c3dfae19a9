package coordinator

import (
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/telegraph"
	"github.com/zulandar/hive/internal/telegraph/discord"
	"github.com/zulandar/hive/internal/telegraph/slack"
)

// BuildNotifier creates a Notifier over every configured chat platform.
// It returns nil when no platform is configured.
func BuildNotifier(tc config.TelegraphConfig) (*telegraph.Notifier, error) {
	var sinks []telegraph.Sink
	if tc.Slack.Enabled() {
		s, err := slack.New(slack.SinkOpts{BotToken: tc.Slack.BotToken, ChannelID: tc.Slack.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if tc.Discord.Enabled() {
		d, err := discord.New(discord.SinkOpts{BotToken: tc.Discord.BotToken, ChannelID: tc.Discord.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	level, _ := health.ParseLevel(tc.MinLevel)
	return telegraph.NewNotifier(level, sinks...), nil
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// SlackChannel posts to chat. A recipient target may list several channels
// comma-delimited; artifacts go up as file uploads, and a text post is the
// fallback when the envelope carries none.
type SlackChannel struct {
	client *slack.Client
}

func NewSlackChannel(cfg config.SlackConfig) *SlackChannel {
	return &SlackChannel{client: slack.New(cfg.Token)}
}

type slackFile struct {
	name string
	data []byte
}

func (c *SlackChannel) Deliver(ctx context.Context, recipient report.Recipient, env *Envelope) error {
	rcfg, err := recipient.Config()
	if err != nil {
		return &StatusError{Code: 422, Err: err}
	}

	body := slackBody(env)
	files := slackFiles(env)

	for _, channel := range splitTargets(rcfg.Target) {
		if err := c.deliverToChannel(ctx, channel, body, files); err != nil {
			return err
		}
	}
	return nil
}

func (c *SlackChannel) deliverToChannel(ctx context.Context, channel, body string, files []slackFile) error {
	if len(files) == 0 {
		_, _, err := c.client.PostMessageContext(ctx, channel, slack.MsgOptionText(body, false))
		return slackStatus(err)
	}
	for i, file := range files {
		params := slack.UploadFileV2Parameters{
			Channel:  channel,
			Filename: file.name,
			Title:    file.name,
			FileSize: len(file.data),
			Reader:   bytes.NewReader(file.data),
		}
		if i == 0 {
			params.InitialComment = body
		}
		if _, err := c.client.UploadFileV2Context(ctx, params); err != nil {
			return slackStatus(err)
		}
	}
	return nil
}

func slackBody(env *Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", env.Name)
	if env.Description != "" {
		fmt.Fprintf(&b, "%s\n", env.Description)
	}
	if env.Frame != nil {
		fmt.Fprintf(&b, "```\n%s```\n", textTable(env.Frame))
	}
	if env.URL != "" {
		fmt.Fprintf(&b, "<%s|Explore in the dashboard>", env.URL)
	}
	return b.String()
}

func slackFiles(env *Envelope) []slackFile {
	var files []slackFile
	for i, shot := range env.Screenshots {
		if len(shot) > 0 {
			files = append(files, slackFile{name: fmt.Sprintf("%s-%d.png", env.Name, i+1), data: shot})
		}
	}
	if len(env.PDF) > 0 {
		files = append(files, slackFile{name: env.Name + ".pdf", data: env.PDF})
	}
	if len(env.CSV) > 0 {
		files = append(files, slackFile{name: env.Name + ".csv", data: env.CSV})
	}
	return files
}

func slackStatus(err error) error {
	if err == nil {
		return nil
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &StatusError{Code: statusErr.Code, Err: err}
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return &StatusError{Code: 429, Err: err}
	}
	return err
}

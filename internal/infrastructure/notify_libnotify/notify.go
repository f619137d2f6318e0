package notify_libnotify

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Notifier shows scan summaries on the desktop through notify-send. In soft
// mode a missing binary or a failed call is not an error, so headless hosts
// can still run scans with notifications switched on.
type Notifier struct {
	soft bool
	bin  string
	opt  Options
}

func New() *Notifier     { return &Notifier{bin: "notify-send"} }
func NewSoft() *Notifier { return &Notifier{soft: true, bin: "notify-send"} }

type Options struct {
	Urgency string
	Expire  time.Duration
}

func (n *Notifier) WithOptions(opt Options) *Notifier {
	n.opt = opt
	return n
}

func (n *Notifier) Notify(ctx context.Context, title, body, url string) error {
	return n.NotifyWith(ctx, title, body, url, n.opt)
}

func (n *Notifier) NotifyWith(ctx context.Context, title, body, url string, opt Options) error {
	cmd := exec.CommandContext(ctx, n.bin, args(title, withURL(body, url), opt)...)
	if err := cmd.Run(); err != nil {
		if n.soft {
			return nil
		}
		return err
	}
	return nil
}

func args(title, body string, opt Options) []string {
	out := []string{"--app-name=pipeline-lineage"}
	if opt.Urgency != "" {
		out = append(out, "--urgency="+opt.Urgency)
	}
	if opt.Expire > 0 {
		out = append(out, "--expire-time="+strconv.Itoa(int(opt.Expire/time.Millisecond)))
	}
	return append(out, title, body)
}

func withURL(body, url string) string {
	if strings.TrimSpace(url) == "" {
		return body
	}
	if body == "" {
		return url
	}
	return body + "\n" + url
}

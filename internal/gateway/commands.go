package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/chatscribe/internal/analysis"
	"github.com/stellarlinkco/chatscribe/internal/bus"
	"github.com/stellarlinkco/chatscribe/internal/config"
	"github.com/stellarlinkco/chatscribe/internal/convo"
	"github.com/stellarlinkco/chatscribe/internal/cron"
	"github.com/stellarlinkco/chatscribe/internal/llm"
	"github.com/stellarlinkco/chatscribe/internal/summary"
)

const helpText = `Commands:
/summary - summarize this chat
/query <question> - answer a question from this chat's history
/dump - print the logged messages
/topusers - most active members
/frequency - most common words
/digest on [cron expr] | off | pause | resume - daily summary for this chat
/digest - list this chat's scheduled jobs
/schedule <cron expr | every 1h | in 30m> <question> - ask a question on a schedule
/unschedule <job id> - cancel a scheduled question
/help - this message`

const frequencyBarWidth = 20

type commandFunc func(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error)

var commands = map[string]commandFunc{
	"summary":    cmdSummary,
	"query":      cmdQuery,
	"dump":       cmdDump,
	"topusers":   cmdTopUsers,
	"frequency":  cmdFrequency,
	"digest":     cmdDigest,
	"schedule":   cmdSchedule,
	"unschedule": cmdUnschedule,
	"help":       cmdHelp,
	"start":      cmdHelp,
}

// parseCommand splits "/Query who?" into ("query", "who?").
func parseCommand(content string) (name, args string) {
	content = strings.TrimPrefix(strings.TrimSpace(content), "/")
	name, args, _ = strings.Cut(content, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	name, args := parseCommand(msg.Content)
	fn, ok := commands[name]
	if !ok {
		g.reply(ctx, msg.Channel, msg.ChatID, fmt.Sprintf("Unknown command /%s.\n\n%s", name, helpText))
		return
	}

	_, serverID, err := parseIDs(msg)
	if err != nil {
		log.Printf("[gateway] /%s: %v", name, err)
		return
	}

	replies, err := fn(ctx, g, msg, serverID, args)
	if err != nil {
		log.Printf("[gateway] /%s in %s failed: %v", name, msg.SessionKey(), err)
		replies = []string{userMessage(err)}
	}
	for _, r := range replies {
		g.reply(ctx, msg.Channel, msg.ChatID, r)
	}
}

// userMessage maps internal failures onto replies safe to show in a chat.
func userMessage(err error) string {
	var (
		genErr *llm.GenerationError
		resErr *convo.ResolutionError
	)
	switch {
	case errors.Is(err, summary.ErrNoMessages):
		return "Nothing has been logged in this chat yet."
	case errors.As(err, &resErr):
		return fmt.Sprintf("Could not look up the name of %s %d.", resErr.Kind, resErr.ID)
	case errors.As(err, &genErr):
		return "The language model failed to respond. Try again later."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled."
	default:
		return "Sorry, something went wrong. Please try again later."
	}
}

func cmdSummary(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	g.reply(ctx, msg.Channel, msg.ChatID, "Summarizing...")
	result, err := g.summaries.Summarize(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return []string{result}, nil
}

func cmdQuery(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	if args == "" {
		return []string{"Usage: /query <question>"}, nil
	}
	g.reply(ctx, msg.Channel, msg.ChatID, "Thinking...")
	result, err := g.summaries.Query(ctx, serverID, args)
	if err != nil {
		return nil, err
	}
	return []string{result}, nil
}

func cmdDump(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	lines, err := g.summaries.Lines(ctx, serverID)
	if err != nil {
		return nil, err
	}
	size := g.cfg.Analysis.DumpChunkSize
	if size <= 0 {
		size = config.DefaultDumpChunkSize
	}
	return analysis.Pages(lines, size), nil
}

func (g *Gateway) topN() int {
	if g.cfg.Analysis.TopN > 0 {
		return g.cfg.Analysis.TopN
	}
	return config.DefaultTopN
}

func cmdTopUsers(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	records, err := g.store.ListByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, summary.ErrNoMessages
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d active users\n", g.topN())
	for _, c := range analysis.TopUsers(records, g.topN()) {
		name, err := g.store.ResolveUser(ctx, c.ID)
		if err != nil {
			name = c.Key
		}
		fmt.Fprintf(&b, "%s: %d\n", name, c.Count)
	}
	return []string{b.String()}, nil
}

func cmdFrequency(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	records, err := g.store.ListByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	counts := analysis.WordFrequency(records, g.topN())
	if len(counts) == 0 {
		return nil, summary.ErrNoMessages
	}
	return []string{fmt.Sprintf("Top %d most common words\n```\n%s```", len(counts), analysis.Bars(counts, frequencyBarWidth))}, nil
}

const (
	digestUsage   = "Usage: /digest on [cron expr] | off | pause | resume"
	scheduleUsage = "Usage: /schedule <cron expr | every <duration> | in <duration>> <question>"
	shortIDLen    = 8
)

func cmdDigest(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	if !g.cfg.Digest.Enabled {
		return []string{"Digests are disabled in the bot configuration."}, nil
	}

	mode, expr, _ := strings.Cut(args, " ")
	isDigestFor := func(job cron.CronJob) bool {
		return job.Payload.Action == cron.ActionDigest && job.Targets(msg.Channel, msg.ChatID)
	}

	switch strings.ToLower(mode) {
	case "":
		return []string{listJobs(g.chatJobs(msg))}, nil
	case "on":
		expr = strings.TrimSpace(expr)
		if expr == "" {
			expr = g.cfg.Digest.Schedule
		}
		if expr == "" {
			expr = config.DefaultDigestSchedule
		}
		schedule := cron.Schedule{Kind: cron.KindCron, Expr: expr}
		if err := schedule.Validate(); err != nil {
			return []string{fmt.Sprintf("Could not schedule digest: %v", err)}, nil
		}
		g.cron.RemoveWhere(isDigestFor)
		job, err := g.cron.AddJob("digest "+msg.SessionKey(), schedule, cron.Payload{
			Action:   cron.ActionDigest,
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			ServerID: serverID,
		})
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("Digest scheduled (%s), job %s.", job.Schedule.Expr, shortID(job.ID))}, nil
	case "off":
		if g.cron.RemoveWhere(isDigestFor) == 0 {
			return []string{"No digest is scheduled for this chat."}, nil
		}
		return []string{"Digest cancelled."}, nil
	case "pause", "resume":
		enable := strings.EqualFold(mode, "resume")
		toggled := 0
		for _, job := range g.cron.ListJobs() {
			if !isDigestFor(job) {
				continue
			}
			if _, err := g.cron.EnableJob(job.ID, enable); err != nil {
				return nil, err
			}
			toggled++
		}
		if toggled == 0 {
			return []string{"No digest is scheduled for this chat."}, nil
		}
		if enable {
			return []string{"Digest resumed."}, nil
		}
		return []string{"Digest paused."}, nil
	default:
		return []string{digestUsage}, nil
	}
}

func cmdSchedule(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	if !g.cfg.Digest.Enabled {
		return []string{"Scheduled jobs are disabled in the bot configuration."}, nil
	}
	schedule, question, err := parseSchedule(args, time.Now())
	if err != nil {
		return []string{fmt.Sprintf("%v\n%s", err, scheduleUsage)}, nil
	}
	job, err := g.cron.AddJob("query "+msg.SessionKey(), schedule, cron.Payload{
		Action:   cron.ActionQuery,
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ServerID: serverID,
		Query:    question,
	})
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Scheduled %s, job %s.", describeSchedule(job.Schedule), shortID(job.ID))}, nil
}

func cmdUnschedule(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	id := strings.TrimSpace(args)
	if id == "" {
		return []string{"Usage: /unschedule <job id>"}, nil
	}
	for _, job := range g.chatJobs(msg) {
		if job.Payload.Action != cron.ActionQuery || !strings.HasPrefix(job.ID, id) {
			continue
		}
		if g.cron.RemoveJob(job.ID) {
			return []string{fmt.Sprintf("Job %s cancelled.", shortID(job.ID))}, nil
		}
	}
	return []string{fmt.Sprintf("No scheduled question %q in this chat.", id)}, nil
}

// parseSchedule splits "<when> <question>". A cron expression takes six fields, or
// one for a descriptor such as @daily (two for "@every 1h").
func parseSchedule(args string, now time.Time) (cron.Schedule, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return cron.Schedule{}, "", errors.New("missing schedule")
	}

	var (
		schedule cron.Schedule
		n        int
	)
	switch strings.ToLower(fields[0]) {
	case "every", "in":
		if len(fields) < 2 {
			return cron.Schedule{}, "", errors.New("missing duration")
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil || d <= 0 {
			return cron.Schedule{}, "", fmt.Errorf("invalid duration %q", fields[1])
		}
		if strings.EqualFold(fields[0], "every") {
			schedule = cron.Schedule{Kind: cron.KindEvery, EveryMs: d.Milliseconds()}
		} else {
			schedule = cron.Schedule{Kind: cron.KindAt, AtMs: now.Add(d).UnixMilli()}
		}
		n = 2
	default:
		n = 6
		if strings.HasPrefix(fields[0], "@") {
			n = 1
			if strings.EqualFold(fields[0], "@every") {
				n = 2
			}
		}
		if len(fields) < n {
			return cron.Schedule{}, "", errors.New("incomplete cron expression")
		}
		schedule = cron.Schedule{Kind: cron.KindCron, Expr: strings.Join(fields[:n], " ")}
	}

	if len(fields) <= n {
		return cron.Schedule{}, "", errors.New("missing question")
	}
	if err := schedule.Validate(); err != nil {
		return cron.Schedule{}, "", err
	}
	return schedule, strings.Join(fields[n:], " "), nil
}

// chatJobs returns the jobs that post to msg's chat.
func (g *Gateway) chatJobs(msg bus.InboundMessage) []cron.CronJob {
	var out []cron.CronJob
	for _, job := range g.cron.ListJobs() {
		if job.Targets(msg.Channel, msg.ChatID) {
			out = append(out, job)
		}
	}
	return out
}

func listJobs(jobs []cron.CronJob) string {
	if len(jobs) == 0 {
		return "No jobs are scheduled for this chat."
	}
	var b strings.Builder
	b.WriteString("Scheduled jobs:\n")
	for _, job := range jobs {
		what := "digest"
		if job.Payload.Action == cron.ActionQuery {
			what = fmt.Sprintf("question %q", job.Payload.Query)
		}
		fmt.Fprintf(&b, "%s %s, %s", shortID(job.ID), what, describeSchedule(job.Schedule))
		if !job.Enabled {
			b.WriteString(", paused")
		}
		if job.State.LastStatus != "" {
			fmt.Fprintf(&b, ", last run %s", job.State.LastStatus)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindEvery:
		return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
	case cron.KindAt:
		return "once at " + time.UnixMilli(s.AtMs).UTC().Format("2006-01-02 15:04 UTC")
	default:
		return "cron " + s.Expr
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func cmdHelp(ctx context.Context, g *Gateway, msg bus.InboundMessage, serverID int64, args string) ([]string, error) {
	return []string{helpText}, nil
}

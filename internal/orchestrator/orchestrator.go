// ABOUTME: Conversation orchestrator driving the full help turn
// ABOUTME: Resolves conversations, enforces limits, invokes the provider and dispatches replies

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/2389/helpdesk-bridge/internal/attach"
	"github.com/2389/helpdesk-bridge/internal/citation"
	"github.com/2389/helpdesk-bridge/internal/convstore"
	"github.com/2389/helpdesk-bridge/internal/cost"
	"github.com/2389/helpdesk-bridge/internal/gateway"
	"github.com/2389/helpdesk-bridge/internal/ingest"
	"github.com/2389/helpdesk-bridge/internal/lang"
	"github.com/2389/helpdesk-bridge/internal/provider"
	"github.com/2389/helpdesk-bridge/internal/ratelimit"
	"github.com/2389/helpdesk-bridge/internal/usagelog"
)

// Commands holds the inbound text prefixes the orchestrator reacts to.
type Commands struct {
	Help       string
	Review     string
	Correction string
	Refresh    string
	LastUpdate string
}

// Orchestrator drives one turn at a time: inbound message through rate and
// storage gates, provider invocation, citation resolution, cost accounting,
// persistence and chunked dispatch.
type Orchestrator struct {
	gw          gateway.Gateway
	prov        provider.Provider
	store       *convstore.Store
	limiter     *ratelimit.Limiter
	attachments *attach.Processor
	detector    *lang.Detector
	translator  lang.Translator
	pricing     *cost.Table
	ledger      *usagelog.Ledger
	refresher   *ingest.Refresher
	commands    Commands
	privileged  map[string]bool

	maxUserTurns int
	logger       *slog.Logger

	// Turns for the same conversation must not interleave; each thread ID
	// gets its own lock.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options bundles the orchestrator's collaborators and tuning.
type Options struct {
	Gateway      gateway.Gateway
	Provider     provider.Provider
	Store        *convstore.Store
	Limiter      *ratelimit.Limiter
	Attachments  *attach.Processor
	Detector     *lang.Detector
	Translator   lang.Translator
	Pricing      *cost.Table
	Ledger       *usagelog.Ledger // optional; nil disables usage records
	Refresher    *ingest.Refresher
	Commands     Commands
	Privileged   []string
	MaxUserTurns int
	Logger       *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	privileged := make(map[string]bool, len(opts.Privileged))
	for _, p := range opts.Privileged {
		privileged[p] = true
	}
	return &Orchestrator{
		gw:           opts.Gateway,
		prov:         opts.Provider,
		store:        opts.Store,
		limiter:      opts.Limiter,
		attachments:  opts.Attachments,
		detector:     opts.Detector,
		translator:   opts.Translator,
		pricing:      opts.Pricing,
		ledger:       opts.Ledger,
		refresher:    opts.Refresher,
		commands:     opts.Commands,
		privileged:   privileged,
		maxUserTurns: opts.MaxUserTurns,
		logger:       logger.With("component", "orchestrator"),
	}
}

// HandleMessage routes one inbound event to its command handler. Unrecognized
// text is ignored; the bot only reacts to its command prefixes.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg gateway.Inbound) {
	switch {
	case strings.HasPrefix(msg.Text, o.commands.Help):
		o.handleHelp(ctx, msg)
	case strings.HasPrefix(msg.Text, o.commands.Review):
		o.handleReview(ctx, msg)
	case strings.HasPrefix(msg.Text, o.commands.Correction):
		o.handleCorrection(ctx, msg)
	case strings.HasPrefix(msg.Text, o.commands.Refresh):
		o.handleRefresh(ctx, msg)
	case strings.HasPrefix(msg.Text, o.commands.LastUpdate):
		o.handleLastUpdate(ctx, msg)
	}
}

// lockConversation serializes turns per conversation. An empty thread ID (a
// message that will create its own thread) shares one lock; creation is rare
// enough that the contention does not matter.
func (o *Orchestrator) lockConversation(threadID string) func() {
	o.mu.Lock()
	if o.locks == nil {
		o.locks = make(map[string]*sync.Mutex)
	}
	l, ok := o.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[threadID] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// handleHelp runs the full turn state machine for one help request.
func (o *Orchestrator) handleHelp(ctx context.Context, msg gateway.Inbound) {
	if o.refresher != nil && o.refresher.NeedsRefresh() {
		o.logger.Info("knowledge files stale, triggering refresh instead of answering")
		o.refresher.Trigger(ctx)
		return
	}

	unlock := o.lockConversation(msg.ThreadID)
	defer unlock()

	text := stripCommand(msg.Text, o.commands.Help)
	language := o.detector.Detect(text)

	o.store.CheckPressure(ctx, o.gw)

	info := o.limiter.Check(ctx, msg.ChannelID)
	if o.limiter.Gate(ctx, info, msg.ChannelID, msg.ThreadID) {
		return
	}

	if utf8.RuneCountInString(text) > o.gw.MaxMessageChars() {
		target := msg.ThreadID
		if target == "" {
			target = msg.ChannelID
		}
		if err := o.gw.Send(ctx, target, tooLongMessage(o.gw.MaxMessageChars())); err != nil {
			o.logger.Error("failed to send length notice", "error", err)
		}
		return
	}

	if threadID, err := o.runTurn(ctx, msg, text, language); err != nil {
		o.logger.Error("turn failed", "thread_id", threadID, "error", err)
		o.errorTurn(ctx, msg, threadID, language)
	}
}

// runTurn is the fallible body of a help turn. Any returned error routes
// through the single error path in handleHelp; the returned thread ID lets
// that path reuse a thread created mid-turn.
func (o *Orchestrator) runTurn(ctx context.Context, msg gateway.Inbound, text, language string) (string, error) {
	threadID, conv, existing, err := o.resolveConversation(ctx, msg, text, language)
	if err != nil {
		return "", err
	}

	o.sendTurnHeader(ctx, threadID, msg.DisplayName, conv.Language, existing)

	if existing {
		o.store.AppendTurn(threadID, convstore.RoleUser, text)
	}

	if conv.UserTurns() > o.maxUserTurns {
		o.saveStore()
		if err := o.gw.Send(ctx, threadID, o.translate(ctx, maxTurnsReachedMessage, conv.Language)); err != nil {
			o.logger.Error("failed to send max turns notice", "error", err)
		}
		return threadID, nil
	}

	// The provider session is stateless across turns: seed it with the full
	// prior history, then append the current message (with images) on top.
	seed := sessionSeed(conv, existing)
	sessionID, err := o.prov.CreateSession(ctx, seed)
	if err != nil {
		return threadID, fmt.Errorf("creating provider session: %w", err)
	}

	images, err := o.uploadAttachments(ctx, threadID, msg.Attachments)
	if err != nil {
		return threadID, err
	}

	if err := o.prov.AppendUserMessage(ctx, sessionID, text, images); err != nil {
		return threadID, fmt.Errorf("appending user message: %w", err)
	}

	run, err := o.prov.Run(ctx, sessionID)
	if err != nil {
		var rle *provider.RateLimitError
		if errors.As(err, &rle) {
			relay := providerRateLimitMessage(rle.Limit, rle.Used, rle.Requested, rle.ResetSeconds)
			if sendErr := o.gw.Send(ctx, threadID, relay); sendErr != nil {
				o.logger.Error("failed to relay provider rate limit", "error", sendErr)
			}
		}
		return threadID, fmt.Errorf("provider run: %w", err)
	}

	resp, err := o.prov.LatestResponse(ctx, sessionID)
	if err != nil {
		return threadID, fmt.Errorf("fetching response: %w", err)
	}

	resolved, err := citation.Resolve(ctx, resp.Text, resp.Annotations, o.prov)
	if err != nil {
		return threadID, err
	}

	logged := resolved.Text
	if len(resolved.Footnotes) > 0 {
		logged += "\n" + strings.Join(resolved.Footnotes, "\n")
	}
	o.store.AppendTurn(threadID, convstore.RoleAssistant, logged)

	if err := o.accumulateCost(ctx, threadID, run, len(images)); err != nil {
		return threadID, err
	}

	o.saveStore()

	display := citation.StripMarkers(resolved.Text, len(resp.Annotations))
	for _, chunk := range chunkResponse(display, o.gw.MaxMessageChars()) {
		if err := o.gw.Send(ctx, threadID, chunk); err != nil {
			return threadID, fmt.Errorf("dispatching response: %w", err)
		}
	}
	return threadID, nil
}

// resolveConversation maps the inbound message onto an existing conversation
// or creates a new one titled by a provider-generated summary. New
// conversations are seeded with the opening message and the greeting so the
// turn log is never empty.
func (o *Orchestrator) resolveConversation(ctx context.Context, msg gateway.Inbound, text, language string) (string, *convstore.Conversation, bool, error) {
	if msg.ThreadID != "" {
		if conv, ok := o.store.Get(msg.ThreadID); ok {
			return msg.ThreadID, conv, true, nil
		}
	}

	summary, err := o.prov.Summarize(ctx, text)
	if err != nil {
		return "", nil, false, fmt.Errorf("summarizing for title: %w", err)
	}
	title := threadCategory + ": " + summary

	threadID, err := o.gw.CreateThread(ctx, msg.ChannelID, title)
	if err != nil {
		return "", nil, false, fmt.Errorf("creating thread: %w", err)
	}

	greeting := o.translate(ctx, newThreadGreeting(msg.DisplayName), language)
	conv := convstore.NewConversation(msg.Sender, summary, language, text, greeting)
	o.store.Put(threadID, conv)
	return threadID, conv, false, nil
}

// sendTurnHeader posts the greeting (new conversations) or the working notice
// (existing ones) followed by the separator line. Failures are logged, never
// fatal: the header is decoration, not state.
func (o *Orchestrator) sendTurnHeader(ctx context.Context, threadID, displayName, language string, existing bool) {
	header := newThreadGreeting(displayName)
	if existing {
		header = existingThreadHeader
	}
	header = o.translate(ctx, header, language)
	if err := o.gw.Send(ctx, threadID, header); err != nil {
		o.logger.Error("failed to send turn header", "error", err)
		return
	}
	if err := o.gw.Send(ctx, threadID, separator); err != nil {
		o.logger.Error("failed to send separator", "error", err)
	}
}

// sessionSeed builds the history replayed into a fresh provider session. For
// an existing conversation that is every turn before the one being answered;
// a new conversation has no prior context.
func sessionSeed(conv *convstore.Conversation, existing bool) []provider.Message {
	if !existing {
		return nil
	}
	turns := conv.Turns[:len(conv.Turns)-1]
	seed := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		seed = append(seed, provider.Message{Role: t.Role, Content: t.Content})
	}
	return seed
}

// uploadAttachments validates inbound attachments and uploads the survivors.
// Validation failures skip individual files; an upload failure fails the turn.
func (o *Orchestrator) uploadAttachments(ctx context.Context, threadID string, raw []gateway.Attachment) ([]provider.ImageRef, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	candidates := make([]attach.Attachment, 0, len(raw))
	for _, a := range raw {
		candidates = append(candidates, attach.Attachment{Filename: a.Filename, URL: a.URL})
	}
	notify := func(ctx context.Context, text string) error {
		return o.gw.Send(ctx, threadID, text)
	}
	images := o.attachments.Process(ctx, candidates, notify)

	refs := make([]provider.ImageRef, 0, len(images))
	for _, img := range images {
		ref, err := o.prov.UploadImage(ctx, img.Filename, img.Data)
		if err != nil {
			return nil, fmt.Errorf("uploading image %s: %w", img.Filename, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// accumulateCost prices the run, folds it into the conversation totals and
// best-effort records it in the usage ledger.
func (o *Orchestrator) accumulateCost(ctx context.Context, threadID string, run *provider.RunResult, imageCount int) error {
	usage := cost.Usage{
		Model:            run.Model,
		PromptTokens:     run.PromptTokens,
		CompletionTokens: run.CompletionTokens,
	}
	input, output, image, err := cost.Compute(usage, o.pricing, imageCount)
	if err != nil {
		return fmt.Errorf("pricing run: %w", err)
	}
	o.store.AddCost(threadID, input, output, image)

	if o.ledger != nil {
		rec := &usagelog.Record{
			ConversationID:   threadID,
			Model:            run.Model,
			PromptTokens:     run.PromptTokens,
			CompletionTokens: run.CompletionTokens,
			ImageCount:       imageCount,
			InputCost:        input,
			OutputCost:       output,
			ImageCost:        image,
			TotalCost:        input + output + image,
		}
		if err := o.ledger.Record(ctx, rec); err != nil {
			o.logger.Warn("failed to record usage", "thread_id", threadID, "error", err)
		}
	}
	return nil
}

// errorTurn is the terminal error path. It creates or reuses a thread, logs a
// translated failure message as an assistant turn, persists and dispatches it.
// Nothing in here may fail the caller: every step degrades to a log line.
func (o *Orchestrator) errorTurn(ctx context.Context, msg gateway.Inbound, threadID, language string) {
	if threadID == "" {
		threadID = msg.ThreadID
	}
	var ok bool
	if threadID != "" {
		_, ok = o.store.Get(threadID)
	}
	if !ok {
		created, err := o.gw.CreateThread(ctx, msg.ChannelID, errorThreadTitle)
		if err != nil {
			o.logger.Error("failed to create error thread", "error", err)
			return
		}
		threadID = created
	}

	failure := o.translate(ctx, botErrorMessage, language)
	if ok {
		o.store.AppendTurn(threadID, convstore.RoleAssistant, failure)
	} else {
		o.store.Put(threadID, convstore.NewConversation(msg.Sender, errorThreadTitle, language, msg.Text, failure))
	}
	o.saveStore()

	if err := o.gw.Send(ctx, threadID, failure); err != nil {
		o.logger.Error("failed to send error message", "error", err)
	}
}

// translate best-effort translates text into target. Translation failure
// falls back to the untranslated string; it is never worth failing a turn
// over.
func (o *Orchestrator) translate(ctx context.Context, text, target string) string {
	if o.translator == nil || target == "" || target == "en" {
		return text
	}
	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	translated, err := o.translator.Translate(tctx, text, target)
	if err != nil {
		o.logger.Warn("translation failed, using original text", "target", target, "error", err)
		return text
	}
	return translated
}

func (o *Orchestrator) saveStore() {
	if err := o.store.Save(); err != nil {
		o.logger.Error("failed to save conversation store", "error", err)
	}
}

// stripCommand removes the command prefix (and one following space) from the
// inbound text.
func stripCommand(text, command string) string {
	text = strings.TrimPrefix(text, command)
	return strings.TrimPrefix(text, " ")
}

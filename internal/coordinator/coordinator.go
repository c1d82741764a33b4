package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/apply"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/parser"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/patcher"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

// Prefill is prepended to the text of code turns; the model continues an
// already opened change block.
const Prefill = parser.OpenMarker

// FinalResponse is what a stream reports once it has completed.
type FinalResponse struct {
	// Text is the full response. When empty the accumulated fragments are
	// used instead.
	Text         string
	StopReason   string
	StopSequence string
}

// Streamer produces the model response. onFragment is called for every
// fragment in arrival order; a non-nil return must stop the stream and be
// returned from Stream.
type Streamer interface {
	Stream(ctx context.Context, onFragment func(fragment string) error) (FinalResponse, error)
}

// Tracker is told about every file a turn changed.
type Tracker interface {
	Add(path string, edited bool)
}

// Applier writes a changeset to the working tree.
type Applier interface {
	Apply(ctx context.Context, cs *changeset.ChangeSet, mode apply.Mode, message string) (model.DiffReport, *model.CommitRecord, error)
}

// Preview is the live view of a turn while it streams. It never carries
// file changes.
type Preview struct {
	TurnID       string
	Kind         Kind
	Message      string
	Instructions []model.EditInstruction
	ChangeSet    *changeset.ChangeSet
}

// Result is the outcome of one turn. It is not modified after Run returns.
type Result struct {
	TurnID     string
	Kind       Kind
	State      State
	StopReason StopReason
	Text       string
	Parsed     model.ParsedResponse
	ChangeSet  *changeset.ChangeSet
	Report     model.DiffReport
	Commit     *model.CommitRecord
	Err        error
}

// Message is the prose of the turn.
func (r *Result) Message() string {
	return r.Parsed.Message()
}

// Options configures a Coordinator.
type Options struct {
	// Root is the working tree edits are resolved against.
	Root string
	// NoPrefill is set when the stream already carries complete change
	// blocks, as with piped or replayed model output, so code turns do not
	// prepend the opening marker.
	NoPrefill bool
	// Autocommit selects commit mode instead of a direct write.
	Autocommit bool
	// MessageFunc builds the commit message. Defaults to a message listing
	// the changed paths.
	MessageFunc func(ctx context.Context, parsed model.ParsedResponse, cs *changeset.ChangeSet) string
	Applicator  *patcher.Applicator
	Engine      Applier
	Tracker     Tracker
	Logger      *zap.Logger
	Tracer      trace.Tracer
}

// Coordinator drives turns through parse, preview and apply. It runs one
// turn at a time.
type Coordinator struct {
	opts Options

	mu    sync.Mutex
	state State
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Applicator == nil {
		opts.Applicator = patcher.New(opts.Logger)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("melty/coordinator")
	}
	if opts.MessageFunc == nil {
		opts.MessageFunc = DefaultCommitMessage
	}
	return &Coordinator{opts: opts}
}

// State returns the state of the current or last turn.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.state = to
	return nil
}

// begin claims the coordinator for a new turn.
func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Streaming || c.state == Finalizing {
		return ErrTurnInProgress
	}
	c.state = Streaming
	return nil
}

// Run streams one turn. Every fragment triggers a partial parse of the
// whole accumulated text and a Preview sent to sink. Once the stream
// completes the text is parsed once more in final mode and, for code
// turns, the edits are applied. Cancellation of ctx is observed between
// fragments and before the final parse; the write phase itself is never
// interrupted.
//
// The returned Result is always non-nil and its Err equals the returned
// error.
func (c *Coordinator) Run(ctx context.Context, kind Kind, streamer Streamer, sink func(Preview)) (*Result, error) {
	if err := c.begin(); err != nil {
		return &Result{Kind: kind, State: c.State(), Err: err}, err
	}

	res := &Result{
		TurnID:    uuid.NewString(),
		Kind:      kind,
		ChangeSet: changeset.Empty(),
	}
	logger := c.opts.Logger.With(zap.String("turn", res.TurnID), zap.Stringer("kind", kind))

	ctx, span := c.opts.Tracer.Start(ctx, "coordinator.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", res.TurnID),
		attribute.String("turn.kind", kind.String()),
	)

	finish := func(state State, err error) (*Result, error) {
		if terr := c.transition(state); terr != nil {
			err = errors.Join(err, terr)
		}
		res.State = state
		res.Err = err
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("turn ended with error", zap.Stringer("state", state), zap.Error(err))
		} else {
			logger.Info("turn completed", zap.Stringer("state", state))
		}
		return res, err
	}

	prefill := ""
	if kind == KindCode && !c.opts.NoPrefill {
		prefill = Prefill
	}
	var acc strings.Builder
	acc.WriteString(prefill)
	fragments := 0
	onFragment := func(fragment string) error {
		if ctx.Err() != nil {
			return model.ErrOperationCancelled
		}
		fragments++
		acc.WriteString(fragment)
		parsed := parser.Scan(acc.String(), true)
		if sink != nil {
			sink(Preview{
				TurnID:       res.TurnID,
				Kind:         kind,
				Message:      parsed.Message(),
				Instructions: parsed.Instructions,
				ChangeSet:    changeset.Empty(),
			})
		}
		return nil
	}

	final, err := streamer.Stream(ctx, onFragment)
	logger.Debug("stream finished", zap.Int("fragments", fragments), zap.Error(err))
	if ctx.Err() != nil || errors.Is(err, model.ErrOperationCancelled) {
		return finish(Cancelled, cancelled(ctx))
	}
	if err != nil {
		return finish(Done, fmt.Errorf("stream failed: %w", err))
	}

	if err := c.transition(Finalizing); err != nil {
		return finish(Done, err)
	}

	res.Text = finalText(prefill, final, acc.String())
	res.StopReason = stopReason(kind, final)
	res.Parsed = parser.Scan(res.Text, false)
	span.SetAttributes(attribute.Int("turn.instructions", len(res.Parsed.Instructions)))
	for _, d := range res.Parsed.Diagnostics {
		logger.Warn("dropped change block", zap.Int("block", d.Index), zap.Error(d.Err))
	}

	if kind != KindCode {
		return finish(Done, nil)
	}
	if ctx.Err() != nil {
		return finish(Cancelled, cancelled(ctx))
	}

	if err := c.applyEdits(ctx, res, logger); err != nil {
		return finish(Done, err)
	}
	return finish(Done, nil)
}

func (c *Coordinator) applyEdits(ctx context.Context, res *Result, logger *zap.Logger) error {
	ctx, span := c.opts.Tracer.Start(ctx, "coordinator.apply")
	defer span.End()

	cs, err := c.opts.Applicator.Apply(res.Parsed.Instructions, c.opts.Root)
	if err != nil {
		span.RecordError(err)
		return err
	}
	res.ChangeSet = cs
	if cs.IsEmpty() {
		return nil
	}
	if c.opts.Engine == nil {
		return fmt.Errorf("%w: no apply engine configured", model.ErrApplicationIO)
	}

	mode := apply.ModeDirect
	message := ""
	if c.opts.Autocommit {
		mode = apply.ModeCommit
		message = c.opts.MessageFunc(ctx, res.Parsed, cs)
	}
	span.SetAttributes(
		attribute.String("apply.mode", mode.String()),
		attribute.StringSlice("apply.paths", cs.Paths()),
	)

	// The write phase runs to completion even if the caller cancels now.
	report, commit, err := c.opts.Engine.Apply(context.WithoutCancel(ctx), cs, mode, message)
	res.Report = report
	res.Commit = commit
	if err != nil {
		span.RecordError(err)
		return err
	}

	if c.opts.Tracker != nil {
		for _, p := range report.FilePathsChanged {
			c.opts.Tracker.Add(p, true)
		}
	}
	logger.Info("applied changeset",
		zap.Stringer("mode", mode),
		zap.Strings("paths", report.FilePathsChanged))
	return nil
}

func cancelled(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrOperationCancelled, err)
	}
	return model.ErrOperationCancelled
}

// finalText trims the response. After a prefill the leading whitespace
// separates the marker from its attributes and is kept.
func finalText(prefill string, final FinalResponse, accumulated string) string {
	text := final.Text
	if text == "" {
		text = strings.TrimPrefix(accumulated, prefill)
	}
	if prefill == "" {
		return strings.TrimSpace(text)
	}
	return prefill + strings.TrimRight(text, " \t\r\n")
}

// StopSequenceReason is the stop reason of a stream halted by a stop sequence.
const StopSequenceReason = "stop_sequence"

func stopReason(kind Kind, final FinalResponse) StopReason {
	if kind == KindChat && final.StopReason == StopSequenceReason && final.StopSequence == parser.OpenMarker {
		return StopConfirmCode
	}
	return StopEndTurn
}

// DefaultCommitMessage names the changed files.
func DefaultCommitMessage(_ context.Context, _ model.ParsedResponse, cs *changeset.ChangeSet) string {
	paths := cs.Paths()
	switch len(paths) {
	case 0:
		return "Apply edits"
	case 1:
		return "Update " + paths[0]
	default:
		return fmt.Sprintf("Update %s and %d more", paths[0], len(paths)-1)
	}
}
